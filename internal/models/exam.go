package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
)

// Exam is the persisted form of a candidate's exam instance.
type Exam struct {
	ID               string                                 `gorm:"primaryKey;size:36" json:"id"`
	CandidateID      string                                 `gorm:"size:64;not null;index" json:"candidate_id"`
	Questions        datatypes.JSONType[[]grading.Question] `json:"questions"`
	SubmittedAnswers datatypes.JSONType[grading.Submission] `json:"submitted_answers"`
	PerQuestion      datatypes.JSONType[[]*bool]            `json:"per_question"`
	ManualGrades     datatypes.JSONType[grading.Ledger]     `json:"manual_grades"`
	AutoScore        *int                                   `json:"auto_score"`
	ManualScore      *float64                               `json:"manual_score"`
	FinalScore       *float64                               `json:"final_score"`
	Percentage       *float64                               `json:"percentage"`
	Qualified        *bool                                  `gorm:"index" json:"qualified"`
	Status           string                                 `gorm:"size:32;not null;index" json:"status"`
	Approved         bool                                   `gorm:"not null;default:false" json:"approved"`
	ApprovedAt       *time.Time                             `json:"approved_at"`
	VisibleAt        *time.Time                             `json:"visible_at"`
	GeneratedAt      time.Time                              `gorm:"not null" json:"generated_at"`
	SubmittedAt      *time.Time                             `json:"submitted_at"`
	GradedAt         *time.Time                             `json:"graded_at"`
	ReviewedAt       *time.Time                             `json:"reviewed_at"`
	Version          int                                    `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time                              `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time                              `json:"updated_at"`
}

// NewExam builds a freshly generated exam for a candidate.
func NewExam(id, candidateID string, questions []grading.Question, generatedAt time.Time) Exam {
	return Exam{
		ID:           id,
		CandidateID:  candidateID,
		Questions:    datatypes.NewJSONType(questions),
		ManualGrades: datatypes.NewJSONType(grading.Ledger{}),
		Status:       string(grading.StatusGenerated),
		GeneratedAt:  generatedAt,
		Version:      1,
	}
}

// Instance converts the row into the engine's view of the exam.
func (e Exam) Instance() grading.ExamInstance {
	ledger := e.ManualGrades.Data()
	if ledger == nil {
		ledger = grading.Ledger{}
	}
	return grading.ExamInstance{
		ID:               e.ID,
		CandidateID:      e.CandidateID,
		Questions:        e.Questions.Data(),
		SubmittedAnswers: e.SubmittedAnswers.Data(),
		PerQuestion:      e.PerQuestion.Data(),
		AutoScore:        e.AutoScore,
		ManualScore:      e.ManualScore,
		FinalScore:       e.FinalScore,
		Status:           grading.Status(e.Status),
		Ledger:           ledger,
		GeneratedAt:      e.GeneratedAt,
		SubmittedAt:      e.SubmittedAt,
		GradedAt:         e.GradedAt,
		ReviewedAt:       e.ReviewedAt,
	}
}

// Apply copies the engine state and the aggregated scores back onto the row.
func (e *Exam) Apply(instance grading.ExamInstance, scores grading.Scores) {
	e.SubmittedAnswers = datatypes.NewJSONType(instance.SubmittedAnswers)
	e.PerQuestion = datatypes.NewJSONType(instance.PerQuestion)
	e.ManualGrades = datatypes.NewJSONType(instance.Ledger)
	e.AutoScore = instance.AutoScore
	e.ManualScore = instance.ManualScore
	e.FinalScore = instance.FinalScore
	e.Status = string(instance.Status)
	e.SubmittedAt = instance.SubmittedAt
	e.GradedAt = instance.GradedAt
	e.ReviewedAt = instance.ReviewedAt

	percentage := scores.Percentage
	qualified := scores.Qualified
	e.Percentage = &percentage
	e.Qualified = &qualified
}

// GradingStatus returns the typed lifecycle status.
func (e Exam) GradingStatus() grading.Status {
	return grading.Status(e.Status)
}

// IsVisible reports whether a held exam's result may be shown at now.
func (e Exam) IsVisible(now time.Time) bool {
	if e.GradingStatus() != grading.StatusUnderReview {
		return true
	}
	return e.Approved && e.VisibleAt != nil && !now.Before(*e.VisibleAt)
}
