package dto

import (
	"math"
	"time"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta computes page counts for a list response.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	if page <= 0 {
		page = 1
	}
	meta := PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: 1}
	if pageSize > 0 {
		meta.TotalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return meta
}

// GenerateExamRequest describes the candidate an exam is generated for.
type GenerateExamRequest struct {
	CandidateID   string   `json:"candidate_id" validate:"required,max=64"`
	Name          string   `json:"name" validate:"omitempty,max=200"`
	Experience    string   `json:"experience" validate:"omitempty,max=32"`
	Skills        []string `json:"skills" validate:"omitempty,max=50,dive,required,max=100"`
	Qualification string   `json:"qualification" validate:"omitempty,max=200"`
}

// SubmitExamRequest carries a candidate's answers keyed by question index.
type SubmitExamRequest struct {
	Answers grading.Submission `json:"answers" validate:"required"`
}

// ManualGradeRequest records a reviewer's score for one free-text question.
type ManualGradeRequest struct {
	QuestionID string   `json:"question_id" validate:"required,max=64"`
	Score      *float64 `json:"score" validate:"required"`
	Feedback   string   `json:"feedback" validate:"max=5000"`
}

// ApproveExamRequest configures when an approved result becomes visible.
type ApproveExamRequest struct {
	DelayMinutes *int `json:"delay_minutes" validate:"omitempty,min=0,max=10080"`
}

// ExamListRequest defines filters for listing exams.
type ExamListRequest struct {
	Page        int
	PageSize    int
	CandidateID string
	Status      string `validate:"omitempty,oneof=generated submitted graded manually_graded under_review"`
	Qualified   *bool
}

// QuestionResponse is the candidate-facing view of a question.
type QuestionResponse struct {
	ID      string               `json:"id"`
	Text    string               `json:"text"`
	Type    grading.QuestionType `json:"type"`
	Options []string             `json:"options"`
}

// ManualGradeResponse serializes a ledger record.
type ManualGradeResponse struct {
	QuestionID string    `json:"question_id"`
	Score      float64   `json:"score"`
	Feedback   string    `json:"feedback"`
	GradedAt   time.Time `json:"graded_at"`
}

// ExamResponse serializes an exam instance.
type ExamResponse struct {
	ID               string                `json:"id"`
	CandidateID      string                `json:"candidate_id"`
	Status           grading.Status        `json:"status"`
	Questions        []QuestionResponse    `json:"questions"`
	SubmittedAnswers grading.Submission    `json:"submitted_answers,omitempty"`
	PerQuestion      []*bool               `json:"per_question,omitempty"`
	ManualGrades     []ManualGradeResponse `json:"manual_grades"`
	AutoScore        *int                  `json:"auto_score"`
	ManualScore      *float64              `json:"manual_score"`
	FinalScore       *float64              `json:"final_score"`
	Percentage       *float64              `json:"percentage"`
	Qualified        *bool                 `json:"qualified"`
	Approved         bool                  `json:"approved"`
	VisibleAt        *time.Time            `json:"visible_at,omitempty"`
	GeneratedAt      time.Time             `json:"generated_at"`
	SubmittedAt      *time.Time            `json:"submitted_at,omitempty"`
	GradedAt         *time.Time            `json:"graded_at,omitempty"`
	ReviewedAt       *time.Time            `json:"reviewed_at,omitempty"`
}

// NewExamResponse converts an exam model into a DTO. Correct answers are never exposed.
func NewExamResponse(exam models.Exam) ExamResponse {
	questions := exam.Questions.Data()
	items := make([]QuestionResponse, 0, len(questions))
	for _, q := range questions {
		options := q.Options
		if options == nil {
			options = []string{}
		}
		items = append(items, QuestionResponse{ID: q.ID, Text: q.Text, Type: q.Type, Options: options})
	}

	records := exam.ManualGrades.Data().Records()
	grades := make([]ManualGradeResponse, 0, len(records))
	for _, record := range records {
		grades = append(grades, NewManualGradeResponse(record))
	}

	return ExamResponse{
		ID:               exam.ID,
		CandidateID:      exam.CandidateID,
		Status:           exam.GradingStatus(),
		Questions:        items,
		SubmittedAnswers: exam.SubmittedAnswers.Data(),
		PerQuestion:      exam.PerQuestion.Data(),
		ManualGrades:     grades,
		AutoScore:        exam.AutoScore,
		ManualScore:      exam.ManualScore,
		FinalScore:       exam.FinalScore,
		Percentage:       exam.Percentage,
		Qualified:        exam.Qualified,
		Approved:         exam.Approved,
		VisibleAt:        exam.VisibleAt,
		GeneratedAt:      exam.GeneratedAt,
		SubmittedAt:      exam.SubmittedAt,
		GradedAt:         exam.GradedAt,
		ReviewedAt:       exam.ReviewedAt,
	}
}

// NewManualGradeResponse converts a ledger record into a DTO.
func NewManualGradeResponse(record grading.ManualGradeRecord) ManualGradeResponse {
	return ManualGradeResponse{
		QuestionID: record.QuestionID,
		Score:      record.Score,
		Feedback:   record.Feedback,
		GradedAt:   record.GradedAt,
	}
}

// ExamSummaryResponse is the list view of an exam.
type ExamSummaryResponse struct {
	ID          string         `json:"id"`
	CandidateID string         `json:"candidate_id"`
	Status      grading.Status `json:"status"`
	FinalScore  *float64       `json:"final_score"`
	Percentage  *float64       `json:"percentage"`
	Qualified   *bool          `json:"qualified"`
	Approved    bool           `json:"approved"`
	GeneratedAt time.Time      `json:"generated_at"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	GradedAt    *time.Time     `json:"graded_at,omitempty"`
}

// NewExamSummaryResponse converts an exam model into its list view.
func NewExamSummaryResponse(exam models.Exam) ExamSummaryResponse {
	return ExamSummaryResponse{
		ID:          exam.ID,
		CandidateID: exam.CandidateID,
		Status:      exam.GradingStatus(),
		FinalScore:  exam.FinalScore,
		Percentage:  exam.Percentage,
		Qualified:   exam.Qualified,
		Approved:    exam.Approved,
		GeneratedAt: exam.GeneratedAt,
		SubmittedAt: exam.SubmittedAt,
		GradedAt:    exam.GradedAt,
	}
}

// ExamListResponse wraps a paginated exam list.
type ExamListResponse struct {
	Items      []ExamSummaryResponse `json:"items"`
	Pagination PaginationMeta        `json:"pagination"`
}

// ResultResponse is the scored outcome of an exam.
type ResultResponse struct {
	ExamID      string         `json:"exam_id"`
	Score       float64        `json:"score"`
	AutoScore   int            `json:"auto_score"`
	ManualScore float64        `json:"manual_score"`
	Total       int            `json:"total"`
	Percentage  float64        `json:"percentage"`
	Qualified   bool           `json:"qualified"`
	Status      grading.Status `json:"status"`
}

// NewResultResponse builds a result from freshly aggregated scores.
func NewResultResponse(examID string, status grading.Status, scores grading.Scores) ResultResponse {
	return ResultResponse{
		ExamID:      examID,
		Score:       scores.FinalScore,
		AutoScore:   scores.AutoScore,
		ManualScore: scores.ManualScore,
		Total:       scores.Total,
		Percentage:  scores.Percentage,
		Qualified:   scores.Qualified,
		Status:      status,
	}
}

// EligibilityResponse reports whether a candidate may start a new attempt.
type EligibilityResponse struct {
	CandidateID   string     `json:"candidate_id"`
	Eligible      bool       `json:"eligible"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// CandidateView strips grading details so candidates only learn scores through the result endpoint.
func (r ExamResponse) CandidateView() ExamResponse {
	r.PerQuestion = nil
	r.ManualGrades = []ManualGradeResponse{}
	r.AutoScore = nil
	r.ManualScore = nil
	r.FinalScore = nil
	r.Percentage = nil
	r.Qualified = nil
	return r
}
