package grading

import (
	"math"
	"sort"
	"time"
)

// Ledger holds at most one live manual grade per question id.
type Ledger map[string]ManualGradeRecord

// Total sums the live scores in question id order so the result is stable.
func (l Ledger) Total() float64 {
	total := 0.0
	for _, record := range l.Records() {
		total += record.Score
	}
	return total
}

// Records returns the live records ordered by question id.
func (l Ledger) Records() []ManualGradeRecord {
	records := make([]ManualGradeRecord, 0, len(l))
	for _, record := range l {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].QuestionID < records[j].QuestionID })
	return records
}

// Clone returns an independent copy of the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// ApplyManualGrade records a reviewer score for a free-text question, replacing
// any earlier record for the same question. All checks run before exam is touched.
func ApplyManualGrade(exam *ExamInstance, questionID string, score float64, feedback string, at time.Time) (ManualGradeRecord, error) {
	if !exam.Status.HasSubmission() {
		return ManualGradeRecord{}, NotSubmittedError(exam.ID)
	}

	q, _, ok := exam.QuestionByID(questionID)
	if !ok {
		return ManualGradeRecord{}, NotFoundError("question %s not found in exam %s", questionID, exam.ID)
	}

	if math.IsNaN(score) || score < 0 || score > 1 {
		return ManualGradeRecord{}, ValidationError("score", "score must be between 0 and 1")
	}

	if q.Type.AutoGradable() {
		return ManualGradeRecord{}, ValidationError("question_id", "%s questions are graded automatically", q.Type)
	}

	record := ManualGradeRecord{
		QuestionID: questionID,
		Score:      score,
		Feedback:   feedback,
		GradedAt:   at,
	}
	if exam.Ledger == nil {
		exam.Ledger = Ledger{}
	}
	exam.Ledger[questionID] = record
	return record, nil
}
