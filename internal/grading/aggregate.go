package grading

import "math"

// DefaultQualifyThreshold is the passing percentage.
const DefaultQualifyThreshold = 70.0

// Scores is the combined automatic and manual outcome of an exam.
type Scores struct {
	AutoScore   int     `json:"auto_score"`
	ManualScore float64 `json:"manual_score"`
	FinalScore  float64 `json:"final_score"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
	Qualified   bool    `json:"qualified"`
}

// Aggregator combines automatic and manual components into a final score.
type Aggregator struct {
	QualifyThreshold float64
	// ReviewTypes lists free-text types whose automatic verdict is always
	// provisional and never counted.
	ReviewTypes map[QuestionType]bool
}

// NewAggregator builds an Aggregator. Unknown or auto-gradable review types are ignored.
func NewAggregator(threshold float64, reviewTypes ...QuestionType) Aggregator {
	types := make(map[QuestionType]bool, len(reviewTypes))
	for _, t := range reviewTypes {
		if t.FreeText() {
			types[t] = true
		}
	}
	return Aggregator{QualifyThreshold: threshold, ReviewTypes: types}
}

// RequiresReview reports whether automatic verdicts of type t are provisional.
func (a Aggregator) RequiresReview(t QuestionType) bool {
	return a.ReviewTypes[t]
}

// Aggregate recomputes the scores of exam from scratch. It never mutates exam,
// so repeated calls on the same state give identical results.
func (a Aggregator) Aggregate(exam ExamInstance) Scores {
	manualInPlay := len(exam.Ledger) > 0

	scores := Scores{Total: len(exam.Questions)}
	for i, q := range exam.Questions {
		if i >= len(exam.PerQuestion) || exam.PerQuestion[i] == nil || !*exam.PerQuestion[i] {
			continue
		}
		if q.Type.FreeText() && (manualInPlay || a.RequiresReview(q.Type)) {
			continue
		}
		scores.AutoScore++
	}

	scores.ManualScore = exam.Ledger.Total()
	scores.FinalScore = float64(scores.AutoScore) + scores.ManualScore
	if scores.Total > 0 {
		scores.Percentage = roundTo(scores.FinalScore/float64(scores.Total)*100, 2)
	}
	scores.Qualified = scores.Percentage >= a.QualifyThreshold
	return scores
}

// Apply writes scores onto exam. The manual score stays nil until the ledger has a record.
func (s Scores) Apply(exam *ExamInstance) {
	auto := s.AutoScore
	final := s.FinalScore
	exam.AutoScore = &auto
	exam.FinalScore = &final
	exam.ManualScore = nil
	if len(exam.Ledger) > 0 {
		manual := s.ManualScore
		exam.ManualScore = &manual
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
