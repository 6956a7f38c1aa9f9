// Package grading turns submitted exam answers into scores. It is pure: no I/O,
// no clocks, no storage. Callers supply the current time and persist results.
package grading

import (
	"fmt"
	"time"
)

// Options configures grading leniency and policy.
type Options struct {
	FuzzyThreshold   float64
	KeywordThreshold float64
	QualifyThreshold float64
	Cooldown         time.Duration
	ReviewTypes      []QuestionType
	StrictQuestions  bool
}

// DefaultOptions returns the stock grading policy.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold:   DefaultFuzzyThreshold,
		KeywordThreshold: DefaultKeywordThreshold,
		QualifyThreshold: DefaultQualifyThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// Validate rejects out-of-range thresholds.
func (o Options) Validate() error {
	if o.FuzzyThreshold <= 0 || o.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in (0, 1], got %v", o.FuzzyThreshold)
	}
	if o.KeywordThreshold <= 0 || o.KeywordThreshold > 1 {
		return fmt.Errorf("keyword threshold must be in (0, 1], got %v", o.KeywordThreshold)
	}
	if o.QualifyThreshold < 0 || o.QualifyThreshold > 100 {
		return fmt.Errorf("qualify threshold must be in [0, 100], got %v", o.QualifyThreshold)
	}
	if o.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", o.Cooldown)
	}
	for _, t := range o.ReviewTypes {
		if !t.FreeText() {
			return fmt.Errorf("review policy only applies to free-text types, got %q", t)
		}
	}
	return nil
}

// Engine bundles the grading components configured from one Options value.
type Engine struct {
	Grader          Grader
	Aggregator      Aggregator
	Gate            Gate
	StrictQuestions bool
}

// NewEngine builds an Engine from opts.
func NewEngine(opts Options) Engine {
	matcher := DefaultMatcher()
	matcher.FuzzyThreshold = opts.FuzzyThreshold
	matcher.KeywordThreshold = opts.KeywordThreshold

	return Engine{
		Grader:          NewGrader(matcher),
		Aggregator:      NewAggregator(opts.QualifyThreshold, opts.ReviewTypes...),
		Gate:            Gate{Cooldown: opts.Cooldown},
		StrictQuestions: opts.StrictQuestions,
	}
}

// ValidateQuestions checks every question of a generated exam.
func (e Engine) ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return ValidationError("questions", "exam needs at least one question")
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := ValidateQuestion(q, e.StrictQuestions); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
		if q.ID == "" {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			return ValidationError("questions", "duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
