package grading

// AutoResult is the outcome of automatically grading a submission.
type AutoResult struct {
	Score       int
	PerQuestion []*bool
}

// Grader evaluates submissions against question sets.
type Grader struct {
	Matcher Matcher
}

// NewGrader builds a Grader using the given text matcher.
func NewGrader(m Matcher) Grader {
	return Grader{Matcher: m}
}

// ValidateSubmission checks that sub holds exactly one non-null answer per
// question index and that every answer has a shape the question accepts.
func ValidateSubmission(questions []Question, sub Submission) error {
	if sub == nil {
		return ValidationError("answers", "answers are required")
	}
	if len(sub) != len(questions) {
		return ValidationError("answers", "expected %d answers, got %d", len(questions), len(sub))
	}

	for i, q := range questions {
		key := IndexKey(i)
		given, ok := sub[key]
		if !ok || given.IsAbsent() {
			return ValidationError("answers."+key, "no answer provided for question %d", i)
		}
		if res := Reconcile(q, given); !res.Valid {
			return ValidationError("answers."+key, "%s", res.Reason)
		}
	}
	return nil
}

// AutoGrade scores every question of a validated submission. The per-question
// flags are positionally aligned with questions.
func (g Grader) AutoGrade(questions []Question, sub Submission) (AutoResult, error) {
	if err := ValidateSubmission(questions, sub); err != nil {
		return AutoResult{}, err
	}

	result := AutoResult{PerQuestion: make([]*bool, len(questions))}
	for i, q := range questions {
		correct := g.Evaluate(q, sub[IndexKey(i)])
		result.PerQuestion[i] = &correct
		if correct {
			result.Score++
		}
	}
	return result, nil
}

// Evaluate reports whether a single answer is correct. Answers whose shape the
// question does not accept are incorrect.
func (g Grader) Evaluate(q Question, given Answer) bool {
	res := Reconcile(q, given)
	if !res.Valid {
		return false
	}

	switch res.Type {
	case SingleChoice:
		return Normalize(given.Text()) == Normalize(referenceText(q.CorrectAnswer))
	case MultiChoice:
		if !q.CorrectAnswer.IsSequence() {
			return false
		}
		return setsEqual(normalizeSet(given.choices), normalizeSet(q.CorrectAnswer.choices))
	case ShortText, Descriptive:
		return g.Matcher.IsTextuallyCorrect(given.Text(), referenceText(q.CorrectAnswer))
	}
	return false
}

// referenceText picks the scalar reference of a question; generators
// occasionally wrap it in a one-element list.
func referenceText(a Answer) string {
	if a.IsSequence() {
		if len(a.choices) == 0 {
			return ""
		}
		return a.choices[0]
	}
	return a.Text()
}
