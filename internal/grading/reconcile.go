package grading

import "fmt"

// Resolution is the effective type used to evaluate one answer.
type Resolution struct {
	Type   QuestionType
	Valid  bool
	Reason string
}

// Reconcile resolves the effective question type for the given answer. Upstream
// generators sometimes declare a choice type that disagrees with the shape of
// correct_answer; when the given answer agrees with correct_answer the question is
// evaluated as the other choice type. The question itself is never modified.
func Reconcile(q Question, given Answer) Resolution {
	if given.IsAbsent() {
		return Resolution{Type: q.Type, Reason: "answer is missing"}
	}

	switch {
	case q.Type == SingleChoice && given.IsSequence() && q.CorrectAnswer.IsSequence():
		return Resolution{Type: MultiChoice, Valid: true, Reason: "single_choice with a set of correct answers evaluated as multi_choice"}
	case q.Type == MultiChoice && given.IsScalar() && q.CorrectAnswer.IsScalar():
		return Resolution{Type: SingleChoice, Valid: true, Reason: "multi_choice with a single correct answer evaluated as single_choice"}
	}

	switch q.Type {
	case SingleChoice, ShortText, Descriptive:
		if !given.IsScalar() {
			return Resolution{Type: q.Type, Reason: fmt.Sprintf("%s answer must be a string", q.Type)}
		}
	case MultiChoice:
		if !given.IsSequence() {
			return Resolution{Type: q.Type, Reason: "multi_choice answer must be an array of strings"}
		}
	default:
		return Resolution{Type: q.Type, Reason: fmt.Sprintf("unknown question type %q", q.Type)}
	}

	return Resolution{Type: q.Type, Valid: true}
}

// ValidateQuestion checks the structural invariants of a question. When strict is
// set the declared type must also agree with the shape of the correct answer.
func ValidateQuestion(q Question, strict bool) error {
	if Normalize(q.Text) == "" {
		return ValidationError("text", "question text is required")
	}
	if !q.Type.Valid() {
		return ValidationError("type", "unknown question type %q", q.Type)
	}
	if q.CorrectAnswer.IsAbsent() {
		return ValidationError("correct_answer", "correct answer is required")
	}
	if q.Type.AutoGradable() && len(q.Options) < 2 {
		return ValidationError("options", "%s question needs at least two options", q.Type)
	}
	if q.CorrectAnswer.IsSequence() && len(q.CorrectAnswer.choices) == 0 {
		return ValidationError("correct_answer", "correct answer set must not be empty")
	}

	if !strict {
		return nil
	}
	switch q.Type {
	case MultiChoice:
		if !q.CorrectAnswer.IsSequence() {
			return ValidationError("correct_answer", "multi_choice correct answer must be a set")
		}
	default:
		if !q.CorrectAnswer.IsScalar() {
			return ValidationError("correct_answer", "%s correct answer must be a single string", q.Type)
		}
	}
	return nil
}
