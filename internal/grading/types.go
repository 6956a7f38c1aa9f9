package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	ShortText    QuestionType = "short_text"
	Descriptive  QuestionType = "descriptive"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, ShortText, Descriptive:
		return true
	}
	return false
}

// AutoGradable reports whether correctness is deterministic without a reviewer.
func (t QuestionType) AutoGradable() bool {
	return t == SingleChoice || t == MultiChoice
}

// FreeText reports whether answers of this type are compared textually.
func (t QuestionType) FreeText() bool {
	return t == ShortText || t == Descriptive
}

// Status is the lifecycle state of an exam instance.
type Status string

const (
	StatusGenerated      Status = "generated"
	StatusSubmitted      Status = "submitted"
	StatusGraded         Status = "graded"
	StatusManuallyGraded Status = "manually_graded"
	StatusUnderReview    Status = "under_review"
)

// HasSubmission reports whether answers have been recorded for the exam.
func (s Status) HasSubmission() bool {
	switch s {
	case StatusSubmitted, StatusGraded, StatusManuallyGraded, StatusUnderReview:
		return true
	}
	return false
}

type answerShape uint8

const (
	shapeAbsent answerShape = iota
	shapeScalar
	shapeSequence
)

// Answer is either a scalar string or a sequence of strings. The zero value is absent.
type Answer struct {
	shape   answerShape
	text    string
	choices []string
}

// TextAnswer builds a scalar answer.
func TextAnswer(text string) Answer {
	return Answer{shape: shapeScalar, text: text}
}

// ChoicesAnswer builds a sequence answer.
func ChoicesAnswer(choices ...string) Answer {
	cp := make([]string, len(choices))
	copy(cp, choices)
	return Answer{shape: shapeSequence, choices: cp}
}

func (a Answer) IsAbsent() bool   { return a.shape == shapeAbsent }
func (a Answer) IsScalar() bool   { return a.shape == shapeScalar }
func (a Answer) IsSequence() bool { return a.shape == shapeSequence }

// Text returns the scalar value, or "" for other shapes.
func (a Answer) Text() string { return a.text }

// Choices returns a copy of the sequence value.
func (a Answer) Choices() []string {
	cp := make([]string, len(a.choices))
	copy(cp, a.choices)
	return cp
}

// MarshalJSON encodes the answer as a JSON string, array or null.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.shape {
	case shapeScalar:
		return json.Marshal(a.text)
	case shapeSequence:
		if a.choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.choices)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a string, an array of strings, or null.
func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = Answer{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*a = TextAnswer(text)
		return nil
	case '[':
		var choices []string
		if err := json.Unmarshal(trimmed, &choices); err != nil {
			return fmt.Errorf("answer array must contain only strings: %w", err)
		}
		*a = ChoicesAnswer(choices...)
		return nil
	default:
		return fmt.Errorf("answer must be a string or an array of strings")
	}
}

func (a Answer) String() string {
	switch a.shape {
	case shapeScalar:
		return a.text
	case shapeSequence:
		return fmt.Sprint(a.choices)
	default:
		return ""
	}
}

// Question is a single exam item.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer Answer       `json:"correct_answer"`
}

// Submission maps a stringified question index to the given answer.
type Submission map[string]Answer

// IndexKey returns the submission key for question index i.
func IndexKey(i int) string { return strconv.Itoa(i) }

// ManualGradeRecord is a reviewer-assigned score for one free-text question.
type ManualGradeRecord struct {
	QuestionID string    `json:"question_id"`
	Score      float64   `json:"score"`
	Feedback   string    `json:"feedback"`
	GradedAt   time.Time `json:"graded_at"`
}

// ExamInstance is the full grading state of one candidate's exam.
type ExamInstance struct {
	ID               string
	CandidateID      string
	Questions        []Question
	SubmittedAnswers Submission
	PerQuestion      []*bool
	AutoScore        *int
	ManualScore      *float64
	FinalScore       *float64
	Status           Status
	Ledger           Ledger
	GeneratedAt      time.Time
	SubmittedAt      *time.Time
	GradedAt         *time.Time
	ReviewedAt       *time.Time
}

// QuestionByID returns the question with the given id and its index.
func (e ExamInstance) QuestionByID(id string) (Question, int, bool) {
	for i, q := range e.Questions {
		if q.ID == id {
			return q, i, true
		}
	}
	return Question{}, -1, false
}
