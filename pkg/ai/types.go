package ai

import (
	"context"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
)

// CandidateProfile describes the candidate an exam is tailored to.
type CandidateProfile struct {
	CandidateID   string
	Name          string
	Experience    string
	Skills        []string
	Qualification string
}

// QuestionGenerator produces a question set for a candidate.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, profile CandidateProfile, count int) ([]grading.Question, error)
}

// rawQuestion mirrors the loose JSON shape returned by language models.
type rawQuestion struct {
	ID            string         `json:"id"`
	Question      string         `json:"question"`
	Text          string         `json:"text"`
	Type          string         `json:"type"`
	Options       []string       `json:"options"`
	CorrectAnswer grading.Answer `json:"correctAnswer"`
	CorrectSnake  grading.Answer `json:"correct_answer"`
}
