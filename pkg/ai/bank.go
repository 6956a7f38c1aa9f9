package ai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
)

// QuestionBank serves questions from a fixed pool. It backs offline runs and
// deployments without a model key.
type QuestionBank struct {
	questions []grading.Question
	shuffle   bool
}

// NewQuestionBank wraps an in-memory pool.
func NewQuestionBank(questions []grading.Question, shuffle bool) *QuestionBank {
	return &QuestionBank{questions: questions, shuffle: shuffle}
}

// LoadQuestionBank reads a pool from a JSON file in the same shape the model returns.
func LoadQuestionBank(path string, shuffle bool) (*QuestionBank, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	questions, err := ParseQuestions(string(content))
	if err != nil {
		return nil, err
	}
	return NewQuestionBank(questions, shuffle), nil
}

// GenerateQuestions returns up to count questions from the pool.
func (b *QuestionBank) GenerateQuestions(_ context.Context, _ CandidateProfile, count int) ([]grading.Question, error) {
	if len(b.questions) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}

	pool := make([]grading.Question, len(b.questions))
	copy(pool, b.questions)
	if b.shuffle {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}
	if count > 0 && count < len(pool) {
		pool = pool[:count]
	}
	return pool, nil
}
