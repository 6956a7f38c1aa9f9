package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-exam-engine/internal/config"
	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/pkg/ai"
)

type gradeReport struct {
	AutoScore   int     `json:"auto_score"`
	ManualScore float64 `json:"manual_score"`
	Score       float64 `json:"score"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
	Qualified   bool    `json:"qualified"`
	PerQuestion []*bool `json:"per_question"`
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade an answer file against a question file offline",
		Args:  cobra.NoArgs,
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.String("questions", "", "Path to the questions JSON file")
	f.String("answers", "", "Path to the answers JSON file keyed by question index")
	f.String("grades", "", "Optional JSON object of manual scores keyed by question id")
	_ = cmd.MarkFlagRequired("questions")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func runGrade(cmd *cobra.Command, _ []string) error {
	questionsPath, _ := cmd.Flags().GetString("questions")
	answersPath, _ := cmd.Flags().GetString("answers")
	gradesPath, _ := cmd.Flags().GetString("grades")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	engine := grading.NewEngine(cfg.Grading)

	content, err := os.ReadFile(questionsPath)
	if err != nil {
		return fmt.Errorf("read questions: %w", err)
	}
	questions, err := ai.ParseQuestions(string(content))
	if err != nil {
		return err
	}
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	if err := engine.ValidateQuestions(questions); err != nil {
		return err
	}

	var answers grading.Submission
	if err := readJSON(answersPath, &answers); err != nil {
		return fmt.Errorf("read answers: %w", err)
	}

	result, err := engine.Grader.AutoGrade(questions, answers)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	exam := grading.ExamInstance{
		ID:               "offline",
		Questions:        questions,
		SubmittedAnswers: answers,
		PerQuestion:      result.PerQuestion,
		Status:           grading.StatusGraded,
		SubmittedAt:      &now,
		GradedAt:         &now,
	}

	if gradesPath != "" {
		var manual map[string]float64
		if err := readJSON(gradesPath, &manual); err != nil {
			return fmt.Errorf("read grades: %w", err)
		}
		for questionID, score := range manual {
			if _, err := grading.ApplyManualGrade(&exam, questionID, score, "", now); err != nil {
				return err
			}
		}
	}

	scores := engine.Aggregator.Aggregate(exam)
	report := gradeReport{
		AutoScore:   scores.AutoScore,
		ManualScore: scores.ManualScore,
		Score:       scores.FinalScore,
		Total:       scores.Total,
		Percentage:  scores.Percentage,
		Qualified:   scores.Qualified,
		PerQuestion: result.PerQuestion,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func readJSON(path string, target interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(content, target)
}
