package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func gradedExam(t *testing.T, g Grader, questions []Question, sub Submission) ExamInstance {
	t.Helper()
	result, err := g.AutoGrade(questions, sub)
	require.NoError(t, err)
	return ExamInstance{
		ID:               "exam-1",
		Questions:        questions,
		SubmittedAnswers: sub,
		PerQuestion:      result.PerQuestion,
		Status:           StatusGraded,
	}
}

func TestEndToEndScoring(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	questions := []Question{
		singleChoice("q1", "Paris"),
		singleChoice("q2", "Rome"),
		multiChoice("q3", "A", "B"),
		descriptive("q4", "goroutines are multiplexed onto os threads"),
	}
	sub := Submission{
		"0": TextAnswer("paris"),
		"1": TextAnswer("Rome"),
		"2": ChoicesAnswer("A"),
		"3": TextAnswer("no idea"),
	}
	exam := gradedExam(t, engine.Grader, questions, sub)

	scores := engine.Aggregator.Aggregate(exam)
	require.Equal(t, 2, scores.AutoScore)
	require.Equal(t, 4, scores.Total)

	_, err := ApplyManualGrade(&exam, "q4", 0.5, "partially right", time.Now())
	require.NoError(t, err)

	scores = engine.Aggregator.Aggregate(exam)
	require.Equal(t, 2, scores.AutoScore)
	require.InDelta(t, 0.5, scores.ManualScore, 1e-9)
	require.InDelta(t, 2.5, scores.FinalScore, 1e-9)
	require.InDelta(t, 62.5, scores.Percentage, 1e-9)
	require.False(t, scores.Qualified)
}

func TestAggregateIsIdempotent(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	exam := gradedExam(t, engine.Grader,
		[]Question{singleChoice("q1", "Paris"), descriptive("q2", "x"), descriptive("q3", "y")},
		Submission{"0": TextAnswer("Paris"), "1": TextAnswer("?"), "2": TextAnswer("?")})

	_, err := ApplyManualGrade(&exam, "q2", 0.1, "", time.Now())
	require.NoError(t, err)
	_, err = ApplyManualGrade(&exam, "q3", 0.2, "", time.Now())
	require.NoError(t, err)

	first := engine.Aggregator.Aggregate(exam)
	second := engine.Aggregator.Aggregate(exam)
	require.Equal(t, first, second)
	require.InDelta(t, 1.3, first.FinalScore, 1e-9)
}

func TestAggregateFreeTextExcludedOnceManualInPlay(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	exam := gradedExam(t, engine.Grader,
		[]Question{singleChoice("q1", "Paris"), descriptive("q2", "polymorphism"), descriptive("q3", "encapsulation")},
		Submission{"0": TextAnswer("Paris"), "1": TextAnswer("polymorphism"), "2": TextAnswer("encapsulation")})

	require.Equal(t, 3, engine.Aggregator.Aggregate(exam).AutoScore)

	_, err := ApplyManualGrade(&exam, "q2", 1, "", time.Now())
	require.NoError(t, err)
	scores := engine.Aggregator.Aggregate(exam)
	require.Equal(t, 1, scores.AutoScore)
	require.InDelta(t, 2.0, scores.FinalScore, 1e-9)
}

func TestAggregateReviewPolicy(t *testing.T) {
	opts := DefaultOptions()
	opts.ReviewTypes = []QuestionType{Descriptive}
	engine := NewEngine(opts)

	exam := gradedExam(t, engine.Grader,
		[]Question{singleChoice("q1", "Paris"), descriptive("q2", "polymorphism"), {ID: "q3", Text: "t", Type: ShortText, CorrectAnswer: TextAnswer("chan")}},
		Submission{"0": TextAnswer("Paris"), "1": TextAnswer("polymorphism"), "2": TextAnswer("chan")})

	scores := engine.Aggregator.Aggregate(exam)
	require.Equal(t, 2, scores.AutoScore, "descriptive is provisional, short_text still counts")
}

func TestAggregateQualification(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	questions := []Question{
		singleChoice("q1", "Paris"), singleChoice("q2", "Paris"), singleChoice("q3", "Paris"),
		singleChoice("q4", "Paris"), singleChoice("q5", "Paris"), singleChoice("q6", "Paris"),
		singleChoice("q7", "Paris"), singleChoice("q8", "Paris"), singleChoice("q9", "Paris"),
		singleChoice("q10", "Paris"),
	}
	sub := Submission{}
	for i := range questions {
		answer := "Paris"
		if i >= 7 {
			answer = "Rome"
		}
		sub[IndexKey(i)] = TextAnswer(answer)
	}
	scores := engine.Aggregator.Aggregate(gradedExam(t, engine.Grader, questions, sub))
	require.InDelta(t, 70.0, scores.Percentage, 1e-9)
	require.True(t, scores.Qualified)
}

func TestAggregateRoundsPercentage(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	exam := gradedExam(t, engine.Grader,
		[]Question{singleChoice("q1", "Paris"), singleChoice("q2", "Paris"), singleChoice("q3", "Paris")},
		Submission{"0": TextAnswer("Paris"), "1": TextAnswer("Rome"), "2": TextAnswer("Rome")})
	require.Equal(t, 33.33, engine.Aggregator.Aggregate(exam).Percentage)

	require.Equal(t, 0.0, engine.Aggregator.Aggregate(ExamInstance{}).Percentage)
}

func TestScoresApply(t *testing.T) {
	exam := ExamInstance{}
	Scores{AutoScore: 2, FinalScore: 2}.Apply(&exam)
	require.Equal(t, 2, *exam.AutoScore)
	require.Nil(t, exam.ManualScore)

	exam.Ledger = Ledger{"q": {QuestionID: "q", Score: 0.5}}
	Scores{AutoScore: 2, ManualScore: 0.5, FinalScore: 2.5}.Apply(&exam)
	require.InDelta(t, 0.5, *exam.ManualScore, 1e-9)
	require.InDelta(t, 2.5, *exam.FinalScore, 1e-9)
}
