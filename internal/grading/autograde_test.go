package grading

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func singleChoice(id, correct string) Question {
	return Question{ID: id, Text: "Pick one", Type: SingleChoice, Options: []string{"Paris", "Rome", "Berlin"}, CorrectAnswer: TextAnswer(correct)}
}

func multiChoice(id string, correct ...string) Question {
	return Question{ID: id, Text: "Pick many", Type: MultiChoice, Options: []string{"A", "B", "C"}, CorrectAnswer: ChoicesAnswer(correct...)}
}

func descriptive(id, reference string) Question {
	return Question{ID: id, Text: "Explain", Type: Descriptive, CorrectAnswer: TextAnswer(reference)}
}

func TestAnswerJSON(t *testing.T) {
	var sub Submission
	require.NoError(t, json.Unmarshal([]byte(`{"0":"A","1":["B","C"],"2":null}`), &sub))
	require.True(t, sub["0"].IsScalar())
	require.Equal(t, "A", sub["0"].Text())
	require.True(t, sub["1"].IsSequence())
	require.Equal(t, []string{"B", "C"}, sub["1"].Choices())
	require.True(t, sub["2"].IsAbsent())

	var bad Submission
	require.Error(t, json.Unmarshal([]byte(`{"0":7}`), &bad))
	require.Error(t, json.Unmarshal([]byte(`{"0":["A",1]}`), &bad))

	encoded, err := json.Marshal(Submission{"0": TextAnswer("x"), "1": ChoicesAnswer()})
	require.NoError(t, err)
	require.JSONEq(t, `{"0":"x","1":[]}`, string(encoded))
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		name     string
		question Question
		given    Answer
		wantType QuestionType
		valid    bool
	}{
		{"single scalar", singleChoice("q", "A"), TextAnswer("A"), SingleChoice, true},
		{"single given list with set key", Question{Type: SingleChoice, CorrectAnswer: ChoicesAnswer("A", "B")}, ChoicesAnswer("A"), MultiChoice, true},
		{"single given list with scalar key", singleChoice("q", "A"), ChoicesAnswer("A"), SingleChoice, false},
		{"multi given scalar with scalar key", Question{Type: MultiChoice, CorrectAnswer: TextAnswer("A")}, TextAnswer("A"), SingleChoice, true},
		{"multi given scalar with set key", multiChoice("q", "A"), TextAnswer("A"), MultiChoice, false},
		{"multi sequence", multiChoice("q", "A"), ChoicesAnswer("A"), MultiChoice, true},
		{"text given list", descriptive("q", "ref"), ChoicesAnswer("ref"), Descriptive, false},
		{"absent", descriptive("q", "ref"), Answer{}, Descriptive, false},
		{"unknown type", Question{Type: "essay", CorrectAnswer: TextAnswer("x")}, TextAnswer("x"), "essay", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reconcile(tc.question, tc.given)
			require.Equal(t, tc.valid, res.Valid, res.Reason)
			require.Equal(t, tc.wantType, res.Type)
		})
	}
}

func TestReconcileDoesNotMutateQuestion(t *testing.T) {
	q := Question{Type: SingleChoice, CorrectAnswer: ChoicesAnswer("A", "B")}
	Reconcile(q, ChoicesAnswer("A", "B"))
	require.Equal(t, SingleChoice, q.Type)
}

func TestEvaluateChoiceQuestions(t *testing.T) {
	g := NewGrader(DefaultMatcher())

	require.True(t, g.Evaluate(singleChoice("q", "Paris"), TextAnswer(" paris ")))
	require.False(t, g.Evaluate(singleChoice("q", "Paris"), TextAnswer("Rome")))

	require.True(t, g.Evaluate(multiChoice("q", "B", "A"), ChoicesAnswer("A", "B")))
	require.True(t, g.Evaluate(multiChoice("q", "B", "A"), ChoicesAnswer(" a", "b", "A")), "duplicates collapse in the set")
	require.False(t, g.Evaluate(multiChoice("q", "A", "B"), ChoicesAnswer("A")), "partial selection")
	require.False(t, g.Evaluate(multiChoice("q", "A", "B"), ChoicesAnswer("A", "B", "C")), "extra selection")

	skewed := Question{Type: SingleChoice, Options: []string{"A", "B"}, CorrectAnswer: ChoicesAnswer("A", "B")}
	require.True(t, g.Evaluate(skewed, ChoicesAnswer("b", "a")))

	skewedMulti := Question{Type: MultiChoice, Options: []string{"A", "B"}, CorrectAnswer: TextAnswer("A")}
	require.True(t, g.Evaluate(skewedMulti, TextAnswer("a")))
}

func TestAutoGrade(t *testing.T) {
	g := NewGrader(DefaultMatcher())
	questions := []Question{
		singleChoice("q1", "Paris"),
		multiChoice("q2", "A", "B"),
		descriptive("q3", "polymorphism"),
	}
	sub := Submission{
		"0": TextAnswer("PARIS"),
		"1": ChoicesAnswer("A"),
		"2": TextAnswer("polymorfism"),
	}

	result, err := g.AutoGrade(questions, sub)
	require.NoError(t, err)
	require.Equal(t, 2, result.Score)
	require.Len(t, result.PerQuestion, 3)
	require.True(t, *result.PerQuestion[0])
	require.False(t, *result.PerQuestion[1])
	require.True(t, *result.PerQuestion[2])
}

func TestValidateSubmission(t *testing.T) {
	questions := []Question{singleChoice("q1", "Paris"), multiChoice("q2", "A")}

	cases := map[string]Submission{
		"nil":           nil,
		"missing key":   {"0": TextAnswer("Paris")},
		"wrong key":     {"0": TextAnswer("Paris"), "5": ChoicesAnswer("A")},
		"null entry":    {"0": TextAnswer("Paris"), "1": {}},
		"shape":         {"0": TextAnswer("Paris"), "1": TextAnswer("B")},
		"too many keys": {"0": TextAnswer("Paris"), "1": ChoicesAnswer("A"), "2": TextAnswer("x")},
	}
	for name, sub := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateSubmission(questions, sub)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrValidation))
			require.Equal(t, "ValidationError", KindOf(err))
		})
	}

	require.NoError(t, ValidateSubmission(questions, Submission{"0": TextAnswer("Paris"), "1": ChoicesAnswer("A")}))
}

func TestValidateQuestion(t *testing.T) {
	require.NoError(t, ValidateQuestion(singleChoice("q", "A"), true))
	require.Error(t, ValidateQuestion(Question{Text: " ", Type: Descriptive, CorrectAnswer: TextAnswer("x")}, false))
	require.Error(t, ValidateQuestion(Question{Text: "x", Type: SingleChoice, Options: []string{"A"}, CorrectAnswer: TextAnswer("A")}, false))
	require.Error(t, ValidateQuestion(Question{Text: "x", Type: MultiChoice, Options: []string{"A", "B"}, CorrectAnswer: ChoicesAnswer()}, false))

	skewed := Question{Text: "x", Type: SingleChoice, Options: []string{"A", "B"}, CorrectAnswer: ChoicesAnswer("A", "B")}
	require.NoError(t, ValidateQuestion(skewed, false))
	err := ValidateQuestion(skewed, true)
	require.ErrorIs(t, err, ErrValidation)
}
