package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "exam",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of AI question generation requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exam",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of AI question generation failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI question generator.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGenerator implements QuestionGenerator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-exam-engine/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIGenerator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_generator").Logger(),
	}, nil
}

// GenerateQuestions asks the model for count questions and converts them into engine questions.
func (g *OpenAIGenerator) GenerateQuestions(parent context.Context, profile CandidateProfile, count int) ([]grading.Question, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate_questions", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("question.count", count),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: generatorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(profile, count),
			},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, g.fail(span, fmt.Errorf("openai generate: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	questions, err := ParseQuestions(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, g.fail(span, err)
	}

	g.logger.Debug().
		Str("candidate_id", profile.CandidateID).
		Int("questions", len(questions)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("questions generated")

	return questions, nil
}

func (g *OpenAIGenerator) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func generatorSystemPrompt() string {
	return "You are an exam generator. Always return valid JSON only."
}

func buildUserPrompt(profile CandidateProfile, count int) string {
	skills := "None"
	if len(profile.Skills) > 0 {
		skills = strings.Join(profile.Skills, ", ")
	}
	experience := profile.Experience
	if experience == "" {
		experience = "0"
	}
	qualification := profile.Qualification
	if qualification == "" {
		qualification = "N/A"
	}

	builder := strings.Builder{}
	fmt.Fprintf(&builder, "Generate %d technical interview questions for a candidate.\n", count)
	builder.WriteString("Candidate Profile:\n")
	fmt.Fprintf(&builder, "- Name: %s\n", profile.Name)
	fmt.Fprintf(&builder, "- Experience: %s years\n", experience)
	fmt.Fprintf(&builder, "- Skills: %s\n", skills)
	fmt.Fprintf(&builder, "- Qualification: %s\n\n", qualification)
	builder.WriteString("Requirements:\n")
	builder.WriteString("- Mix of MCQs, MSQs, short-answer, and scenario-based questions.\n")
	builder.WriteString("- Each question must follow this JSON format:\n")
	builder.WriteString(`{"question": "string", "type": "mcq|msq|short|scenario", "options": ["opt1","opt2"], "correctAnswer": ["opt1"]}`)
	builder.WriteString("\nReturn ONLY a JSON array.")
	return builder.String()
}

// ParseQuestions decodes a model response into questions, tolerating code fences and the short type aliases.
func ParseQuestions(content string) ([]grading.Question, error) {
	raw := stripCodeFences(content)

	var items []rawQuestion
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("parse questions json: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("model returned no questions")
	}

	questions := make([]grading.Question, 0, len(items))
	for i, item := range items {
		question, err := item.toQuestion()
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, question)
	}
	return questions, nil
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// ParseType maps wire names and their short aliases to a question type.
func ParseType(value string) (grading.QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mcq", string(grading.SingleChoice):
		return grading.SingleChoice, true
	case "msq", string(grading.MultiChoice):
		return grading.MultiChoice, true
	case "short", string(grading.ShortText):
		return grading.ShortText, true
	case "scenario", string(grading.Descriptive):
		return grading.Descriptive, true
	}
	return "", false
}

func (r rawQuestion) toQuestion() (grading.Question, error) {
	text := strings.TrimSpace(r.Question)
	if text == "" {
		text = strings.TrimSpace(r.Text)
	}

	questionType, ok := ParseType(r.Type)
	if !ok {
		return grading.Question{}, fmt.Errorf("unknown question type %q", r.Type)
	}

	correct := r.CorrectAnswer
	if correct.IsAbsent() {
		correct = r.CorrectSnake
	}

	switch questionType {
	case grading.ShortText, grading.Descriptive:
		if correct.IsSequence() {
			choices := correct.Choices()
			first := ""
			if len(choices) > 0 {
				first = choices[0]
			}
			correct = grading.TextAnswer(first)
		}
	case grading.SingleChoice:
		if choices := correct.Choices(); correct.IsSequence() && len(choices) == 1 {
			correct = grading.TextAnswer(choices[0])
		}
	}

	options := r.Options
	if options == nil {
		options = []string{}
	}

	return grading.Question{
		ID:            strings.TrimSpace(r.ID),
		Text:          text,
		Type:          questionType,
		Options:       options,
		CorrectAnswer: correct,
	}, nil
}
