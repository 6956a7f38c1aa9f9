package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/gema-exam-engine/internal/grading"
)

// Config holds runtime configuration values for the exam service.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	AllowedOrigins string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	EventChannel   string
	JWTSecret      string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	QuestionBank   string
	QuestionCount  int
	ApproveDelay   time.Duration
	ResultCacheTTL time.Duration
	GenerateLimit  int
	GenerateWindow time.Duration
	Grading        grading.Options
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXAM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return load(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Exam Engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allowed_origins", "*")
	v.SetDefault("events.channel", "exam:events")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("exam.question_count", 28)
	v.SetDefault("exam.approve_delay", "60m")
	v.SetDefault("exam.generate_limit", 5)
	v.SetDefault("exam.generate_window", "1m")
	v.SetDefault("result.cache_ttl", "5m")
	v.SetDefault("grading.fuzzy_threshold", grading.DefaultFuzzyThreshold)
	v.SetDefault("grading.keyword_threshold", grading.DefaultKeywordThreshold)
	v.SetDefault("grading.qualify_threshold", grading.DefaultQualifyThreshold)
	v.SetDefault("grading.cooldown", grading.DefaultCooldown.String())
	v.SetDefault("grading.review_types", "")
	v.SetDefault("grading.strict_questions", false)
}

func load(v *viper.Viper) (Config, error) {
	setDefaults(v)

	approveDelay, err := parseDuration(v, "exam.approve_delay")
	if err != nil {
		return Config{}, err
	}
	generateWindow, err := parseDuration(v, "exam.generate_window")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "result.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	cooldown, err := parseDuration(v, "grading.cooldown")
	if err != nil {
		return Config{}, err
	}

	reviewTypes, err := parseReviewTypes(v.GetString("grading.review_types"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		AllowedOrigins: v.GetString("app.allowed_origins"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		EventChannel:   v.GetString("events.channel"),
		JWTSecret:      v.GetString("jwt.secret"),
		OpenAIAPIKey:   v.GetString("openai.api_key"),
		OpenAIModel:    v.GetString("openai.model"),
		OpenAIBaseURL:  v.GetString("openai.base_url"),
		QuestionBank:   v.GetString("exam.question_bank"),
		QuestionCount:  v.GetInt("exam.question_count"),
		ApproveDelay:   approveDelay,
		ResultCacheTTL: cacheTTL,
		GenerateLimit:  v.GetInt("exam.generate_limit"),
		GenerateWindow: generateWindow,
		Grading: grading.Options{
			FuzzyThreshold:   v.GetFloat64("grading.fuzzy_threshold"),
			KeywordThreshold: v.GetFloat64("grading.keyword_threshold"),
			QualifyThreshold: v.GetFloat64("grading.qualify_threshold"),
			Cooldown:         cooldown,
			ReviewTypes:      reviewTypes,
			StrictQuestions:  v.GetBool("grading.strict_questions"),
		},
	}

	if err := cfg.Grading.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid grading configuration: %w", err)
	}

	if cfg.QuestionCount <= 0 {
		return Config{}, fmt.Errorf("exam question count must be positive, got %d", cfg.QuestionCount)
	}

	if cfg.ApproveDelay < 0 {
		return Config{}, fmt.Errorf("exam approve delay must not be negative")
	}

	return cfg, nil
}

// RequireServe checks the settings needed to run the HTTP server.
func (c Config) RequireServe() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be provided")
	}
	if c.OpenAIAPIKey == "" && c.QuestionBank == "" {
		return fmt.Errorf("either an openai api key or a question bank file must be provided")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func parseReviewTypes(raw string) ([]grading.QuestionType, error) {
	var types []grading.QuestionType
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		t := grading.QuestionType(name)
		if !t.FreeText() {
			return nil, fmt.Errorf("invalid grading.review_types entry %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}
