package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-engine/internal/config"
	"github.com/noah-isme/gema-exam-engine/internal/database"
	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/handler"
	"github.com/noah-isme/gema-exam-engine/internal/middleware"
	"github.com/noah-isme/gema-exam-engine/internal/repository"
	"github.com/noah-isme/gema-exam-engine/internal/router"
	"github.com/noah-isme/gema-exam-engine/internal/service"
	"github.com/noah-isme/gema-exam-engine/pkg/ai"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examd",
		Short:         "Exam grading and evaluation engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	serve := serveCmd()
	root.AddCommand(serve, migrateCmd(), gradeCmd())

	// "serve" runs when no subcommand is given.
	root.RunE = serve.RunE

	return root
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cmd)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			db, err := database.ConnectPostgres(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}

			logger.Info().Msg("database migrated")
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.RequireServe(); err != nil {
		return err
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, result cache and redis events disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer natsConn.Close()
	}

	generator, err := questionGenerator(cfg, logger)
	if err != nil {
		return err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	examRepo := repository.NewExamRepository(db)
	activityLogs := repository.NewActivityLogRepository(db)
	activityService := service.NewActivityService(activityLogs, logger)
	examService := service.NewExamService(
		examRepo,
		generator,
		grading.NewEngine(cfg.Grading),
		validate,
		service.ExamServiceOptions{
			Activity:      activityService,
			Events:        service.NewEventPublisher(redisClient, natsConn, cfg.EventChannel, logger),
			Cache:         redisClient,
			CacheTTL:      cfg.ResultCacheTTL,
			QuestionCount: cfg.QuestionCount,
			ApproveDelay:  cfg.ApproveDelay,
		},
		logger,
	)

	examHandler := handler.NewExamHandler(examService, handler.ExamHandlerOptions{
		Activity:        activityService,
		Proctoring:      service.NewProctoringService(examRepo, activityService, activityLogs, validate, logger),
		GenerateLimiter: middleware.RateLimit("exam-generate", cfg.GenerateLimit, cfg.GenerateWindow),
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:         &logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:   examHandler,
		HealthChecks:  dependencyChecks(db, redisClient, natsConn),
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Msg("exam server listening")
		errCh <- app.Listen(cfg.HTTPAddress())
	}()

	return waitForShutdown(ctx, app, errCh, logger)
}

func questionGenerator(cfg config.Config, logger zerolog.Logger) (ai.QuestionGenerator, error) {
	if cfg.QuestionBank != "" {
		bank, err := ai.LoadQuestionBank(cfg.QuestionBank, true)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.QuestionBank).Msg("serving questions from bank")
		return bank, nil
	}

	return ai.NewOpenAIGenerator(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  logger,
	})
}

func dependencyChecks(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}

	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	if natsConn != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "nats",
			Check: func(context.Context) error {
				if !natsConn.IsConnected() {
					return fmt.Errorf("nats status %s", natsConn.Status())
				}
				return nil
			},
		})
	}

	return checks
}

func waitForShutdown(parent context.Context, app *fiber.App, errCh <-chan error, logger zerolog.Logger) error {
	shutdownCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-shutdownCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
