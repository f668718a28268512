package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/engine"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; guidance cache and redis events disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable; nats events disabled")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := engine.NewGateway(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build llm gateway")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	grader := engine.New(gateway, redisClient, cfg, validate, logger)

	problemRepo := repository.NewProblemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	publisher := service.NewEventPublisher(redisClient, "", natsConn, "", logger)
	problemService := service.NewProblemService(problemRepo, validate, logger)
	submissionService := service.NewSubmissionService(
		submissionRepo,
		problemRepo,
		grader.Evaluation,
		grader.Security,
		publisher,
		validate,
		service.SubmissionConfig{
			Workers:   cfg.EvaluationWorkers,
			QueueSize: cfg.EvaluationQueueSize,
			Timeout:   cfg.EvaluationTimeout,
		},
		logger,
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    2 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(grader.Evaluation, validate, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, validate, logger),
		ProblemHandler:    handler.NewProblemHandler(problemService, validate, logger),
	})

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := submissionService.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("evaluation workers stopped")
		}
	}()

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("llm_provider", cfg.LLMProvider).
		Str("llm_model", cfg.LLMModel).
		Bool("auth_enabled", cfg.AuthEnabled()).
		Msg("grader started")

	waitForShutdown(ctx, app, workersDone, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, workersDone <-chan struct{}, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("evaluation workers did not stop in time")
	}

	logger.Info().Msg("server stopped")
}
