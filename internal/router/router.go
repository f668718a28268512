package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	SubmissionHandler *handler.SubmissionHandler
	ProblemHandler    *handler.ProblemHandler

	// AuthMiddleware defaults to middleware.Authenticate(cfg.JWTSecret).
	AuthMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	auth := deps.AuthMiddleware
	if auth == nil {
		auth = middleware.Authenticate(cfg.JWTSecret)
	}

	evaluation := api.Group("/evaluation")

	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(evaluation, middleware.RateLimit("evaluate", cfg.RateLimitPerMinute, time.Minute))
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(evaluation, auth, middleware.RateLimit("submit", cfg.RateLimitPerMinute, time.Minute))
	}

	if deps.ProblemHandler != nil {
		problems := evaluation.Group("/problems", auth)
		deps.ProblemHandler.Register(problems)
	}
}
