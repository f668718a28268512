package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GatewayConfig wires providers and call policy into a Gateway.
type GatewayConfig struct {
	Primary      Provider
	PrimaryModel string

	// Backup serves BackupModel; nil reuses Primary.
	Backup      Provider
	BackupModel string

	Temperature float64
	MaxTokens   int

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Retry RetryConfig

	// FallbackAttempts is the attempt budget for the backup model.
	FallbackAttempts int

	Logger zerolog.Logger
}

// Gateway is the choke point for every model call: it fills defaults, retries
// transient failures with backoff and switches to the backup model once the
// primary is exhausted.
type Gateway struct {
	cfg    GatewayConfig
	tracer trace.Tracer
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGateway validates the configuration and builds a gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Primary == nil {
		return nil, fmt.Errorf("primary llm provider is required")
	}
	if cfg.PrimaryModel == "" {
		return nil, fmt.Errorf("primary llm model is required")
	}
	if cfg.Backup == nil {
		cfg.Backup = cfg.Primary
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.2
	}
	if cfg.FallbackAttempts <= 0 {
		cfg.FallbackAttempts = 2
	}
	cfg.Retry = cfg.Retry.normalized()

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Gateway{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/llm"),
		logger: logger.With().Str("component", "llm_gateway").Logger(),
		sleep:  sleepContext,
	}, nil
}

// Complete returns the model's text for req or an error wrapping ErrNoCompletion.
func (g *Gateway) Complete(parent context.Context, req Request) (string, error) {
	req = g.withDefaults(req)
	purpose := PurposeFrom(parent)

	ctx, span := g.tracer.Start(parent, "llm.complete", trace.WithAttributes(
		attribute.String("llm.model", req.Model),
		attribute.String("llm.purpose", purpose),
	))
	defer span.End()

	text, err := g.attempt(ctx, g.cfg.Primary, req, g.cfg.Retry.MaxAttempts)
	if err == nil {
		return text, nil
	}

	if ctx.Err() == nil && g.canFallback(req) {
		modelFallbacks.WithLabelValues(purpose).Inc()
		g.logger.Warn().Err(err).
			Str("purpose", purpose).
			Str("model", req.Model).
			Str("backup_model", g.cfg.BackupModel).
			Msg("primary model exhausted, trying backup model")

		backupReq := req
		backupReq.Model = g.cfg.BackupModel
		span.SetAttributes(attribute.Bool("llm.fallback", true))

		text, err = g.attempt(ctx, g.cfg.Backup, backupReq, g.cfg.FallbackAttempts)
		if err == nil {
			return text, nil
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", fmt.Errorf("%w: %w", ErrNoCompletion, err)
}

func (g *Gateway) withDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = g.cfg.PrimaryModel
	}
	if req.Temperature <= 0 {
		req.Temperature = g.cfg.Temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.cfg.MaxTokens
	}
	return req
}

func (g *Gateway) canFallback(req Request) bool {
	return g.cfg.BackupModel != "" && req.Model == g.cfg.PrimaryModel
}

func (g *Gateway) attempt(ctx context.Context, provider Provider, req Request, attempts int) (string, error) {
	purpose := PurposeFrom(ctx)
	invalidRetried := false
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		text, err := g.call(ctx, provider, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		requestFailures.WithLabelValues(req.Model, purpose).Inc()
		g.logger.Error().Err(err).
			Str("provider", provider.Name()).
			Str("model", req.Model).
			Str("purpose", purpose).
			Int("attempt", attempt+1).
			Msg("llm request failed")

		if !shouldRetry(err, &invalidRetried) || attempt == attempts-1 {
			break
		}

		if err := g.sleep(ctx, g.cfg.Retry.backoff(attempt, err)); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func (g *Gateway) call(parent context.Context, provider Provider, req Request) (string, error) {
	ctx := parent
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := provider.Complete(ctx, req)
	requestDuration.WithLabelValues(req.Model, PurposeFrom(parent)).Observe(time.Since(start).Seconds())
	if err != nil {
		// A per-attempt timeout is transient; only the caller's context is final.
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return "", &ErrProviderUnavailable{Err: err}
		}
		return "", err
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
