// Package engine assembles the grading pipeline from configuration. The HTTP
// server and the command line tool share it.
package engine

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/examples"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/llm"
)

// Engine bundles the services built on top of one LLM gateway.
type Engine struct {
	Evaluation service.EvaluationService
	Security   service.SecurityService
}

// NewGateway builds the primary and backup providers named in cfg.
func NewGateway(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*llm.Gateway, error) {
	creds := llm.Credentials{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
	}

	primary, err := llm.NewProvider(ctx, cfg.LLMProvider, creds)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}

	var backup llm.Provider
	if cfg.LLMBackupProvider != "" && cfg.LLMBackupProvider != cfg.LLMProvider {
		backup, err = llm.NewProvider(ctx, cfg.LLMBackupProvider, creds)
		if err != nil {
			return nil, fmt.Errorf("backup provider: %w", err)
		}
	}

	return llm.NewGateway(llm.GatewayConfig{
		Primary:      primary,
		PrimaryModel: cfg.LLMModel,
		Backup:       backup,
		BackupModel:  cfg.LLMBackupModel,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		Timeout:      cfg.LLMTimeout,
		Retry: llm.RetryConfig{
			MaxAttempts: cfg.LLMRetryAttempts,
			InitialWait: cfg.LLMRetryInitial,
			MaxWait:     cfg.LLMRetryMaxWait,
			Multiplier:  2,
		},
		Logger: logger,
	})
}

// New wires the grading engines around completer. cache may be nil, in which
// case guidance is regenerated on every request.
func New(completer llm.Completer, cache *redis.Client, cfg config.Config, validate *validator.Validate, logger zerolog.Logger) Engine {
	securitySvc := service.NewSecurityService(completer, service.SecurityConfig{
		StaticCheck:    cfg.StaticCheck,
		DetectionCheck: cfg.DetectionCheck,
	}, logger)
	explainer := service.NewApproachExplanationService(completer, logger)
	extractor := service.NewRubricExtractorService(completer, explainer, logger, service.RubricExtractorConfig{})
	guidance := service.NewEvaluationGuidanceService(completer, cache, cfg.GuidanceCacheTTL, logger)

	evaluation := service.NewEvaluationService(service.EvaluationDependencies{
		LLM:       completer,
		Explainer: explainer,
		Extractor: extractor,
		Guidance:  guidance,
		Security:  securitySvc,
		Examples:  examples.NewLoader(cfg.ExamplesRoot, logger),
		Validator: validate,
	}, service.EvaluationConfig{StripComments: cfg.StripComments}, logger)

	return Engine{Evaluation: evaluation, Security: securitySvc}
}
