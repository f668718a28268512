package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/sanitizer"
	"github.com/noah-isme/gema-grader/internal/security"
	"github.com/noah-isme/gema-grader/pkg/llm"
)

// InsecureSubmissionError reports why code was rejected by the injection guard.
type InsecureSubmissionError struct {
	Issues []string
}

func (e *InsecureSubmissionError) Error() string {
	if len(e.Issues) == 0 {
		return ErrInsecureSubmission.Error()
	}
	return ErrInsecureSubmission.Error() + ": " + strings.Join(e.Issues, "; ")
}

// Is matches ErrInsecureSubmission.
func (e *InsecureSubmissionError) Is(target error) bool {
	return target == ErrInsecureSubmission
}

// ErrInsecureSubmission indicates the code failed an injection check.
var ErrInsecureSubmission = errors.New("insecure submission")

// SecurityConfig toggles the individual checks.
type SecurityConfig struct {
	StaticCheck    bool
	DetectionCheck bool
}

// SecurityService runs the static scan and the canary detection check.
type SecurityService interface {
	Check(ctx context.Context, code string) security.Report
	StaticScan(code string) security.Report
}

type securityService struct {
	llm    llm.Completer
	config SecurityConfig
	logger zerolog.Logger
}

// NewSecurityService constructs the injection guard service.
func NewSecurityService(completer llm.Completer, cfg SecurityConfig, logger zerolog.Logger) SecurityService {
	return &securityService{
		llm:    completer,
		config: cfg,
		logger: logger.With().Str("component", "security_service").Logger(),
	}
}

// Check runs the enabled checks in order. A failed static scan skips the
// model-based detection check.
func (s *securityService) Check(ctx context.Context, code string) security.Report {
	report := s.StaticScan(code)
	if !report.Passed || !s.config.DetectionCheck {
		return report
	}

	detection := s.detect(ctx, code)
	if !detection.Passed {
		observability.SecurityRejections().WithLabelValues("detection").Inc()
	}
	return report.Merge(detection)
}

// StaticScan runs only the pattern checks, when enabled.
func (s *securityService) StaticScan(code string) security.Report {
	if !s.config.StaticCheck {
		return security.Report{Passed: true, Issues: []string{}}
	}

	report := security.Scan(code)
	if !report.Passed {
		observability.SecurityRejections().WithLabelValues("static").Inc()
		s.logger.Warn().Strs("issues", report.Issues).Msg("static injection scan failed")
	}
	return report
}

// detect fails closed: any error or unexpected reply rejects the code.
func (s *securityService) detect(ctx context.Context, code string) security.Report {
	ctx = llm.WithPurpose(ctx, "security_check")
	wrapped := sanitizer.SecureCode(code, sanitizer.Options{})

	reply, err := s.llm.Complete(ctx, llm.Request{Prompt: security.CanaryPrompt(wrapped)})
	if err != nil {
		s.logger.Error().Err(err).Msg("detection check request failed")
		return security.Report{Passed: false, Issues: []string{security.IssueCanaryError}}
	}

	if !security.CanaryPassed(reply) {
		s.logger.Warn().Str("reply", truncate(reply, 200)).Msg("detection check failed")
		return security.Report{Passed: false, Issues: []string{security.IssueCanaryFailed}}
	}

	return security.Report{Passed: true, Issues: []string{}}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
