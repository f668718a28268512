// Package llm is the single gateway for text-completion calls. Providers
// wrap vendor SDKs; the Gateway adds retries, backup-model fallback,
// metrics and tracing on top of them.
package llm

import "context"

// Request describes one text completion.
type Request struct {
	Prompt string

	// Model overrides the gateway's primary model when set.
	Model string

	// Temperature controls randomness. Zero means the gateway default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the gateway default.
	MaxTokens int
}

// Provider sends a completion request to one model backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Completer is what grading components depend on for model access.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
