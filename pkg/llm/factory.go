package llm

import (
	"context"
	"fmt"
	"strings"
)

// Credentials carries the API keys for every supported backend.
type Credentials struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
}

// NewProvider builds the named provider ("openai", "anthropic" or "gemini").
func NewProvider(ctx context.Context, name string, creds Credentials) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openai":
		return NewOpenAIProvider(OpenAIConfig{APIKey: creds.OpenAIAPIKey, BaseURL: creds.OpenAIBaseURL})
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{APIKey: creds.AnthropicAPIKey})
	case "gemini":
		return NewGeminiProvider(ctx, GeminiConfig{APIKey: creds.GeminiAPIKey})
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", name)
	}
}
