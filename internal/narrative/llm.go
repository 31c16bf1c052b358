// Package narrative turns an assembled writing context into a chapter draft.
// It defines a provider-agnostic LLM interface with implementations for
// OpenAI, Gemini and a deterministic mock for tests. The generator consumes
// an already-assembled prompt and returns a structured draft.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text from a prompt using the configured model.
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Provider selects the backend: openai, gemini or mock.
	Provider string `mapstructure:"provider"`

	// Model specifies the model identifier (e.g., "gpt-4o", "gemini-2.5-flash")
	Model string `mapstructure:"model"`

	// Temperature controls randomness (0.0 = provider default)
	Temperature float32 `mapstructure:"temperature"`

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int `mapstructure:"max_tokens"`

	// APIKey is the authentication key for the provider
	APIKey string `mapstructure:"api_key"`
}

// DefaultLLMConfig returns sensible defaults for chapter drafting.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o",
		Temperature: 0.8,
		MaxTokens:   4000,
	}
}

// NewLLM builds the provider named by config.Provider.
func NewLLM(ctx context.Context, config LLMConfig) (LLM, error) {
	switch strings.ToLower(config.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAILLM(config)
	case ProviderGemini:
		return NewGeminiLLM(ctx, config)
	case ProviderMock:
		return NewMockLLM(""), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
}

// apiKey prefers the configured key over the named environment variables.
func apiKey(config LLMConfig, envVars ...string) string {
	if config.APIKey != "" {
		return config.APIKey
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
