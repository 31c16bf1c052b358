package narrative

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiLLM implements the LLM interface using the Gemini API.
type GeminiLLM struct {
	client *genai.Client
	config LLMConfig
}

// NewGeminiLLM creates a Gemini-backed LLM. The key comes from the config or
// from GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGeminiLLM(ctx context.Context, config LLMConfig) (*GeminiLLM, error) {
	key := apiKey(config, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key (set GEMINI_API_KEY or llm.api_key)", ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &GeminiLLM{client: client, config: config}, nil
}

func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if g.config.Temperature > 0 {
		cfg.Temperature = genai.Ptr(g.config.Temperature)
	}
	if g.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.config.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: no response generated", ErrLLMFailed)
	}
	return text, nil
}
