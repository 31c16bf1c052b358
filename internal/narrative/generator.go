package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrGenerationFailed = errors.New("draft generation failed")
)

// Draft is a generated chapter, not yet committed to the manuscript.
type Draft struct {
	// ID identifies the request, usually "<novel>#<chapter>".
	ID string `json:"id"`

	Title string `json:"title,omitempty"`
	Text  string `json:"text"`

	// Words counts whitespace-separated words in Text.
	Words int `json:"words"`

	GeneratedAt time.Time `json:"generated_at"`

	// Model is the LLM model used to generate this draft
	Model string `json:"model"`
}

// Generator produces drafts using an LLM.
// It invokes an LLM on an already-assembled prompt.
type Generator struct {
	llm    LLM
	config LLMConfig
	now    func() time.Time
}

// NewGenerator creates a draft generator with the given LLM implementation.
func NewGenerator(llm LLM, config LLMConfig) *Generator {
	return &Generator{
		llm:    llm,
		config: config,
		now:    time.Now,
	}
}

// Generate creates a draft by invoking the LLM with an already-assembled
// prompt. It must not perform retrieval or prompt construction.
func (g *Generator) Generate(ctx context.Context, id string, prompt string) (*Draft, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("%w: LLM is required", ErrGenerationFailed)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: draft ID is required", ErrGenerationFailed)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrGenerationFailed)
	}

	text, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: LLM invocation failed: %w", ErrGenerationFailed, err)
	}

	title, body := splitTitle(text)
	return &Draft{
		ID:          id,
		Title:       title,
		Text:        body,
		Words:       len(strings.Fields(body)),
		GeneratedAt: g.now(),
		Model:       g.config.Model,
	}, nil
}

// splitTitle separates a leading "# Title" line from the body.
func splitTitle(text string) (string, string) {
	text = strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(text, "# ")
	if !ok {
		return "", text
	}
	title, body, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(title), strings.TrimSpace(body)
}
