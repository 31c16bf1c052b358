package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockLLM is a deterministic LLM implementation for testing.
// It returns predictable drafts based on prompt content.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a default draft is generated from the prompt.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	mu         sync.Mutex
	lastPrompt string
	calls      int
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Generate returns the configured response or generates a deterministic one.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.lastPrompt = prompt
	m.calls++
	m.mu.Unlock()

	if m.Error != nil {
		return "", m.Error
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return generateMockDraft(prompt), nil
}

// LastPrompt returns the most recent prompt passed to Generate.
func (m *MockLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// Calls returns how many times Generate ran.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// generateMockDraft writes a short chapter that echoes the chapter plan.
func generateMockDraft(prompt string) string {
	chapter := headerValue(prompt, "**Chapter:**")
	if chapter == "" {
		chapter = "?"
	}
	plan := firstLineAfter(prompt, "## Chapter Plan")

	var b strings.Builder
	fmt.Fprintf(&b, "# Chapter %s\n\n", chapter)
	if plan != "" {
		fmt.Fprintf(&b, "The chapter follows its plan: %s ", plan)
	}
	fmt.Fprintf(&b, "It draws on %d remembered facts from earlier chapters. ", countBullets(prompt))
	b.WriteString("The tide turned, and the story moved on.\n")
	return b.String()
}

func headerValue(prompt, header string) string {
	_, rest, ok := strings.Cut(prompt, header)
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(line)
}

func firstLineAfter(prompt, heading string) string {
	_, rest, ok := strings.Cut(prompt, heading+"\n")
	if !ok {
		return ""
	}
	for _, line := range strings.Split(rest, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func countBullets(prompt string) int {
	count := 0
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "- ") {
			count++
		}
	}
	return count
}
