package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/story"
)

var ErrEmptyChapter = errors.New("chapter has no text to summarize")

// DefaultSummaryWords is the target summary length.
const DefaultSummaryWords = 60

// Summarizer condenses committed chapters into the summaries that stand in
// for older chapters in the writing context.
type Summarizer struct {
	llm      LLM
	maxWords int
}

// NewSummarizer creates a summarizer; maxWords <= 0 uses DefaultSummaryWords.
func NewSummarizer(llm LLM, maxWords int) *Summarizer {
	if maxWords <= 0 {
		maxWords = DefaultSummaryWords
	}
	return &Summarizer{llm: llm, maxWords: maxWords}
}

// Summarize asks the LLM for a summary of ch.
func (s *Summarizer) Summarize(ctx context.Context, ch story.Chapter) (story.ChapterSummary, error) {
	if strings.TrimSpace(ch.Text) == "" {
		return story.ChapterSummary{}, fmt.Errorf("%w: chapter %d", ErrEmptyChapter, ch.Number)
	}
	if s.llm == nil {
		return story.ChapterSummary{}, fmt.Errorf("%w: LLM is required", ErrGenerationFailed)
	}

	text, err := s.llm.Generate(ctx, BuildSummaryPrompt(ch, s.maxWords))
	if err != nil {
		return story.ChapterSummary{}, fmt.Errorf("%w: summarizing chapter %d: %w", ErrGenerationFailed, ch.Number, err)
	}
	return story.ChapterSummary{Number: ch.Number, Text: strings.TrimSpace(text)}, nil
}

// BuildSummaryPrompt renders the summarization request for one chapter.
func BuildSummaryPrompt(ch story.Chapter, maxWords int) string {
	var b strings.Builder

	b.WriteString("# Chapter to Summarize\n\n")
	fmt.Fprintf(&b, "**Chapter:** %d\n", ch.Number)
	if ch.Title != "" {
		fmt.Fprintf(&b, "**Title:** %s\n", ch.Title)
	}
	b.WriteString("\n" + ch.Text + "\n\n")

	b.WriteString("# Task\n\n")
	fmt.Fprintf(&b, "Summarize this chapter in at most %d words, in past tense. ", maxWords)
	b.WriteString("Keep every fact a later chapter could depend on: who was present, what changed, ")
	b.WriteString("what was promised or hidden. Leave out style and description.\n")
	return b.String()
}
