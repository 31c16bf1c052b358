package narrative

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/storyloom/internal/story"
)

var (
	ErrMissingContext = errors.New("writing context required for chapter prompt")
)

const systemPrompt = "You are the author of a long-running serialized novel. " +
	"You continue the story one chapter at a time and never contradict established facts."

// entitySections lists the entity sections in prompt order, with headings.
var entitySections = []struct {
	section story.Section
	heading string
}{
	{story.SectionCharacters, "Characters"},
	{story.SectionWorldRules, "World Rules"},
	{story.SectionLocations, "Locations"},
	{story.SectionPlotlines, "Active Plotlines"},
	{story.SectionForeshadows, "Open Foreshadowing"},
	{story.SectionEvents, "Earlier Events"},
}

// AssemblePrompt renders w as a chapter-writing prompt. Sections always
// appear in the same order and empty sections are omitted.
func AssemblePrompt(w *story.WritingContext) (string, error) {
	if w == nil {
		return "", ErrMissingContext
	}

	var b strings.Builder

	b.WriteString("# Chapter to Write\n\n")
	fmt.Fprintf(&b, "**Novel:** %s\n", w.NovelID)
	fmt.Fprintf(&b, "**Chapter:** %d\n\n", w.Chapter)

	writeText(&b, "Core Settings", w.CoreSettings)
	writeText(&b, "Volume Plan", w.Plan.Volume)
	writeText(&b, "Chapter Plan", w.Plan.Chapter)

	for _, es := range entitySections {
		entities := w.EntitiesFor(es.section)
		if len(entities) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", es.heading)
		for _, e := range entities {
			b.WriteString("- " + e.Text())
			if ch, ok := e.Chapter(); ok {
				fmt.Fprintf(&b, " (ch. %d)", ch)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(w.Summaries) > 0 {
		b.WriteString("## Earlier Chapters in Brief\n")
		for _, s := range w.Summaries {
			fmt.Fprintf(&b, "**Chapter %d:** %s\n", s.Number, s.Text)
		}
		b.WriteString("\n")
	}

	for _, ch := range w.RecentChapters {
		if ch.Title != "" {
			fmt.Fprintf(&b, "## Chapter %d: %s\n", ch.Number, ch.Title)
		} else {
			fmt.Fprintf(&b, "## Chapter %d\n", ch.Number)
		}
		b.WriteString(ch.Text + "\n\n")
	}

	writeText(&b, "Author Notes", w.UserAdjustments)

	b.WriteString("# Task\n\n")
	fmt.Fprintf(&b, "Write chapter %d. Start with a single line \"# <title>\", then the chapter text. ", w.Chapter)
	b.WriteString("Follow the chapter plan, continue directly from the most recent chapter, and respect every world rule. ")
	b.WriteString("Do not resolve open foreshadowing unless the plan calls for it. ")
	b.WriteString("Base all statements strictly on the context above; do not invent backstory that contradicts it.\n")

	return b.String(), nil
}

func writeText(b *strings.Builder, heading, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n%s\n\n", heading, text)
}
