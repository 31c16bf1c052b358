package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/storyloom/internal/assembler"
	"github.com/Yates-Labs/storyloom/internal/budget"
	"github.com/Yates-Labs/storyloom/internal/cache"
	"github.com/Yates-Labs/storyloom/internal/narrative"
	"github.com/Yates-Labs/storyloom/internal/story"
)

var (
	pov         string
	focus       string
	note        string
	repeat      int
	asJSON      bool
	printPrompt bool
)

var contextCmd = &cobra.Command{
	Use:   "context [novel] [chapter]",
	Short: "Assemble and display the writing context for a chapter",
	Long: `Assemble the bounded writing context for a chapter and show how much of
the token budget each section uses.

Examples:
  storyloom context tides 6
  storyloom context tides 6 --pov Lin --focus "salt spire"
  storyloom context tides 6 --repeat 3   # later builds are served from the cache
  storyloom context tides 6 --prompt     # print the rendered prompt`,
	Args: cobra.ExactArgs(2),
	RunE: runContext,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	addContextFlags(contextCmd)
	contextCmd.Flags().IntVar(&repeat, "repeat", 1, "Build the context this many times to show cache reuse")
	contextCmd.Flags().BoolVar(&asJSON, "json", false, "Print the context as JSON")
	contextCmd.Flags().BoolVar(&printPrompt, "prompt", false, "Print the rendered prompt instead of the usage table")
}

func addContextFlags(c *cobra.Command) {
	c.Flags().StringVar(&pov, "pov", "", "Only include events this character took part in")
	c.Flags().StringVar(&focus, "focus", "", "Only include entities matching this text")
	c.Flags().StringVar(&note, "note", "", "Author guidance added to the prompt")
}

func contextOptions() assembler.Options {
	return assembler.Options{POV: pov, Focus: focus, UserAdjustments: note}
}

func runContext(cmd *cobra.Command, args []string) error {
	novelID := args[0]
	chapter, err := parseChapterArg(args[1])
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	var w *story.WritingContext
	for range max(repeat, 1) {
		if w, err = p.BuildContext(ctx, novelID, chapter, contextOptions()); err != nil {
			return fmt.Errorf("failed to assemble context: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	case printPrompt:
		prompt, err := narrative.AssemblePrompt(w)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, prompt)
		return nil
	}

	printUsage(out, w, p.Policy())
	printCacheStats(out, p.CacheStats())
	return nil
}

// usageOrder lists sections as they appear in the prompt.
var usageOrder = []story.Section{
	story.SectionCoreSettings,
	story.SectionVolumePlan,
	story.SectionChapterPlan,
	story.SectionCharacters,
	story.SectionWorldRules,
	story.SectionLocations,
	story.SectionPlotlines,
	story.SectionForeshadows,
	story.SectionEvents,
	story.SectionSummaries,
	story.SectionFullChapters,
	story.SectionUserAdjustments,
}

func printUsage(out io.Writer, w *story.WritingContext, policy budget.Policy) {
	const (
		sectionWidth = 20
		itemsWidth   = 8
		tokensWidth  = 10
		ceilingWidth = 10
		noteWidth    = 10
	)

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s, chapter %d", w.NovelID, w.Chapter)))
	fmt.Fprintln(out)

	headers := []string{
		headerStyle.Width(sectionWidth).Render("SECTION"),
		headerStyle.Width(itemsWidth).Render("ITEMS"),
		headerStyle.Width(tokensWidth).Render("TOKENS"),
		headerStyle.Width(ceilingWidth).Render("CEILING"),
		headerStyle.Width(noteWidth).Render("NOTE"),
	}
	fmt.Fprintln(out, strings.Join(headers, borderStyle.Render("│")))
	fmt.Fprintln(out, borderStyle.Render(strings.Join([]string{
		strings.Repeat("─", sectionWidth),
		strings.Repeat("─", itemsWidth),
		strings.Repeat("─", tokensWidth),
		strings.Repeat("─", ceilingWidth),
		strings.Repeat("─", noteWidth),
	}, "┼")))

	for _, s := range usageOrder {
		noteText := ""
		if slices.Contains(w.Trimmed, s) {
			noteText = "trimmed"
		}
		cells := []string{
			cell(sectionColor, sectionWidth, false).Render(string(s)),
			cell(numberColor, itemsWidth, true).Render(fmt.Sprintf("%d", itemCount(w, s))),
			cell(numberColor, tokensWidth, true).Render(fmt.Sprintf("%d", w.Usage[s])),
			cell(textColor, ceilingWidth, true).Render(fmt.Sprintf("%d", policy.Tokens.For(s))),
			cell(warnColor, noteWidth, false).Render(noteText),
		}
		fmt.Fprintln(out, strings.Join(cells, borderStyle.Render("│")))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, summaryStyle.Render(fmt.Sprintf("Total: %d of %d tokens", w.TotalTokens(), policy.Tokens.TotalInput)))
}

func printCacheStats(out io.Writer, stats cache.Stats) {
	fmt.Fprintln(out, summaryStyle.Render(fmt.Sprintf(
		"Cache: %d entries (%d valid, %d expired), %d hits, %d misses",
		stats.Total, stats.Valid, stats.Expired, stats.Hits, stats.Misses)))
}

func itemCount(w *story.WritingContext, s story.Section) int {
	switch s {
	case story.SectionFullChapters:
		return len(w.RecentChapters)
	case story.SectionSummaries:
		return len(w.Summaries)
	}
	if entities := w.EntitiesFor(s); entities != nil {
		return len(entities)
	}
	if w.Usage[s] > 0 {
		return 1
	}
	return 0
}
