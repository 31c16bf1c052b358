package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/storyloom/internal/agent"
)

var (
	outFile   string
	showTrace bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [novel] [chapter]",
	Short: "Draft a chapter with the configured LLM",
	Long: `Draft a chapter: assemble its writing context, send it to the configured
LLM and retry with a longer-draft request while the result is under
agent.min_words.

Required environment variables (depending on llm.provider):
  OPENAI_API_KEY     - OpenAI API key
  GEMINI_API_KEY     - Gemini API key

Examples:
  storyloom generate tides 6
  storyloom generate tides 6 --pov Lin --note "keep the tone quiet" --trace
  storyloom generate tides 6 --out drafts/0006.md`,
	Args: cobra.ExactArgs(2),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	addContextFlags(generateCmd)
	generateCmd.Flags().StringVar(&outFile, "out", "", "Write the draft to this file instead of stdout")
	generateCmd.Flags().BoolVar(&showTrace, "trace", false, "Show the agent's reasoning steps")
}

func runGenerate(cmd *cobra.Command, args []string) error {
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

	result, err := p.GenerateChapter(ctx, novelID, chapter, contextOptions())
	if err != nil && !errors.Is(err, agent.ErrStepLimit) {
		return fmt.Errorf("generation failed: %w", err)
	}
	out := cmd.OutOrStdout()

	if showTrace && result.Context != nil && result.Context.Trace != nil {
		fmt.Fprintln(out, titleStyle.Render("Agent trace"))
		for _, step := range result.Context.Trace.Steps() {
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Step %d: %s", step.Number, step.Action)))
			fmt.Fprintln(out, textStyle.Render("  thought:     "+step.Reasoning))
			fmt.Fprintln(out, textStyle.Render("  observation: "+step.Observation))
			fmt.Fprintln(out, summaryStyle.Render("  reflection:  "+step.Reflection))
		}
		fmt.Fprintln(out)
	}

	if err != nil {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Warning: %v; showing the last draft", err)))
	}
	if result.Draft == nil {
		return errors.New("no draft was produced")
	}

	body := result.Draft.Text
	if result.Draft.Title != "" {
		body = "# " + result.Draft.Title + "\n\n" + body
	}
	if outFile != "" {
		if err := os.WriteFile(outFile, []byte(body+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write draft: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote %d words to %s\n", result.Draft.Words, outFile)
		return nil
	}

	fmt.Fprintln(out, body)
	fmt.Fprintln(out)
	fmt.Fprintln(out, summaryStyle.Render(fmt.Sprintf("%d words, model %s, context %d tokens",
		result.Draft.Words, result.Draft.Model, result.Context.TotalTokens())))
	return nil
}
