package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [novel] [chapter]",
	Short: "Summarize a committed chapter with the configured LLM",
	Long: `Summarize a committed chapter. Summaries stand in for chapters that are
too old to be included in full.

Examples:
  storyloom summarize tides 5`,
	Args: cobra.ExactArgs(2),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
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

	sum, err := p.SummarizeChapter(ctx, novelID, chapter)
	if err != nil {
		return fmt.Errorf("summary failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("Chapter %d", sum.Number)))
	fmt.Fprintln(cmd.OutOrStdout(), textStyle.Render(sum.Text))
	return nil
}
