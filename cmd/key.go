package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/storyloom/internal/cache"
)

var keyCmd = &cobra.Command{
	Use:   "key [fingerprint]",
	Short: "Explain a query cache key",
	Long: `Parse a cache key fingerprint and show its fields. Keys have the form
category|novel|chapter|extra..., with an empty chapter for novel-wide
entries.

Examples:
  storyloom key "events|tides|6|pov=Lin"
  storyloom key "settings|tides|"`,
	Args: cobra.ExactArgs(1),
	RunE: runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)
}

func runKey(cmd *cobra.Command, args []string) error {
	key, err := cache.ParseKey(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	chapter := "(novel-wide)"
	if key.HasChapter() {
		chapter = fmt.Sprintf("%d", key.Chapter)
	}
	extras := "(none)"
	if len(key.Extra) > 0 {
		extras = strings.Join(key.Extra, ", ")
	}

	fmt.Fprintf(out, "category: %s\n", key.Category)
	fmt.Fprintf(out, "novel:    %s\n", key.NovelID)
	fmt.Fprintf(out, "chapter:  %s\n", chapter)
	fmt.Fprintf(out, "extra:    %s\n", extras)
	return nil
}
