package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/storyloom/internal/config"
	"github.com/Yates-Labs/storyloom/internal/orchestrator"
)

var (
	cfgFile     string
	logLevel    string
	fixturePath string
)

var rootCmd = &cobra.Command{
	Use:   "storyloom",
	Short: "Storyloom - context budgeting for serialized fiction",
	Long: `Storyloom assembles a bounded writing context for the next chapter of a
long-running novel and drafts the chapter with an LLM.

It pulls characters, events, foreshadowing, plotlines, world rules and
locations from a story graph, recent chapters and summaries from the
manuscript, and packs them into a prompt that fits a fixed token budget.
Graph queries are cached and invalidated when chapters are committed.

Configuration is read from .storyloom.yaml and STORYLOOM_* variables.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default .storyloom.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&fixturePath, "fixture", "", "YAML novel fixture for the fixture backends")
}

// loadConfig merges the config file, environment and persistent flags.
func loadConfig() (*config.Config, *slog.Logger, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	flags := rootCmd.PersistentFlags()
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return nil, nil, err
	}
	if err := v.BindPFlag("fixture", flags.Lookup("fixture")); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openPipeline(ctx context.Context) (*orchestrator.Pipeline, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(ctx, cfg, orchestrator.Deps{Logger: logger})
}

func parseChapterArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("chapter must be a positive number, got %q", s)
	}
	return n, nil
}
