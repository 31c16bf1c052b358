package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/storyloom/internal/graph"
	"github.com/Yates-Labs/storyloom/internal/orchestrator"
)

var (
	withMongo bool
	batchSize int
	keepRows  bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load the fixture's story graph into Milvus",
	Long: `Embed every entity of the configured fixture and insert it into the Milvus
collection, so that graph.backend=milvus can serve it. With --mongo the
manuscript is imported into MongoDB as well.

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for embeddings

Examples:
  storyloom index --fixture fixtures/tides.yaml
  storyloom index --mongo --batch-size 16`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&withMongo, "mongo", false, "Also import the manuscript into MongoDB")
	indexCmd.Flags().IntVar(&batchSize, "batch-size", graph.DefaultIndexOptions().BatchSize, "Entities per embedding request")
	indexCmd.Flags().BoolVar(&keepRows, "keep", false, "Keep existing rows instead of replacing the novel")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	opts := graph.IndexOptions{BatchSize: batchSize, Replace: !keepRows}
	report, err := orchestrator.Index(context.Background(), cfg, withMongo, opts, logger)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Indexed %d entities from %d novels", report.Entities, report.Novels)
	if withMongo {
		fmt.Fprintf(cmd.OutOrStdout(), ", imported %d manuscripts", report.Imported)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
