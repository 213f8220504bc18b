package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"debias/internal/usecase"
)

var runClusterCount int

var runCmd = &cobra.Command{
	Use:   "run [input.csv]",
	Short: "Run the full debiasing pipeline",
	Long: `Run every pipeline stage on a resume CSV: clean and embed the
records, cluster the embeddings, summarize the densest clusters, and
write the rebalanced dataset.

Examples:
  debias run Resume.csv
  debias run Resume.csv --clusters 4`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runClusterCount, "clusters", "c", 0, "number of clusters to keep (default from config)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	input, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input file does not exist: %w", err)
	}

	cfg := GetConfig()
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Embedding records"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
			)
		}
		_ = bar.Set(done)
	}

	runner := usecase.NewRunner(cfg, embedder, newSummarizer(cfg), nil)
	result, err := runner.Run(cmd.Context(), input, GetDataDir(), runClusterCount, progress)
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	s := result.Partition.Summary
	fmt.Printf("Processed %d records into %d clusters\n", result.Table.Len(), len(result.Clusters.Selected))
	fmt.Printf("Removed %d entries (%.2f%%), %d remain\n", s.RemovedCount, s.RemovalPercentage, s.KeptCount)
	return nil
}
