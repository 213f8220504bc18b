package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"debias/internal/usecase"
)

var analyzeCount int

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize exported clusters with an LLM",
	Long: `Generate a natural-language summary for each exported cluster by
sampling its records. Requires cluster exports from 'debias run' or
'debias cluster', and a configured analysis model.

Examples:
  debias analyze
  debias analyze --clusters 3`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().IntVarP(&analyzeCount, "clusters", "c", 0, "number of clusters to analyze (default from config)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	summarizer := newSummarizer(cfg)
	if summarizer == nil {
		return fmt.Errorf("cluster analysis is disabled or unconfigured")
	}

	count := analyzeCount
	if count <= 0 {
		count = cfg.Pipeline.ClusterCount
	}

	uc := usecase.NewAnalyzeUseCase(summarizer, cfg.Pipeline.TextColumn,
		cfg.Analysis.SampleSize, cfg.Analysis.MaxChars, cfg.Pipeline.Seed)
	analyses, err := uc.Run(cmd.Context(), GetDataDir(), count)
	if err != nil {
		return err
	}

	for _, a := range analyses {
		fmt.Printf("=== Cluster %d (%d entries) ===\n", a.Cluster, a.Size)
		fmt.Println(strings.TrimSpace(a.Analysis))
		fmt.Println()
	}
	return nil
}
