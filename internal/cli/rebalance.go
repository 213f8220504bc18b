package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"debias/config"
	"debias/internal/adapter/projection"
	"debias/internal/adapter/store"
	"debias/internal/usecase"
)

var (
	rebalanceFraction float64
	rebalanceSeed     int64
	rebalanceTargets  []int
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Rebuild the unbiased dataset from cluster artifacts",
	Long: `Remove a deterministic fraction of the target clusters and write
the rebalanced dataset. Requires 'debias run' or 'debias cluster' output
in the data directory.

Examples:
  debias rebalance
  debias rebalance --fraction 0.3 --targets 1,2`,
	RunE: runRebalance,
}

func init() {
	rootCmd.AddCommand(rebalanceCmd)
	rebalanceCmd.Flags().Float64VarP(&rebalanceFraction, "fraction", "f", 0, "fraction of each target cluster to remove (default from config)")
	rebalanceCmd.Flags().Int64Var(&rebalanceSeed, "seed", 0, "removal sampling seed (default from config)")
	rebalanceCmd.Flags().IntSliceVarP(&rebalanceTargets, "targets", "t", nil, "cluster numbers to rebalance (default from config)")
}

func runRebalance(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetDataDir()
	p := cfg.Pipeline

	fraction := rebalanceFraction
	if fraction <= 0 {
		fraction = p.RemovalFraction
	}
	seed := rebalanceSeed
	if seed == 0 {
		seed = p.Seed
	}
	targets := rebalanceTargets
	if len(targets) == 0 {
		targets = p.TargetClusters
	}

	table, err := store.LoadRecords(config.CleanedRecordsPath(dir), p.TextColumn)
	if err != nil {
		return fmt.Errorf("failed to load cleaned records: %w", err)
	}
	matrix, err := store.LoadMatrix(config.EmbeddingsPath(dir))
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	uc := usecase.NewRebalanceUseCase(projection.NewReducer(p.Components), fraction, seed)
	partition, err := uc.RunFromArtifacts(dir, table, matrix, targets)
	if err != nil {
		return err
	}

	s := partition.Summary
	fmt.Printf("Removed %d of %d entries (%.2f%%)\n", s.RemovedCount, s.OriginalCount, s.RemovalPercentage)
	for _, r := range s.ClusterRemovals {
		fmt.Printf("  Cluster %d: removed %d/%d, %d remain\n", r.Cluster, r.Removed, r.Original, r.Remaining)
	}
	return nil
}
