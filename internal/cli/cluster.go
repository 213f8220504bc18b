package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"debias/config"
	"debias/internal/adapter/clustering"
	"debias/internal/adapter/projection"
	"debias/internal/adapter/store"
	"debias/internal/usecase"
)

var clusterCount int

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Re-cluster cached embeddings",
	Long: `Cluster the cached embedding matrix without re-embedding.
Requires a previous 'debias run' in the same data directory.

Examples:
  debias cluster
  debias cluster --clusters 8`,
	RunE: runCluster,
}

func init() {
	rootCmd.AddCommand(clusterCmd)
	clusterCmd.Flags().IntVarP(&clusterCount, "clusters", "c", 0, "number of clusters to keep (default from config)")
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetDataDir()
	p := cfg.Pipeline

	if _, err := os.Stat(config.EmbeddingsPath(dir)); os.IsNotExist(err) {
		return fmt.Errorf("no cached embeddings found. Run 'debias run' first")
	}

	table, err := store.LoadRecords(config.CleanedRecordsPath(dir), p.TextColumn)
	if err != nil {
		return fmt.Errorf("failed to load cleaned records: %w", err)
	}
	matrix, err := store.LoadMatrix(config.EmbeddingsPath(dir))
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	count := clusterCount
	if count <= 0 {
		count = p.ClusterCount
	}
	count = config.ClampClusterCount(count)

	uc := usecase.NewClusterUseCase(
		clustering.NewClusterer(p.MinClusterSize, p.MinSamples, p.Neighbors),
		projection.NewReducer(p.Components),
	)
	result, err := uc.Run(table, matrix, count, dir)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d clusters, exported the %d densest:\n",
		result.Assignment.NumClusters, len(result.Selected))
	for rank, cluster := range result.Selected {
		fmt.Printf("  Cluster %d: %d entries (density %.4f)\n",
			rank+1, len(cluster.Indices), cluster.Density)
	}
	return nil
}
