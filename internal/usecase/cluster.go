package usecase

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"debias/config"
	"debias/internal/adapter/clustering"
	"debias/internal/adapter/projection"
	"debias/internal/adapter/store"
	"debias/internal/domain"
)

// ClusterUseCase runs density clustering over the embedding matrix, selects
// the densest clusters and exports per-cluster artifacts: record CSVs,
// full-dimensional embedding JSON and 6-D reduced embedding JSON. Exported
// clusters are numbered 1..K by descending density.
type ClusterUseCase struct {
	clusterer *clustering.Clusterer
	reducer   *projection.Reducer
}

func NewClusterUseCase(clusterer *clustering.Clusterer, reducer *projection.Reducer) *ClusterUseCase {
	return &ClusterUseCase{clusterer: clusterer, reducer: reducer}
}

// ClusterResult carries the selected clusters together with the full label
// assignment they were drawn from.
type ClusterResult struct {
	Selected   []domain.SelectedCluster
	Assignment domain.Assignment
}

// Run clusters the matrix, keeps the clusterCount densest clusters and
// writes every cluster artifact under dataDir.
func (u *ClusterUseCase) Run(table *domain.RecordTable, matrix domain.Matrix, clusterCount int, dataDir string) (*ClusterResult, error) {
	if table.Len() != matrix.Rows() {
		return nil, domain.DimensionError("record table has %d rows, matrix has %d", table.Len(), matrix.Rows())
	}

	selected, assignment := u.clusterer.Densest(matrix, clusterCount)
	slog.Info("clustered embeddings",
		"clusters_found", assignment.NumClusters,
		"clusters_selected", len(selected),
		"noise_fraction", fmt.Sprintf("%.3f", assignment.NoiseFraction()))
	if assignment.NoiseFraction() > 0.5 {
		slog.Warn("more than half of all points are noise",
			"noise", assignment.NoiseCount, "total", len(assignment.Labels))
	}

	if err := os.MkdirAll(config.ClustersDir(dataDir), 0755); err != nil {
		return nil, err
	}

	// Rank labels renumber the selected clusters 1..K by density; everything
	// else is noise in the combined export.
	rankOf := make(map[int]int, len(selected))
	for rank, cluster := range selected {
		rankOf[cluster.Label] = rank + 1
	}
	rankLabels := make([]int, len(assignment.Labels))
	for i, label := range assignment.Labels {
		if rank, ok := rankOf[label]; ok {
			rankLabels[i] = rank
		} else {
			rankLabels[i] = domain.NoiseLabel
		}
	}
	allPath := filepath.Join(config.ClustersDir(dataDir), "all_clusters.csv")
	if err := store.SaveRecordsWithClusters(allPath, table, rankLabels); err != nil {
		return nil, fmt.Errorf("failed to save combined cluster records: %w", err)
	}

	var proj *projection.Projection
	if matrix.Rows() >= u.reducer.Components() && matrix.Cols() >= u.reducer.Components() {
		var err error
		proj, err = u.reducer.Fit(matrix)
		if err != nil {
			return nil, fmt.Errorf("failed to fit projection: %w", err)
		}
		slog.Info("fitted 6-D projection",
			"explained_variance", fmt.Sprintf("%.3f", proj.ExplainedVariance()))
	} else {
		slog.Warn("dataset too small for reduced exports",
			"rows", matrix.Rows(), "dimension", matrix.Cols())
	}

	for rank, cluster := range selected {
		num := rank + 1
		subset := cluster.Indices
		if err := store.SaveRecords(config.ClusterRecordsPath(dataDir, num), table.Subset(subset)); err != nil {
			return nil, fmt.Errorf("failed to save cluster %d records: %w", num, err)
		}
		vectors := matrix.Subset(subset)
		if err := store.SaveClusterEmbeddings(config.ClusterEmbeddingsPath(dataDir, num), num, subset, vectors, 0); err != nil {
			return nil, fmt.Errorf("failed to save cluster %d embeddings: %w", num, err)
		}
		if proj != nil {
			reduced, err := proj.Transform(vectors)
			if err != nil {
				return nil, fmt.Errorf("failed to project cluster %d: %w", num, err)
			}
			if err := store.SaveClusterEmbeddings(config.ClusterReducedPath(dataDir, num), num, subset, reduced, u.reducer.Components()); err != nil {
				return nil, fmt.Errorf("failed to save cluster %d reduced embeddings: %w", num, err)
			}
		}
		slog.Info("exported cluster",
			"cluster", num, "label", cluster.Label, "size", len(subset),
			"density", fmt.Sprintf("%.4f", cluster.Density))
	}

	return &ClusterResult{Selected: selected, Assignment: assignment}, nil
}
