package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Data directory layout. Every pipeline run works inside one data directory;
// these helpers keep the artifact names in one place.

// CleanedRecordsPath is the cleaned record CSV.
func CleanedRecordsPath(dir string) string {
	return filepath.Join(dir, "cleaned_resumes.csv")
}

// EmbeddingsPath is the cached full-dimensional embedding matrix.
func EmbeddingsPath(dir string) string {
	return filepath.Join(dir, "resume_embeddings.bin")
}

// ClustersDir holds per-cluster exports.
func ClustersDir(dir string) string {
	return filepath.Join(dir, "clusters")
}

// AnalysisDir holds LLM cluster analyses.
func AnalysisDir(dir string) string {
	return filepath.Join(dir, "cluster_analysis")
}

// UnbiasedDir holds the rebalanced dataset outputs.
func UnbiasedDir(dir string) string {
	return filepath.Join(dir, "unbiased_dataset")
}

// UploadsDir holds uploaded datasets, one subdirectory per job.
func UploadsDir(dir string) string {
	return filepath.Join(dir, "uploads")
}

// JobDBPath is the BoltDB file tracking pipeline jobs.
func JobDBPath(dir string) string {
	return filepath.Join(dir, "debias.db")
}

// ClusterRecordsPath is the CSV export of one selected cluster. Cluster
// numbers are 1-based ranks.
func ClusterRecordsPath(dir string, clusterNum int) string {
	return filepath.Join(ClustersDir(dir), fmt.Sprintf("cluster_%d.csv", clusterNum))
}

// ClusterEmbeddingsPath is the full-dimensional embedding export of one
// selected cluster.
func ClusterEmbeddingsPath(dir string, clusterNum int) string {
	return filepath.Join(ClustersDir(dir), fmt.Sprintf("cluster_%d_embeddings.json", clusterNum))
}

// ClusterReducedPath is the 6-D embedding export of one selected cluster.
func ClusterReducedPath(dir string, clusterNum int) string {
	return filepath.Join(ClustersDir(dir), fmt.Sprintf("cluster_%d_embeddings_6d.json", clusterNum))
}

// EnsureDirs creates the artifact directories for a data directory.
func EnsureDirs(dir string) error {
	for _, d := range []string{ClustersDir(dir), AnalysisDir(dir), UnbiasedDir(dir), UploadsDir(dir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
