package store

import (
	"encoding/json"
	"fmt"
	"os"

	"debias/internal/domain"
)

// ClusterEmbeddings is the on-disk JSON shape of one cluster's embedding
// export. RecordID is the index into the full dataset, ID the position within
// the cluster.
type ClusterEmbeddings struct {
	ClusterID       int            `json:"cluster_id"`
	TotalEmbeddings int            `json:"total_embeddings"`
	Dimensions      int            `json:"dimensions,omitempty"`
	Embeddings      []ClusterEntry `json:"embeddings"`
}

// ClusterEntry is one record's embedding within a cluster export.
type ClusterEntry struct {
	ID        int       `json:"id"`
	RecordID  int       `json:"record_id"`
	ClusterID int       `json:"cluster_id"`
	Embedding []float64 `json:"embedding"`
}

// SaveClusterEmbeddings writes the embedding export for one cluster. The
// vectors slice is parallel to indices. dimensions of 0 omits the dimensions
// field, matching the full-dimensional export.
func SaveClusterEmbeddings(path string, clusterNum int, indices []int, vectors domain.Matrix, dimensions int) error {
	export := ClusterEmbeddings{
		ClusterID:       clusterNum,
		TotalEmbeddings: len(indices),
		Dimensions:      dimensions,
		Embeddings:      make([]ClusterEntry, 0, len(indices)),
	}
	for i, idx := range indices {
		var vec []float64
		if i < len(vectors) {
			vec = vectors[i]
		}
		export.Embeddings = append(export.Embeddings, ClusterEntry{
			ID:        i,
			RecordID:  idx,
			ClusterID: clusterNum,
			Embedding: vec,
		})
	}

	data, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("failed to marshal cluster embeddings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadClusterEmbeddings reads a cluster embedding export. A missing file is
// reported as domain.ErrMissingArtifact so callers can skip the cluster.
func LoadClusterEmbeddings(path string) (*ClusterEmbeddings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: cluster embeddings %s", domain.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to read cluster embeddings: %w", err)
	}

	var export ClusterEmbeddings
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse cluster embeddings %s: %w", path, err)
	}
	return &export, nil
}

// RecordIDs returns the dataset indices of the export's members, in file
// order, duplicates included.
func (c *ClusterEmbeddings) RecordIDs() []int {
	ids := make([]int, 0, len(c.Embeddings))
	for _, e := range c.Embeddings {
		ids = append(ids, e.RecordID)
	}
	return ids
}
