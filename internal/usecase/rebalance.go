package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"debias/config"
	"debias/internal/adapter/fs"
	"debias/internal/adapter/projection"
	"debias/internal/adapter/store"
	"debias/internal/domain"
)

// RebalanceTarget names one cluster to thin out: its 1-based cluster number
// and its member indices into the full dataset.
type RebalanceTarget struct {
	Cluster int
	Members []int
}

// RebalanceUseCase produces the debiased split: it removes a deterministic
// fraction of each target cluster and projects all partitions with a single
// reduction fitted on the full matrix, so kept and removed vectors share one
// coordinate system.
type RebalanceUseCase struct {
	reducer  *projection.Reducer
	fraction float64
	seed     int64
}

// NewRebalanceUseCase creates a rebalancer. The fraction is clamped to
// [0, 1]; non-positive values fall back to the 0.5 default.
func NewRebalanceUseCase(reducer *projection.Reducer, fraction float64, seed int64) *RebalanceUseCase {
	if fraction <= 0 {
		fraction = 0.5
	}
	if fraction > 1 {
		fraction = 1
	}
	return &RebalanceUseCase{reducer: reducer, fraction: fraction, seed: seed}
}

// SelectRemovals deterministically picks floor(count*fraction) indices to
// remove from a cluster's member list. Duplicates are dropped first, the
// remainder shuffled with a generator seeded fresh on every call, so the same
// membership, fraction and seed always produce the same selection. The
// result is sorted ascending.
func SelectRemovals(members []int, fraction float64, seed int64) []int {
	uniq := make([]int, 0, len(members))
	seen := make(map[int]bool, len(members))
	for _, idx := range members {
		if !seen[idx] {
			seen[idx] = true
			uniq = append(uniq, idx)
		}
	}
	sort.Ints(uniq)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(uniq), func(i, j int) {
		uniq[i], uniq[j] = uniq[j], uniq[i]
	})

	n := int(float64(len(uniq)) * fraction)
	selected := append([]int{}, uniq[:n]...)
	sort.Ints(selected)
	return selected
}

// Rebalance splits the dataset. Record order is preserved in both partitions.
func (u *RebalanceUseCase) Rebalance(table *domain.RecordTable, matrix domain.Matrix, targets []RebalanceTarget) (*domain.Partition, error) {
	if matrix.Rows() == 0 {
		return nil, fmt.Errorf("%w: empty embedding matrix", domain.ErrPrecondition)
	}
	if table.Len() != matrix.Rows() {
		return nil, domain.DimensionError("record table has %d rows, matrix has %d", table.Len(), matrix.Rows())
	}

	removalSet := make(map[int]bool)
	removals := make([]domain.ClusterRemoval, 0, len(targets))
	for _, target := range targets {
		selected := SelectRemovals(target.Members, u.fraction, u.seed)
		for _, idx := range selected {
			removalSet[idx] = true
		}
		original := len(target.Members)
		pct := 0.0
		if original > 0 {
			pct = float64(len(selected)) / float64(original) * 100
		}
		removals = append(removals, domain.ClusterRemoval{
			Cluster:    target.Cluster,
			Original:   original,
			Removed:    len(selected),
			Remaining:  original - len(selected),
			Percentage: pct,
		})
		slog.Info("selected entries for removal",
			"cluster", target.Cluster, "removed", len(selected), "of", original)
	}

	var kept, removed []int
	for i := 0; i < table.Len(); i++ {
		if removalSet[i] {
			removed = append(removed, i)
		} else {
			kept = append(kept, i)
		}
	}

	// One projection fitted on the full matrix keeps every partition in the
	// same coordinate system.
	proj, allReduced, err := u.reducer.FitTransform(matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to fit projection on full matrix: %w", err)
	}
	keptFull := matrix.Subset(kept)
	removedFull := matrix.Subset(removed)
	keptReduced, err := proj.Transform(keptFull)
	if err != nil {
		return nil, fmt.Errorf("failed to project kept embeddings: %w", err)
	}
	remReduced, err := proj.Transform(removedFull)
	if err != nil {
		return nil, fmt.Errorf("failed to project removed embeddings: %w", err)
	}

	return &domain.Partition{
		KeptIndices:    kept,
		RemovedIndices: removed,
		Kept:           table.Subset(kept),
		Removed:        table.Subset(removed),
		KeptFull:       keptFull,
		RemovedFull:    removedFull,
		AllReduced:     allReduced,
		KeptReduced:    keptReduced,
		RemReduced:     remReduced,
		Summary: domain.RebalanceSummary{
			OriginalCount:     table.Len(),
			KeptCount:         len(kept),
			RemovedCount:      len(removed),
			RemovalPercentage: float64(len(removed)) / float64(table.Len()) * 100,
			ClusterRemovals:   removals,
			ExplainedVariance: proj.ExplainedVariance(),
		},
	}, nil
}

// RunFromArtifacts loads the target clusters' embedding exports from the data
// directory and rebalances. A missing cluster export produces a warning and
// is skipped; only having no targets at all is an error.
func (u *RebalanceUseCase) RunFromArtifacts(dataDir string, table *domain.RecordTable, matrix domain.Matrix, targetClusters []int) (*domain.Partition, error) {
	var targets []RebalanceTarget
	for _, num := range targetClusters {
		name := filepath.Base(config.ClusterEmbeddingsPath(dataDir, num))
		locator := fs.NewLocator(
			fs.Source{Name: "clusters", Path: config.ClusterEmbeddingsPath(dataDir, num)},
			fs.Source{Name: "unbiased", Path: filepath.Join(config.UnbiasedDir(dataDir), name)},
		)
		path, err := locator.Locate()
		if err != nil {
			slog.Warn("skipping cluster", "cluster", num, "reason", err)
			continue
		}
		export, err := store.LoadClusterEmbeddings(path)
		if err != nil {
			slog.Warn("skipping cluster", "cluster", num, "reason", err)
			continue
		}
		targets = append(targets, RebalanceTarget{Cluster: num, Members: export.RecordIDs()})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target cluster artifacts available", domain.ErrMissingArtifact)
	}

	partition, err := u.Rebalance(table, matrix, targets)
	if err != nil {
		return nil, err
	}
	if err := u.save(dataDir, partition); err != nil {
		return nil, err
	}
	return partition, nil
}

// save writes every partition artifact under the unbiased dataset directory.
func (u *RebalanceUseCase) save(dataDir string, p *domain.Partition) error {
	dir := config.UnbiasedDir(dataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := store.SaveRecords(filepath.Join(dir, "unbiased_resumes.csv"), p.Kept); err != nil {
		return fmt.Errorf("failed to save unbiased records: %w", err)
	}
	if err := store.SaveRecords(filepath.Join(dir, "removed_entries.csv"), p.Removed); err != nil {
		return fmt.Errorf("failed to save removed records: %w", err)
	}

	matrices := map[string]domain.Matrix{
		"unbiased_embeddings_full.bin": p.KeptFull,
		"removed_embeddings_full.bin":  p.RemovedFull,
		"all_embeddings_6d.bin":        p.AllReduced,
		"unbiased_embeddings_6d.bin":   p.KeptReduced,
		"removed_embeddings_6d.bin":    p.RemReduced,
	}
	for name, m := range matrices {
		if err := store.SaveMatrix(filepath.Join(dir, name), m); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
	}

	summaryJSON, err := json.MarshalIndent(p.Summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), summaryJSON, 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "unbiasing_summary.txt"), []byte(formatSummary(p.Summary)), 0644)
}

func formatSummary(s domain.RebalanceSummary) string {
	out := "UNBIASED DATASET SUMMARY\n========================\n\n"
	out += fmt.Sprintf("Original dataset size: %d entries\n", s.OriginalCount)
	out += fmt.Sprintf("Unbiased dataset size: %d entries\n", s.KeptCount)
	out += fmt.Sprintf("Removed entries: %d\n", s.RemovedCount)
	out += fmt.Sprintf("Overall removal percentage: %.2f%%\n", s.RemovalPercentage)
	out += fmt.Sprintf("Explained variance of 6-D projection: %.2f%%\n\n", s.ExplainedVariance*100)
	out += "Removal by cluster:\n"
	for _, r := range s.ClusterRemovals {
		out += fmt.Sprintf("  Cluster %d: Removed %d/%d entries (%.2f%%), %d remain\n",
			r.Cluster, r.Removed, r.Original, r.Percentage, r.Remaining)
	}
	return out
}
