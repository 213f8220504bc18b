package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"debias/config"
	"debias/internal/adapter/store"
	"debias/internal/port"
)

// ClusterAnalysis is one cluster's LLM-generated description.
type ClusterAnalysis struct {
	Cluster  int    `json:"cluster"`
	Size     int    `json:"size"`
	Model    string `json:"model,omitempty"`
	Analysis string `json:"analysis"`
}

// AnalyzeUseCase summarizes each exported cluster by sampling a handful of
// its records and asking a language model what they have in common. Failures
// are recorded in the output rather than aborting the stage, so one bad
// completion does not lose the rest of the run.
type AnalyzeUseCase struct {
	summarizer port.Summarizer
	sampleSize int
	maxChars   int
	textColumn string
	seed       int64
}

func NewAnalyzeUseCase(summarizer port.Summarizer, textColumn string, sampleSize, maxChars int, seed int64) *AnalyzeUseCase {
	if sampleSize <= 0 {
		sampleSize = 20
	}
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &AnalyzeUseCase{
		summarizer: summarizer,
		sampleSize: sampleSize,
		maxChars:   maxChars,
		textColumn: textColumn,
		seed:       seed,
	}
}

// Run analyzes clusters 1..clusterCount from their record exports under
// dataDir. Each cluster gets a cluster_<n>_analysis.txt file and the whole
// set is collected into all_clusters_analysis.json.
func (u *AnalyzeUseCase) Run(ctx context.Context, dataDir string, clusterCount int) ([]ClusterAnalysis, error) {
	dir := config.AnalysisDir(dataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var analyses []ClusterAnalysis
	for num := 1; num <= clusterCount; num++ {
		table, err := store.LoadRecords(config.ClusterRecordsPath(dataDir, num), u.textColumn)
		if err != nil {
			slog.Warn("skipping cluster analysis", "cluster", num, "reason", err)
			continue
		}

		samples := u.sample(table.Len(), num)
		texts := make([]string, 0, len(samples))
		for _, idx := range samples {
			text := table.Text(idx)
			if len(text) > u.maxChars {
				text = text[:u.maxChars]
			}
			texts = append(texts, text)
		}

		analysis := ClusterAnalysis{Cluster: num, Size: table.Len(), Model: u.summarizer.ModelName()}
		summary, err := u.summarizer.Summarize(ctx, num, texts)
		if err != nil {
			slog.Error("cluster analysis failed", "cluster", num, "error", err)
			analysis.Analysis = fmt.Sprintf("ANALYSIS FAILED: %v", err)
		} else {
			analysis.Analysis = summary
		}
		analyses = append(analyses, analysis)

		txtPath := filepath.Join(dir, fmt.Sprintf("cluster_%d_analysis.txt", num))
		if err := os.WriteFile(txtPath, []byte(analysis.Analysis), 0644); err != nil {
			return nil, fmt.Errorf("failed to save cluster %d analysis: %w", num, err)
		}
		slog.Info("analyzed cluster", "cluster", num, "size", table.Len())
	}

	combined, err := json.MarshalIndent(analyses, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "all_clusters_analysis.json"), combined, 0644); err != nil {
		return nil, fmt.Errorf("failed to save combined analysis: %w", err)
	}
	return analyses, nil
}

// sample picks up to sampleSize distinct row indices, seeded per cluster so
// reruns sample the same records.
func (u *AnalyzeUseCase) sample(n, clusterNum int) []int {
	rng := rand.New(rand.NewSource(u.seed + int64(clusterNum)))
	perm := rng.Perm(n)
	if len(perm) > u.sampleSize {
		perm = perm[:u.sampleSize]
	}
	return perm
}
