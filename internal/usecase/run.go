package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"debias/config"
	"debias/internal/adapter/clustering"
	"debias/internal/adapter/projection"
	"debias/internal/domain"
	"debias/internal/port"
)

// Runner drives the full pipeline for one dataset: embed, cluster, analyze,
// rebalance. Every stage writes its artifacts under the run's data directory
// so later stages and the API can pick them up independently.
type Runner struct {
	cfg        *config.Config
	embedder   port.Embedder
	summarizer port.Summarizer // nil disables the analysis stage
	jobs       port.JobStore   // nil when running outside the API
}

func NewRunner(cfg *config.Config, embedder port.Embedder, summarizer port.Summarizer, jobs port.JobStore) *Runner {
	return &Runner{cfg: cfg, embedder: embedder, summarizer: summarizer, jobs: jobs}
}

// RunResult aggregates what each stage produced.
type RunResult struct {
	Table     *domain.RecordTable
	Matrix    domain.Matrix
	Clusters  *ClusterResult
	Analyses  []ClusterAnalysis
	Partition *domain.Partition
}

// Run executes the pipeline on inputPath, writing artifacts under dataDir.
// clusterCount overrides the configured count when positive. The progress
// callback is forwarded to the embedding stage.
func (r *Runner) Run(ctx context.Context, inputPath, dataDir string, clusterCount int, progress func(done, total int)) (*RunResult, error) {
	p := r.cfg.Pipeline
	if clusterCount <= 0 {
		clusterCount = p.ClusterCount
	}
	clusterCount = config.ClampClusterCount(clusterCount)

	embed := NewEmbedUseCase(r.embedder, p.TextColumn, r.cfg.Embedding.BatchSize)
	table, matrix, err := embed.Run(ctx, inputPath, dataDir, progress)
	if err != nil {
		return nil, fmt.Errorf("embed stage: %w", err)
	}
	result := &RunResult{Table: table, Matrix: matrix}

	clusterer := clustering.NewClusterer(p.MinClusterSize, p.MinSamples, p.Neighbors)
	reducer := projection.NewReducer(p.Components)
	cluster := NewClusterUseCase(clusterer, reducer)
	result.Clusters, err = cluster.Run(table, matrix, clusterCount, dataDir)
	if err != nil {
		return nil, fmt.Errorf("cluster stage: %w", err)
	}

	if r.summarizer != nil && r.cfg.Analysis.Enabled {
		analyze := NewAnalyzeUseCase(r.summarizer, p.TextColumn, r.cfg.Analysis.SampleSize, r.cfg.Analysis.MaxChars, p.Seed)
		result.Analyses, err = analyze.Run(ctx, dataDir, len(result.Clusters.Selected))
		if err != nil {
			return nil, fmt.Errorf("analyze stage: %w", err)
		}
	} else {
		slog.Info("analysis stage disabled")
	}

	rebalance := NewRebalanceUseCase(reducer, p.RemovalFraction, p.Seed)
	result.Partition, err = rebalance.RunFromArtifacts(dataDir, table, matrix, p.TargetClusters)
	if err != nil {
		return nil, fmt.Errorf("rebalance stage: %w", err)
	}

	slog.Info("pipeline complete",
		"records", table.Len(),
		"kept", result.Partition.Summary.KeptCount,
		"removed", result.Partition.Summary.RemovedCount)
	return result, nil
}

// RunJob executes the pipeline for an API-submitted job, tracking its status
// in the job store. It never returns an error to the caller; failures are
// recorded on the job.
func (r *Runner) RunJob(ctx context.Context, job domain.Job, inputPath string) {
	if r.jobs == nil {
		return
	}
	if err := r.jobs.SetStatus(job.ID, domain.JobProcessing, ""); err != nil {
		slog.Error("failed to mark job processing", "job", job.ID, "error", err)
	}
	_, err := r.Run(ctx, inputPath, job.Dir, job.ClusterCount, nil)
	if err != nil {
		slog.Error("job failed", "job", job.ID, "error", err)
		if serr := r.jobs.SetStatus(job.ID, domain.JobFailed, err.Error()); serr != nil {
			slog.Error("failed to mark job failed", "job", job.ID, "error", serr)
		}
		return
	}
	if err := r.jobs.SetStatus(job.ID, domain.JobCompleted, ""); err != nil {
		slog.Error("failed to mark job completed", "job", job.ID, "error", err)
	}
	slog.Info("job completed", "job", job.ID)
}
