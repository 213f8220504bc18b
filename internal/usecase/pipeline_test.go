package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"debias/config"
	"debias/internal/adapter/embedding"
	"debias/internal/adapter/store"
	"debias/internal/domain"
)

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, clusterNum int, samples []string) (string, error) {
	return fmt.Sprintf("Cluster %d: %d sampled records", clusterNum, len(samples)), nil
}

func (stubSummarizer) ModelName() string { return "stub" }

// writeTestCSV creates a record file with two groups of identical texts, so
// the mock embedder places each group at its own point in embedding space.
func writeTestCSV(t *testing.T, dir string, perGroup int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("ID,Resume_str\n")
	for i := 0; i < perGroup; i++ {
		fmt.Fprintf(&b, "%d,experienced   software engineer\n", i)
	}
	for i := 0; i < perGroup; i++ {
		fmt.Fprintf(&b, "%d,registered nurse with ICU background\n", perGroup+i)
	}
	path := filepath.Join(dir, "resumes.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.MinClusterSize = 5
	cfg.Pipeline.MinSamples = 3
	cfg.Pipeline.ClusterCount = 2
	cfg.Pipeline.TargetClusters = []int{1}
	return cfg
}

func TestCleanText(t *testing.T) {
	got := CleanText("  experienced \t software\n\nengineer ")
	if got != "experienced software engineer" {
		t.Fatalf("got %q", got)
	}
}

func TestRunnerFullPipeline(t *testing.T) {
	dir := t.TempDir()
	input := writeTestCSV(t, dir, 15)
	cfg := testConfig()

	runner := NewRunner(cfg, embedding.NewMockEmbedder(8), stubSummarizer{}, nil)
	result, err := runner.Run(context.Background(), input, dir, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.Table.Len() != 30 || result.Matrix.Rows() != 30 {
		t.Fatalf("expected 30 records, got table=%d matrix=%d", result.Table.Len(), result.Matrix.Rows())
	}
	if result.Table.Text(0) != "experienced software engineer" {
		t.Fatalf("text not cleaned: %q", result.Table.Text(0))
	}
	if got := result.Clusters.Assignment.NumClusters; got != 2 {
		t.Fatalf("expected 2 clusters, got %d", got)
	}
	if len(result.Clusters.Selected) != 2 {
		t.Fatalf("expected 2 selected clusters, got %d", len(result.Clusters.Selected))
	}
	if len(result.Analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(result.Analyses))
	}

	// Target cluster 1 has 15 members, half rounded down removed.
	p := result.Partition
	if p.Summary.RemovedCount != 7 {
		t.Fatalf("expected 7 removed, got %d", p.Summary.RemovedCount)
	}
	if p.Summary.KeptCount+p.Summary.RemovedCount != 30 {
		t.Fatalf("partition not total: %+v", p.Summary)
	}

	wantFiles := []string{
		config.CleanedRecordsPath(dir),
		config.EmbeddingsPath(dir),
		config.ClusterRecordsPath(dir, 1),
		config.ClusterEmbeddingsPath(dir, 1),
		config.ClusterReducedPath(dir, 2),
		filepath.Join(config.ClustersDir(dir), "all_clusters.csv"),
		filepath.Join(config.AnalysisDir(dir), "cluster_1_analysis.txt"),
		filepath.Join(config.AnalysisDir(dir), "all_clusters_analysis.json"),
		filepath.Join(config.UnbiasedDir(dir), "unbiased_resumes.csv"),
		filepath.Join(config.UnbiasedDir(dir), "removed_entries.csv"),
		filepath.Join(config.UnbiasedDir(dir), "summary.json"),
		filepath.Join(config.UnbiasedDir(dir), "unbiasing_summary.txt"),
	}
	for _, path := range wantFiles {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing artifact %s: %v", path, err)
		}
	}
}

func TestRunnerDeterministicAcrossRuns(t *testing.T) {
	cfg := testConfig()
	embedder := embedding.NewMockEmbedder(8)

	run := func() []int {
		dir := t.TempDir()
		input := writeTestCSV(t, dir, 12)
		runner := NewRunner(cfg, embedder, nil, nil)
		result, err := runner.Run(context.Background(), input, dir, 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		return result.Partition.RemovedIndices
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("removals differ across identical runs: %v vs %v", first, second)
	}
}

func TestRunnerReusesCachedEmbeddings(t *testing.T) {
	dir := t.TempDir()
	input := writeTestCSV(t, dir, 10)
	cfg := testConfig()

	runner := NewRunner(cfg, embedding.NewMockEmbedder(8), nil, nil)
	first, err := runner.Run(context.Background(), input, dir, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	// A second run must load the saved matrix instead of re-embedding.
	cached, err := store.LoadMatrix(config.EmbeddingsPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if cached.Rows() != first.Matrix.Rows() {
		t.Fatalf("cached matrix has %d rows, want %d", cached.Rows(), first.Matrix.Rows())
	}
	second, err := runner.Run(context.Background(), input, dir, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Matrix, second.Matrix) {
		t.Fatal("second run did not reuse the saved embeddings")
	}
}

func TestRunJobRecordsStatus(t *testing.T) {
	dir := t.TempDir()
	input := writeTestCSV(t, dir, 10)
	cfg := testConfig()

	jobs, err := store.NewBoltJobStore(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer jobs.Close()

	job := domain.Job{ID: "job-1", Dir: dir, ClusterCount: 2, RowCount: 20}
	if err := jobs.Put(job); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(cfg, embedding.NewMockEmbedder(8), nil, jobs)
	runner.RunJob(context.Background(), job, input)

	got, err := jobs.Get("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobCompleted {
		t.Fatalf("expected completed job, got %s (error %q)", got.Status, got.Error)
	}
}

func TestRunJobFailureMarked(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()

	jobs, err := store.NewBoltJobStore(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer jobs.Close()

	job := domain.Job{ID: "job-2", Dir: dir, ClusterCount: 2}
	if err := jobs.Put(job); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(cfg, embedding.NewMockEmbedder(8), nil, jobs)
	runner.RunJob(context.Background(), job, filepath.Join(dir, "does_not_exist.csv"))

	got, err := jobs.Get("job-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobFailed || got.Error == "" {
		t.Fatalf("expected failed job with error, got %s (%q)", got.Status, got.Error)
	}
}
