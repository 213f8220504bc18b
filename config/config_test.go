package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.MinClusterSize != 10 {
		t.Errorf("expected MinClusterSize=10, got %d", cfg.Pipeline.MinClusterSize)
	}
	if cfg.Pipeline.RemovalFraction != 0.5 {
		t.Errorf("expected RemovalFraction=0.5, got %f", cfg.Pipeline.RemovalFraction)
	}
	if cfg.Pipeline.Seed != 42 {
		t.Errorf("expected Seed=42, got %d", cfg.Pipeline.Seed)
	}
	if cfg.Embedding.Dimension != 384 {
		t.Errorf("expected Dimension=384, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Analysis.SampleSize != 20 {
		t.Errorf("expected SampleSize=20, got %d", cfg.Analysis.SampleSize)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "debias.yaml")

	content := `
pipeline:
  min_cluster_size: 15
  cluster_count: 4
embedding:
  provider: mock
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pipeline.MinClusterSize != 15 {
		t.Errorf("expected MinClusterSize=15, got %d", cfg.Pipeline.MinClusterSize)
	}
	if cfg.Pipeline.ClusterCount != 4 {
		t.Errorf("expected ClusterCount=4, got %d", cfg.Pipeline.ClusterCount)
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("expected provider=mock, got %s", cfg.Embedding.Provider)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.Seed != 42 {
		t.Errorf("expected default Seed=42, got %d", cfg.Pipeline.Seed)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	content := "pipeline:\n  cluster_count: 9\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "debias.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.ClusterCount != 9 {
		t.Errorf("expected ClusterCount=9, got %d", cfg.Pipeline.ClusterCount)
	}
}

func TestClampClusterCount(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 6},
		{-3, 6},
		{1, 1},
		{7, 7},
		{10, 10},
		{25, 10},
	}
	for _, c := range cases {
		if got := ClampClusterCount(c.in); got != c.want {
			t.Errorf("ClampClusterCount(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
