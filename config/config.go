package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the debiasing pipeline.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PipelineConfig holds the clustering and rebalancing parameters.
type PipelineConfig struct {
	TextColumn      string  `yaml:"text_column"`      // free-text column in the record CSV
	MinClusterSize  int     `yaml:"min_cluster_size"` // HDBSCAN minimum cluster size
	MinSamples      int     `yaml:"min_samples"`      // HDBSCAN minimum samples
	ClusterCount    int     `yaml:"cluster_count"`    // top-K densest clusters to keep (1-10)
	Neighbors       int     `yaml:"neighbors"`        // k for the k-NN density score
	Components      int     `yaml:"components"`       // reduced dimension
	RemovalFraction float64 `yaml:"removal_fraction"` // share of each target cluster to remove
	Seed            int64   `yaml:"seed"`             // removal sampling seed
	TargetClusters  []int   `yaml:"target_clusters"`  // 1-based ranks of clusters to rebalance
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "ollama", "mock"
	Model     string `yaml:"model"`       // e.g. "all-minilm"
	APIKeyEnv string `yaml:"api_key_env"` // environment variable for API key
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// AnalysisConfig holds LLM cluster summarization configuration.
type AnalysisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	SampleSize int    `yaml:"sample_size"` // records sampled per cluster prompt
	MaxChars   int    `yaml:"max_chars"`   // per-record text cap in the prompt
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxPageSize int    `yaml:"max_page_size"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			TextColumn:      "Resume_str",
			MinClusterSize:  10,
			MinSamples:      5,
			ClusterCount:    6,
			Neighbors:       5,
			Components:      6,
			RemovalFraction: 0.5,
			Seed:            42,
			TargetClusters:  []int{1, 2, 3},
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "all-minilm",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			BatchSize: 100,
		},
		Analysis: AnalysisConfig{
			Enabled:    true,
			Model:      "gpt-4o-mini",
			APIKeyEnv:  "OPENAI_API_KEY",
			SampleSize: 20,
			MaxChars:   2000,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3002,
			MaxPageSize: 1000,
			MaxUploadMB: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ClampClusterCount bounds a requested cluster count to the supported 1-10
// range, falling back to the default for non-positive input.
func ClampClusterCount(n int) int {
	if n < 1 {
		return DefaultConfig().Pipeline.ClusterCount
	}
	if n > 10 {
		return 10
	}
	return n
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for debias.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "debias.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".debias", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
