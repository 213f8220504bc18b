package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"debias/config"
	"debias/internal/adapter/analysis"
	"debias/internal/adapter/embedding"
	"debias/internal/port"
)

var (
	cfgFile string
	cfg     *config.Config
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "debias",
	Short: "Resume dataset debiasing pipeline",
	Long: `debias embeds a resume dataset, finds its densest clusters,
summarizes them, and removes a deterministic fraction of the dominant
clusters to produce a rebalanced dataset.

Example usage:
  debias run Resume.csv       # Run the full pipeline
  debias cluster              # Re-cluster cached embeddings
  debias rebalance            # Rebuild the unbiased dataset
  debias serve                # Serve results over HTTP`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		// .env is optional; environment wins over file values.
		_ = godotenv.Load()

		if dataDir == "" {
			dataDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(dataDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		setupLogging(cfg.Logging.Level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./debias.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "dir", "d", "", "data directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetDataDir() string {
	return dataDir
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// newEmbedder builds the configured embedding backend.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(e.APIKeyEnv, e.Model)
	case "ollama":
		return embedding.NewOllamaEmbedder(e.Model, e.BaseURL)
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", e.Provider)
	}
}

// newSummarizer builds the cluster summarizer, or nil when analysis is
// disabled or no API key is configured.
func newSummarizer(cfg *config.Config) port.Summarizer {
	if !cfg.Analysis.Enabled {
		return nil
	}
	s, err := analysis.NewSummarizer(cfg.Analysis.APIKeyEnv, cfg.Analysis.Model)
	if err != nil {
		slog.Warn("cluster analysis disabled", "reason", err)
		return nil
	}
	return s
}
