package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"debias/config"
	"debias/internal/adapter/store"
	"debias/internal/api"
	"debias/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve pipeline results over HTTP",
	Long: `Start the JSON API over the data directory's artifacts. Uploaded
datasets are processed in the background and tracked as jobs.

Examples:
  debias serve
  debias serve --dir ./data`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetDataDir()

	if err := config.EnsureDirs(dir); err != nil {
		return fmt.Errorf("failed to prepare data directory: %w", err)
	}

	jobs, err := store.NewBoltJobStore(config.JobDBPath(dir))
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer jobs.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	runner := usecase.NewRunner(cfg, embedder, newSummarizer(cfg), jobs)

	return api.NewServer(cfg, dir, runner, jobs).Start()
}
