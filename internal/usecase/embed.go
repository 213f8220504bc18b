package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"debias/config"
	"debias/internal/adapter/store"
	"debias/internal/domain"
	"debias/internal/port"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace to single spaces and trims the ends.
func CleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// EmbedUseCase turns a raw record file into a cleaned record table and a
// parallel embedding matrix, both persisted under the data directory.
type EmbedUseCase struct {
	embedder   port.Embedder
	textColumn string
	batchSize  int
}

func NewEmbedUseCase(embedder port.Embedder, textColumn string, batchSize int) *EmbedUseCase {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EmbedUseCase{embedder: embedder, textColumn: textColumn, batchSize: batchSize}
}

// Run loads records from inputPath, cleans the free-text column, embeds every
// record and saves both artifacts under dataDir. A previously saved matrix
// with a matching row count is reused instead of re-embedding. The progress
// callback, if non-nil, is invoked after each batch with (done, total).
func (u *EmbedUseCase) Run(ctx context.Context, inputPath, dataDir string, progress func(done, total int)) (*domain.RecordTable, domain.Matrix, error) {
	table, err := store.LoadRecords(inputPath, u.textColumn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load records: %w", err)
	}
	for i := range table.Rows {
		table.Rows[i][table.TextCol] = CleanText(table.Rows[i][table.TextCol])
	}

	if err := config.EnsureDirs(dataDir); err != nil {
		return nil, nil, err
	}
	if err := store.SaveRecords(config.CleanedRecordsPath(dataDir), table); err != nil {
		return nil, nil, fmt.Errorf("failed to save cleaned records: %w", err)
	}

	matrixPath := config.EmbeddingsPath(dataDir)
	if cached, err := store.LoadMatrix(matrixPath); err == nil && cached.Rows() == table.Len() {
		slog.Info("reusing cached embeddings", "path", matrixPath, "rows", cached.Rows())
		return table, cached, nil
	}

	matrix, err := u.embed(ctx, table, progress)
	if err != nil {
		return nil, nil, err
	}
	if err := store.SaveMatrix(matrixPath, matrix); err != nil {
		return nil, nil, fmt.Errorf("failed to save embeddings: %w", err)
	}
	slog.Info("embedded records",
		"rows", matrix.Rows(), "dimension", matrix.Cols(), "model", u.embedder.ModelName())
	return table, matrix, nil
}

func (u *EmbedUseCase) embed(ctx context.Context, table *domain.RecordTable, progress func(done, total int)) (domain.Matrix, error) {
	total := table.Len()
	matrix := make(domain.Matrix, 0, total)
	for start := 0; start < total; start += u.batchSize {
		end := start + u.batchSize
		if end > total {
			end = total
		}
		texts := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			texts = append(texts, table.Text(i))
		}
		vectors, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch at record %d: %w", start, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		matrix = append(matrix, vectors...)
		if progress != nil {
			progress(end, total)
		}
	}
	return matrix, nil
}
