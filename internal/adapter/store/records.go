package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"debias/internal/domain"
)

// LoadRecords reads a CSV record table. The named text column must exist; all
// columns are preserved verbatim so the table round-trips exactly.
func LoadRecords(path, textColumn string) (*domain.RecordTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: record file %s is empty", domain.ErrPrecondition, path)
	}

	header := rows[0]
	textCol := -1
	for i, name := range header {
		if name == textColumn {
			textCol = i
			break
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("%w: record file %s has no %q column", domain.ErrPrecondition, path, textColumn)
	}

	return &domain.RecordTable{
		Header:  header,
		Rows:    rows[1:],
		TextCol: textCol,
	}, nil
}

// SaveRecords writes a record table back to CSV.
func SaveRecords(path string, table *domain.RecordTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create record file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Header); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SaveRecordsWithClusters writes the full table plus a trailing cluster
// column: each row carries its cluster label, noise rows carry -1.
func SaveRecordsWithClusters(path string, table *domain.RecordTable, labels []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create record file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string{}, table.Header...), "cluster")
	if err := w.Write(header); err != nil {
		return err
	}
	for i, row := range table.Rows {
		label := domain.NoiseLabel
		if i < len(labels) {
			label = labels[i]
		}
		out := append(append([]string{}, row...), strconv.Itoa(label))
		if err := w.Write(out); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
