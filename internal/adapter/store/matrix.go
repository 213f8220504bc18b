package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"debias/internal/domain"
)

// Matrix files carry a small header (magic, version, shape) followed by
// little-endian float64 row data, so vector values round-trip bit-exactly.
var matrixMagic = [4]byte{'D', 'B', 'M', 'X'}

const matrixVersion uint32 = 1

// SaveMatrix writes an embedding matrix to path.
func SaveMatrix(path string, m domain.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create matrix file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(matrixMagic[:]); err != nil {
		return err
	}
	hdr := []uint32{matrixVersion, uint32(m.Rows()), uint32(m.Cols())}
	for _, v := range hdr {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	cols := m.Cols()
	buf := make([]byte, 8)
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d values, want %d", domain.ErrPrecondition, i, len(row), cols)
		}
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// LoadMatrix reads an embedding matrix written by SaveMatrix.
func LoadMatrix(path string) (domain.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: matrix file %s", domain.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to open matrix file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read matrix header: %w", err)
	}
	if magic != matrixMagic {
		return nil, fmt.Errorf("%w: %s is not a matrix file", domain.ErrPrecondition, path)
	}

	var version, rows, cols uint32
	for _, p := range []*uint32{&version, &rows, &cols} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("failed to read matrix header: %w", err)
		}
	}
	if version != matrixVersion {
		return nil, fmt.Errorf("%w: unsupported matrix version %d", domain.ErrPrecondition, version)
	}

	m := make(domain.Matrix, rows)
	buf := make([]byte, 8)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("truncated matrix file %s: %w", path, err)
			}
			row[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
		}
		m[i] = row
	}
	return m, nil
}
