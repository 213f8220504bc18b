package projection

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"debias/internal/domain"
)

func randomMatrix(rows, cols int, seed int64) domain.Matrix {
	rng := rand.New(rand.NewSource(seed))
	m := make(domain.Matrix, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		m[i] = row
	}
	return m
}

func TestFitTransformShapeAndNorm(t *testing.T) {
	m := randomMatrix(40, 12, 5)
	reducer := NewReducer(6)

	_, out, err := reducer.FitTransform(m)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}

	if len(out) != 40 {
		t.Fatalf("got %d rows, want 40", len(out))
	}
	for i, row := range out {
		if len(row) != 6 {
			t.Fatalf("row %d has %d components, want 6", i, len(row))
		}
		norm := 0.0
		for _, v := range row {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if math.Abs(norm-1) > 1e-6 {
			t.Errorf("row %d norm = %v, want 1", i, norm)
		}
	}
}

func TestFitTransformMatchesFitThenTransform(t *testing.T) {
	m := randomMatrix(25, 10, 11)
	reducer := NewReducer(6)

	_, combined, err := reducer.FitTransform(m)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	p, err := reducer.Fit(m)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	separate, err := p.Transform(m)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	for i := range combined {
		for j := range combined[i] {
			if combined[i][j] != separate[i][j] {
				t.Fatalf("element [%d][%d] differs: %v vs %v", i, j, combined[i][j], separate[i][j])
			}
		}
	}
}

func TestTransformSubsetConsistency(t *testing.T) {
	// Vectors projected as part of the whole matrix must match the same
	// vectors projected alone with the same fitted projection.
	m := randomMatrix(30, 10, 21)
	reducer := NewReducer(6)

	p, err := reducer.Fit(m)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	all, err := p.Transform(m)
	if err != nil {
		t.Fatalf("Transform all: %v", err)
	}

	indices := []int{2, 7, 19, 28}
	subset, err := p.Transform(m.Subset(indices))
	if err != nil {
		t.Fatalf("Transform subset: %v", err)
	}
	for i, idx := range indices {
		for j := range subset[i] {
			if subset[i][j] != all[idx][j] {
				t.Errorf("row %d component %d differs: %v vs %v", idx, j, subset[i][j], all[idx][j])
			}
		}
	}
}

func TestFitDeterminism(t *testing.T) {
	m := randomMatrix(20, 8, 33)
	reducer := NewReducer(6)

	_, first, err := reducer.FitTransform(m)
	if err != nil {
		t.Fatalf("first FitTransform: %v", err)
	}
	_, second, err := reducer.FitTransform(m)
	if err != nil {
		t.Fatalf("second FitTransform: %v", err)
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("non-deterministic fit at [%d][%d]: %v vs %v", i, j, first[i][j], second[i][j])
			}
		}
	}
}

func TestExplainedVarianceRatios(t *testing.T) {
	m := randomMatrix(50, 10, 9)
	reducer := NewReducer(6)

	p, err := reducer.Fit(m)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	ratios := p.ExplainedVarianceRatios()
	if len(ratios) != 6 {
		t.Fatalf("got %d ratios, want 6", len(ratios))
	}
	for i := 1; i < len(ratios); i++ {
		if ratios[i-1] < ratios[i] {
			t.Errorf("ratios not descending: %v", ratios)
		}
	}
	sum := p.ExplainedVariance()
	if sum <= 0 || sum > 1+1e-9 {
		t.Errorf("explained variance sum = %v, want in (0, 1]", sum)
	}
}

func TestFitTooFewRows(t *testing.T) {
	m := randomMatrix(4, 10, 2)
	reducer := NewReducer(6)

	if _, err := reducer.Fit(m); !errors.Is(err, domain.ErrPrecondition) {
		t.Errorf("expected precondition error for 4 rows, got %v", err)
	}
}

func TestFitRaggedMatrix(t *testing.T) {
	m := randomMatrix(10, 8, 2)
	m[3] = m[3][:5]
	reducer := NewReducer(6)

	if _, err := reducer.Fit(m); !errors.Is(err, domain.ErrPrecondition) {
		t.Errorf("expected precondition error for ragged matrix, got %v", err)
	}
}

func TestTransformDimensionMismatch(t *testing.T) {
	reducer := NewReducer(6)
	p, err := reducer.Fit(randomMatrix(12, 8, 4))
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := p.Transform(randomMatrix(3, 9, 4)); !errors.Is(err, domain.ErrPrecondition) {
		t.Errorf("expected precondition error for mismatched transform, got %v", err)
	}
}

func TestZeroProjectedRowStaysZero(t *testing.T) {
	m := randomMatrix(20, 8, 13)
	reducer := NewReducer(6)

	p, err := reducer.Fit(m)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	// The per-feature mean standardizes to the zero vector, which projects
	// to zero; normalization must leave it zero rather than emit NaN.
	mean := make([]float64, 8)
	for j := 0; j < 8; j++ {
		for i := range m {
			mean[j] += m[i][j]
		}
		mean[j] /= float64(len(m))
	}
	out, err := p.Transform(domain.Matrix{mean})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	for j, v := range out[0] {
		if math.Abs(v) > 1e-9 {
			t.Errorf("component %d = %v, want 0", j, v)
		}
	}
}

func TestZeroFeatureDoesNotDivideByZero(t *testing.T) {
	// One constant feature: its scale must be floored, not produce NaN.
	m := randomMatrix(15, 8, 6)
	for i := range m {
		m[i][3] = 2.5
	}
	reducer := NewReducer(6)

	_, out, err := reducer.FitTransform(m)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	for i, row := range out {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value at [%d][%d]: %v", i, j, v)
			}
		}
	}
}
