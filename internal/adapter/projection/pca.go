package projection

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"debias/internal/domain"
)

// Components is the fixed output dimension of the reducer.
const Components = 6

// normFloor prevents division by zero when a projected row is all zeros;
// such rows stay zero instead of becoming NaN.
const normFloor = 1e-10

// Reducer maps high-dimensional vectors to a fixed low dimension while
// preserving maximal variance: standardize, project onto principal axes,
// L2-normalize. Fit returns an immutable Projection so independent runs can
// never contaminate each other's fitted state.
type Reducer struct {
	components int
}

// NewReducer creates a reducer with the given output dimension, defaulting to
// Components when non-positive.
func NewReducer(components int) *Reducer {
	if components <= 0 {
		components = Components
	}
	return &Reducer{components: components}
}

// Components returns the output dimension this reducer fits.
func (r *Reducer) Components() int {
	return r.components
}

// Projection is a fitted transform: per-feature mean and scale plus the
// principal axes, ordered by descending explained variance. Immutable after
// Fit. Axis signs are not stable across implementations; callers must not
// depend on them.
type Projection struct {
	mean   []float64
	scale  []float64
	axes   *mat.Dense // d x components
	ratios []float64
}

// Fit computes the projection from a reference matrix. The reference needs at
// least as many rows as output components and a consistent feature dimension.
func (r *Reducer) Fit(m domain.Matrix) (*Projection, error) {
	n, d := m.Rows(), m.Cols()
	if n < r.components {
		return nil, domain.DimensionError("need at least %d rows to fit projection, got %d", r.components, n)
	}
	if d < r.components {
		return nil, domain.DimensionError("need at least %d features, got %d", r.components, d)
	}
	for i, row := range m {
		if len(row) != d {
			return nil, domain.DimensionError("row %d has %d features, want %d", i, len(row), d)
		}
	}

	mean := make([]float64, d)
	scale := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			col[i] = m[i][j]
		}
		mean[j] = stat.Mean(col, nil)
		scale[j] = math.Sqrt(stat.PopVariance(col, nil))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	standardized := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			standardized.Set(i, j, (m[i][j]-mean[j])/scale[j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(standardized, mat.SVDThin) {
		return nil, domain.DimensionError("singular value decomposition failed")
	}

	var v mat.Dense
	svd.VTo(&v)
	singular := svd.Values(nil)

	axes := mat.NewDense(d, r.components, nil)
	for j := 0; j < d; j++ {
		for c := 0; c < r.components; c++ {
			axes.Set(j, c, v.At(j, c))
		}
	}

	total := 0.0
	for _, s := range singular {
		total += s * s
	}
	ratios := make([]float64, r.components)
	if total > 0 {
		for c := 0; c < r.components; c++ {
			ratios[c] = singular[c] * singular[c] / total
		}
	}

	return &Projection{mean: mean, scale: scale, axes: axes, ratios: ratios}, nil
}

// FitTransform fits on m and transforms it in one step, for when reference
// and target are the same set.
func (r *Reducer) FitTransform(m domain.Matrix) (*Projection, domain.Matrix, error) {
	p, err := r.Fit(m)
	if err != nil {
		return nil, nil, err
	}
	out, err := p.Transform(m)
	if err != nil {
		return nil, nil, err
	}
	return p, out, nil
}

// Components returns the output dimension of the projection.
func (p *Projection) Components() int {
	_, c := p.axes.Dims()
	return c
}

// ExplainedVarianceRatios returns the per-axis explained variance share.
// Diagnostic only; never drives control flow.
func (p *Projection) ExplainedVarianceRatios() []float64 {
	out := make([]float64, len(p.ratios))
	copy(out, p.ratios)
	return out
}

// ExplainedVariance returns the summed explained variance share of all axes.
func (p *Projection) ExplainedVariance() float64 {
	sum := 0.0
	for _, r := range p.ratios {
		sum += r
	}
	return sum
}

// Transform standardizes m with the fitted mean and scale, projects it onto
// the principal axes and unit-normalizes every row. Rows that project to the
// exact zero vector stay zero.
func (p *Projection) Transform(m domain.Matrix) (domain.Matrix, error) {
	d := len(p.mean)
	_, components := p.axes.Dims()

	out := make(domain.Matrix, len(m))
	row := make([]float64, d)
	for i, src := range m {
		if len(src) != d {
			return nil, domain.DimensionError("row %d has %d features, projection was fitted on %d", i, len(src), d)
		}
		for j := 0; j < d; j++ {
			row[j] = (src[j] - p.mean[j]) / p.scale[j]
		}

		projected := make([]float64, components)
		for c := 0; c < components; c++ {
			sum := 0.0
			for j := 0; j < d; j++ {
				sum += row[j] * p.axes.At(j, c)
			}
			projected[c] = sum
		}

		norm := 0.0
		for _, v := range projected {
			norm += v * v
		}
		norm = math.Max(math.Sqrt(norm), normFloor)
		for c := range projected {
			projected[c] /= norm
		}
		out[i] = projected
	}
	return out, nil
}
