package domain

// Matrix is an ordered set of fixed-length embedding vectors, one row per
// source record. Row i corresponds to record i in the parallel RecordTable.
type Matrix [][]float64

// Rows returns the number of vectors in the matrix.
func (m Matrix) Rows() int {
	return len(m)
}

// Cols returns the vector dimension, or 0 for an empty matrix.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Subset returns the rows at the given indices, in the given order.
func (m Matrix) Subset(indices []int) Matrix {
	out := make(Matrix, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(m) {
			out = append(out, m[idx])
		}
	}
	return out
}

// NoiseLabel marks a point not assigned to any cluster.
const NoiseLabel = -1

// Assignment holds the per-point cluster labels produced by density clustering.
// Labels are sequential starting at 0; NoiseLabel marks unclustered points.
type Assignment struct {
	Labels      []int
	NumClusters int
	NoiseCount  int
}

// NoiseFraction reports the share of points labeled as noise. Diagnostic only.
func (a Assignment) NoiseFraction() float64 {
	if len(a.Labels) == 0 {
		return 0
	}
	return float64(a.NoiseCount) / float64(len(a.Labels))
}

// Members returns the indices assigned to the given label, ascending.
func (a Assignment) Members(label int) []int {
	var members []int
	for i, l := range a.Labels {
		if l == label {
			members = append(members, i)
		}
	}
	return members
}

// SelectedCluster is one of the top-K densest clusters: its label, its member
// indices in ascending order, and its density score. The three facts are kept
// in one value so they cannot drift apart.
type SelectedCluster struct {
	Label   int     `json:"label"`
	Indices []int   `json:"indices"`
	Density float64 `json:"density"`
}

// RecordTable is an ordered collection of records parallel to a Matrix. The
// header and rows preserve the source columns verbatim so the table
// round-trips through CSV exactly.
type RecordTable struct {
	Header  []string
	Rows    [][]string
	TextCol int
}

// Len returns the number of records.
func (t *RecordTable) Len() int {
	return len(t.Rows)
}

// Text returns the free-text field of record i.
func (t *RecordTable) Text(i int) string {
	if i < 0 || i >= len(t.Rows) || t.TextCol < 0 || t.TextCol >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][t.TextCol]
}

// Subset returns a new table containing the rows at the given indices, in the
// given order. The header is shared, not copied.
func (t *RecordTable) Subset(indices []int) *RecordTable {
	rows := make([][]string, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(t.Rows) {
			rows = append(rows, t.Rows[idx])
		}
	}
	return &RecordTable{Header: t.Header, Rows: rows, TextCol: t.TextCol}
}

// ClusterRemoval records how many entries were removed from one cluster.
type ClusterRemoval struct {
	Cluster    int     `json:"cluster"`
	Original   int     `json:"original"`
	Removed    int     `json:"removed"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// RebalanceSummary describes a completed debiasing split.
type RebalanceSummary struct {
	OriginalCount     int              `json:"original_count"`
	KeptCount         int              `json:"kept_count"`
	RemovedCount      int              `json:"removed_count"`
	RemovalPercentage float64          `json:"removal_percentage"`
	ClusterRemovals   []ClusterRemoval `json:"cluster_removals"`
	ExplainedVariance float64          `json:"explained_variance"`
}

// Partition is the result of a rebalancing run: kept and removed record
// subsets with their full-dimensional and reduced embedding subsets.
// Constructed once per run and never mutated afterward.
type Partition struct {
	KeptIndices    []int
	RemovedIndices []int

	Kept        *RecordTable
	Removed     *RecordTable
	KeptFull    Matrix
	RemovedFull Matrix
	AllReduced  Matrix
	KeptReduced Matrix
	RemReduced  Matrix

	Summary RebalanceSummary
}

// JobStatus tracks the lifecycle of one pipeline run.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is one upload-triggered pipeline run.
type Job struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Dir          string    `json:"dir"`
	ClusterCount int       `json:"cluster_count"`
	RowCount     int       `json:"row_count"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
}
