package clustering

import (
	"math"
	"sort"
)

// densityEpsilon keeps the density score finite when neighbors coincide.
const densityEpsilon = 1e-6

// DefaultNeighbors is the neighbor count used for density estimation.
const DefaultNeighbors = 5

// Density scores how tight a set of same-cluster vectors is: the inverse of
// the mean distance from each point to its k nearest other points. Lower
// average neighbor distance means a higher score. A set with fewer than two
// points has no defined neighbor distance and scores 0.
func Density(points [][]float64, k int) float64 {
	m := len(points)
	if m <= 1 {
		return 0
	}
	if k < 1 {
		k = DefaultNeighbors
	}
	if k > m-1 {
		k = m - 1
	}

	total := 0.0
	dists := make([]float64, 0, m-1)
	for i := range points {
		dists = dists[:0]
		for j := range points {
			if i == j {
				continue
			}
			dists = append(dists, euclidean(points[i], points[j]))
		}
		sort.Float64s(dists)

		sum := 0.0
		for _, d := range dists[:k] {
			sum += d
		}
		total += sum / float64(k)
	}

	avgDist := total / float64(m)
	return 1.0 / (avgDist + densityEpsilon)
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
