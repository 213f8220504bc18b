package clustering

import (
	"math"
	"sort"

	"debias/internal/domain"
)

// Defaults matching the pipeline configuration.
const (
	DefaultMinClusterSize = 10
	DefaultMinSamples     = 5
)

// minMergeDistance keeps lambda = 1/distance finite when points coincide.
const minMergeDistance = 1e-12

// Clusterer partitions an embedding matrix into density-based clusters using
// the HDBSCAN hierarchy: mutual-reachability distances, a minimum spanning
// tree, single-linkage merging, a condensed tree, and excess-of-mass cluster
// selection. Sparse regions come out as noise. Euclidean metric throughout.
type Clusterer struct {
	minClusterSize int
	minSamples     int
	neighbors      int
}

// NewClusterer creates a clusterer. Non-positive parameters fall back to the
// defaults; minClusterSize is clamped to at least 2.
func NewClusterer(minClusterSize, minSamples, neighbors int) *Clusterer {
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}
	return &Clusterer{
		minClusterSize: minClusterSize,
		minSamples:     minSamples,
		neighbors:      neighbors,
	}
}

// Fit assigns a cluster label to every point. Labels are sequential from 0;
// noise points get domain.NoiseLabel. Every index receives exactly one label.
func (c *Clusterer) Fit(points domain.Matrix) domain.Assignment {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = domain.NoiseLabel
	}
	if n < 2 {
		return domain.Assignment{Labels: labels, NoiseCount: n}
	}

	dist := pairwiseDistances(points)
	core := coreDistances(dist, c.minSamples)
	edges := spanningTree(dist, core)
	merges := singleLinkage(edges, n)
	tree := condense(merges, n, c.minClusterSize)
	final := tree.selectExcessOfMass()
	tree.label(final, labels)

	noise := 0
	for _, l := range labels {
		if l == domain.NoiseLabel {
			noise++
		}
	}
	return domain.Assignment{
		Labels:      labels,
		NumClusters: len(final),
		NoiseCount:  noise,
	}
}

// Densest clusters the matrix and returns the k densest clusters, ranked by
// the k-NN density score. Ties break toward the lower label so the ranking is
// deterministic. Member indices are ascending. A clustering that produces no
// clusters yields an empty slice, not an error.
func (c *Clusterer) Densest(points domain.Matrix, k int) ([]domain.SelectedCluster, domain.Assignment) {
	assignment := c.Fit(points)
	if assignment.NumClusters == 0 {
		return nil, assignment
	}

	clusters := make([]domain.SelectedCluster, 0, assignment.NumClusters)
	for label := 0; label < assignment.NumClusters; label++ {
		indices := assignment.Members(label)
		clusters = append(clusters, domain.SelectedCluster{
			Label:   label,
			Indices: indices,
			Density: Density(points.Subset(indices), c.neighbors),
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Density != clusters[j].Density {
			return clusters[i].Density > clusters[j].Density
		}
		return clusters[i].Label < clusters[j].Label
	})

	if k < len(clusters) {
		clusters = clusters[:k]
	}
	return clusters, assignment
}

func pairwiseDistances(points domain.Matrix) [][]float64 {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(points[i], points[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// coreDistances returns, per point, the distance to its minSamples-th nearest
// neighbor with the point itself counted as the nearest.
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	if minSamples > n {
		minSamples = n
	}
	if minSamples < 1 {
		minSamples = 1
	}

	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[minSamples-1]
	}
	return core
}

type mstEdge struct {
	a, b   int
	weight float64
}

// spanningTree builds a minimum spanning tree over the mutual-reachability
// graph with Prim's algorithm.
func spanningTree(dist [][]float64, core []float64) []mstEdge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	parent := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		parent[i] = -1
	}
	best[0] = 0

	edges := make([]mstEdge, 0, n-1)
	for iter := 0; iter < n; iter++ {
		u := -1
		for v := 0; v < n; v++ {
			if !inTree[v] && (u == -1 || best[v] < best[u]) {
				u = v
			}
		}
		inTree[u] = true
		if parent[u] >= 0 {
			edges = append(edges, mstEdge{a: parent[u], b: u, weight: best[u]})
		}
		for v := 0; v < n; v++ {
			if inTree[v] {
				continue
			}
			w := mutualReachability(dist[u][v], core[u], core[v])
			if w < best[v] {
				best[v] = w
				parent[v] = u
			}
		}
	}
	return edges
}

func mutualReachability(d, coreA, coreB float64) float64 {
	w := d
	if coreA > w {
		w = coreA
	}
	if coreB > w {
		w = coreB
	}
	return w
}

// dendrogram node arrays. Leaves occupy ids [0,n); merge i creates node n+i.
type dendrogram struct {
	n     int
	left  []int
	right []int
	dist  []float64
	size  []int
}

func (d *dendrogram) sizeOf(node int) int {
	if node < d.n {
		return 1
	}
	return d.size[node-d.n]
}

// leaves appends all leaf descendants of node to out.
func (d *dendrogram) leaves(node int, out []int) []int {
	stack := []int{node}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur < d.n {
			out = append(out, cur)
			continue
		}
		stack = append(stack, d.left[cur-d.n], d.right[cur-d.n])
	}
	return out
}

// singleLinkage turns sorted MST edges into a merge hierarchy via union-find.
func singleLinkage(edges []mstEdge, n int) *dendrogram {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].weight != edges[j].weight {
			return edges[i].weight < edges[j].weight
		}
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})

	parent := make([]int, n)
	compNode := make([]int, n)
	for i := range parent {
		parent[i] = i
		compNode[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	d := &dendrogram{
		n:     n,
		left:  make([]int, 0, n-1),
		right: make([]int, 0, n-1),
		dist:  make([]float64, 0, n-1),
		size:  make([]int, 0, n-1),
	}
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		newID := n + len(d.left)
		d.left = append(d.left, compNode[ra])
		d.right = append(d.right, compNode[rb])
		d.dist = append(d.dist, e.weight)
		d.size = append(d.size, d.sizeOf(compNode[ra])+d.sizeOf(compNode[rb]))
		parent[ra] = rb
		compNode[rb] = newID
	}
	return d
}

type pointFall struct {
	index  int
	lambda float64
}

// condensedTree is the minClusterSize-pruned hierarchy. Cluster 0 is the root
// and is never selectable. Parents always have smaller ids than their
// children.
type condensedTree struct {
	parent      []int
	birthLambda []float64
	sizeAtBirth []int
	children    [][]int
	points      [][]pointFall
}

func lambdaOf(dist float64) float64 {
	if dist < minMergeDistance {
		dist = minMergeDistance
	}
	return 1.0 / dist
}

// condense walks the dendrogram from the root. A merge where both sides hold
// at least minClusterSize points is a true split and births two child
// clusters; otherwise the undersized side's points fall out of the current
// cluster at that merge's lambda and the oversized side carries the cluster
// on.
func condense(d *dendrogram, n, minClusterSize int) *condensedTree {
	t := &condensedTree{
		parent:      []int{-1},
		birthLambda: []float64{0},
		sizeAtBirth: []int{n},
		children:    [][]int{nil},
		points:      [][]pointFall{nil},
	}

	root := n + len(d.left) - 1
	if len(d.left) == 0 {
		return t
	}

	type frame struct {
		node    int
		cluster int
	}
	stack := []frame{{node: root, cluster: 0}}
	var scratch []int

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node < n {
			t.points[f.cluster] = append(t.points[f.cluster], pointFall{index: f.node, lambda: lambdaOf(0)})
			continue
		}

		idx := f.node - n
		left, right := d.left[idx], d.right[idx]
		lam := lambdaOf(d.dist[idx])
		ls, rs := d.sizeOf(left), d.sizeOf(right)

		switch {
		case ls >= minClusterSize && rs >= minClusterSize:
			for _, child := range []int{left, right} {
				id := len(t.parent)
				t.parent = append(t.parent, f.cluster)
				t.birthLambda = append(t.birthLambda, lam)
				t.sizeAtBirth = append(t.sizeAtBirth, d.sizeOf(child))
				t.children = append(t.children, nil)
				t.points = append(t.points, nil)
				t.children[f.cluster] = append(t.children[f.cluster], id)
				stack = append(stack, frame{node: child, cluster: id})
			}
		case ls < minClusterSize && rs < minClusterSize:
			scratch = d.leaves(left, scratch[:0])
			scratch = d.leaves(right, scratch)
			for _, leaf := range scratch {
				t.points[f.cluster] = append(t.points[f.cluster], pointFall{index: leaf, lambda: lam})
			}
		default:
			big, small := left, right
			if ls < minClusterSize {
				big, small = right, left
			}
			scratch = d.leaves(small, scratch[:0])
			for _, leaf := range scratch {
				t.points[f.cluster] = append(t.points[f.cluster], pointFall{index: leaf, lambda: lam})
			}
			stack = append(stack, frame{node: big, cluster: f.cluster})
		}
	}
	return t
}

// stability of a cluster measures the excess of mass it holds above its birth
// level: each point contributes the lambda range it survives within the
// cluster, each child cluster contributes its full size over the span from
// birth to the split.
func (t *condensedTree) stability(c int) float64 {
	s := 0.0
	for _, p := range t.points[c] {
		s += p.lambda - t.birthLambda[c]
	}
	for _, child := range t.children[c] {
		s += (t.birthLambda[child] - t.birthLambda[c]) * float64(t.sizeAtBirth[child])
	}
	return s
}

// selectExcessOfMass picks the flat clustering: bottom-up, a cluster wins
// over its descendants when its own stability reaches the sum of the best
// stabilities below it. The root is excluded, so a degenerate hierarchy with
// no real split produces zero clusters. Returns selected cluster ids in
// ascending order.
func (t *condensedTree) selectExcessOfMass() []int {
	nc := len(t.parent)
	if nc <= 1 {
		return nil
	}

	selected := make([]bool, nc)
	subtree := make([]float64, nc)
	for c := nc - 1; c >= 1; c-- {
		own := t.stability(c)
		childSum := 0.0
		for _, child := range t.children[c] {
			childSum += subtree[child]
		}
		if len(t.children[c]) == 0 || own >= childSum {
			selected[c] = true
			subtree[c] = own
		} else {
			subtree[c] = childSum
		}
	}

	var final []int
	for c := 1; c < nc; c++ {
		if !selected[c] {
			continue
		}
		shadowed := false
		for anc := t.parent[c]; anc > 0; anc = t.parent[anc] {
			if selected[anc] {
				shadowed = true
				break
			}
		}
		if !shadowed {
			final = append(final, c)
		}
	}
	return final
}

// label writes flat labels: a point belongs to the selected cluster whose
// subtree contains the cluster it fell out of; all other points stay noise.
// Selected clusters map to labels 0..k-1 in ascending cluster-id order.
func (t *condensedTree) label(final []int, labels []int) {
	if len(final) == 0 {
		return
	}
	labelOf := make(map[int]int, len(final))
	for i, c := range final {
		labelOf[c] = i
	}

	for c := range t.points {
		target := domain.NoiseLabel
		for cur := c; cur > 0; cur = t.parent[cur] {
			if l, ok := labelOf[cur]; ok {
				target = l
				break
			}
		}
		if target == domain.NoiseLabel {
			continue
		}
		for _, p := range t.points[c] {
			labels[p.index] = target
		}
	}
}
