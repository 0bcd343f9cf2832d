// Package similarity maintains one approximate-nearest-neighbor structure
// per feature type and fuses their distances into a single ranking.
package similarity

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Metric selects the distance semantics of an index.
type Metric int

const (
	// MetricEuclidean ranks by L2 distance; smaller is closer.
	MetricEuclidean Metric = iota
	// MetricInnerProduct ranks by negated dot product so that, like the
	// Euclidean case, smaller distance means more similar.
	MetricInnerProduct
)

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "euclidean"
	case MetricInnerProduct:
		return "inner-product"
	default:
		return "unknown"
	}
}

// distanceFunc computes the metric's distance between two equal-length vectors.
type distanceFunc func(a, b []float64) float64

func newDistanceFunc(m Metric) distanceFunc {
	switch m {
	case MetricInnerProduct:
		return func(a, b []float64) float64 { return -floats.Dot(a, b) }
	default:
		return func(a, b []float64) float64 { return floats.Distance(a, b, 2) }
	}
}

// Neighbor is one k-nearest-neighbor search result.
type Neighbor struct {
	ID       int64
	Distance float64
}

// Index is a flat vector index with a fixed dimension and metric. Entries
// are additive only; Add and Search are safe to interleave because writes
// take the write lock and scans the read lock.
type Index struct {
	name     string
	dim      int
	metric   Metric
	distance distanceFunc

	mu      sync.RWMutex
	ids     []int64
	vectors [][]float64
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(name string, dim int, metric Metric) *Index {
	return &Index{
		name:     name,
		dim:      dim,
		metric:   metric,
		distance: newDistanceFunc(metric),
	}
}

// Name returns the index's label, used in logs.
func (ix *Index) Name() string { return ix.name }

// Dimension returns the fixed vector dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Contains reports whether id has at least one entry in the index.
func (ix *Index) Contains(id int64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, existing := range ix.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// Add appends the given (id, vector) pairs. The call validates every input
// first and mutates nothing on error: ids and vectors must have equal
// length and every vector must match the index dimension.
func (ix *Index) Add(ids []int64, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != ix.dim {
			return &ErrDimensionMismatch{Expected: ix.dim, Actual: len(v)}
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i, id := range ids {
		vec := make([]float64, ix.dim)
		copy(vec, vectors[i])
		ix.ids = append(ix.ids, id)
		ix.vectors = append(ix.vectors, vec)
	}
	return nil
}

// Search returns up to k neighbors of query ordered by ascending distance.
// Equal distances keep insertion order (stable).
func (ix *Index) Search(query []float64, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != ix.dim {
		return nil, &ErrDimensionMismatch{Expected: ix.dim, Actual: len(query)}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.ids) == 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, len(ix.ids))
	for i, vec := range ix.vectors {
		neighbors[i] = Neighbor{ID: ix.ids[i], Distance: ix.distance(query, vec)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	out := make([]Neighbor, len(neighbors))
	copy(out, neighbors)
	return out, nil
}
