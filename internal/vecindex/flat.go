// Package vecindex provides an in-memory flat vector index with explicit
// int64 keys and top-k inner-product search. Vectors are L2-normalized on
// write and on query, so inner-product scores equal cosine similarity.
//
// A Flat index is not safe for concurrent use. Callers must serialize
// writes, and writes relative to queries, behind a single-writer boundary.
package vecindex

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when a vector's width differs from
	// the dimensionality fixed at index construction (or snapshot load).
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrDuplicateID is returned when a write reuses an id already present
	// in the index. id64 values are never reused, so this always indicates
	// a caller bug or a corrupted snapshot.
	ErrDuplicateID = errors.New("duplicate vector id")
)

// Match is one similarity-search hit: a real stored id and its cosine
// score. Query never returns sentinel "no match" entries; when the index
// holds fewer than k vectors the result is simply shorter.
type Match struct {
	ID    int64
	Score float32
}

// Flat is a brute-force inner-product index over normalized vectors.
type Flat struct {
	dim     int
	ids     []int64
	vectors []float32 // row-major, len(ids)*dim, unit length per row
	rows    map[int64]int
}

// NewFlat creates an empty index for vectors of the given width.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dim)
	}
	return &Flat{dim: dim, rows: make(map[int64]int)}, nil
}

// Dimensions returns the vector width fixed at construction.
func (f *Flat) Dimensions() int {
	return f.dim
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	return len(f.ids)
}

// Contains reports whether id is present in the index.
func (f *Flat) Contains(id int64) bool {
	_, ok := f.rows[id]
	return ok
}

// Write stores vectors under their ids. Each vector is copied and
// L2-normalized before insertion. vectors and ids must have equal length,
// every vector must match the index width, and no id may already exist.
// On error nothing is inserted.
func (f *Flat) Write(vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("got %d vectors for %d ids", len(vectors), len(ids))
	}

	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d has %d dimensions, index has %d: %w", i, len(v), f.dim, ErrDimensionMismatch)
		}
		if _, ok := f.rows[ids[i]]; ok {
			return fmt.Errorf("id %d: %w", ids[i], ErrDuplicateID)
		}
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("id %d repeated in batch: %w", id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
	}

	for i, v := range vectors {
		row := make([]float32, f.dim)
		copy(row, v)
		normalize(row)
		f.rows[ids[i]] = len(f.ids)
		f.ids = append(f.ids, ids[i])
		f.vectors = append(f.vectors, row...)
	}
	return nil
}

// Query returns the top-k stored ids by cosine similarity to vec, best
// first. The query vector is normalized the same way as written vectors.
// At most Len() matches are returned.
func (f *Flat) Query(vec []float32, k int) ([]Match, error) {
	if len(vec) != f.dim {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w", len(vec), f.dim, ErrDimensionMismatch)
	}
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}

	q := make([]float32, f.dim)
	copy(q, vec)
	normalize(q)

	h := &matchHeap{}
	heap.Init(h)

	for row, id := range f.ids {
		score := dot(q, f.vectors[row*f.dim:(row+1)*f.dim])
		if h.Len() < k {
			heap.Push(h, Match{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Match{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}

	// Pop the min-heap into descending score order.
	results := make([]Match, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Match)
	}
	return results, nil
}

// normalize scales v to unit length in place. A zero vector is left as-is
// and will score 0 against everything.
func normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// matchHeap is a min-heap of Match ordered by Score, used to track the
// top-k candidates during a scan.
type matchHeap []Match

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)        { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
