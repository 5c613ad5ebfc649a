// Package vectorindex holds the nearest-neighbour structures searched at query
// time. An index knows nothing about chunk content: it answers with positions.
package vectorindex

import (
	"cmp"
	"errors"
	"slices"
)

var (
	ErrDimension = errors.New("vector dimension mismatch")
	ErrEmpty     = errors.New("index is empty")
)

// Hit is one search result: the insertion position and its distance.
type Hit struct {
	Position int
	Distance float32
}

// Index stores fixed-dimension vectors in insertion order.
type Index interface {
	Add(vectors ...[]float32) error
	// Search returns up to k hits ordered by ascending distance, ties broken by
	// lower position.
	Search(query []float32, k int) ([]Hit, error)
	Len() int
	Dim() int
}

// SortHits orders hits by distance, then position.
func SortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
}
