package models

import (
	"fmt"
	"time"
)

type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

// Manifest describes a persisted snapshot.
type Manifest struct {
	Version        int       `json:"version"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	Count          int       `json:"count"`
	Metric         Metric    `json:"metric"`
	CreatedAt      time.Time `json:"created_at"`
}

const SnapshotVersion = 1

// Snapshot is the unit the indexer produces and the retriever consumes:
// Vectors[i] is the embedding of Chunks[i].
type Snapshot struct {
	Manifest Manifest
	Vectors  [][]float32
	Chunks   []Chunk
}

// Validate checks that vectors and chunks are aligned and share one dimension.
func (s *Snapshot) Validate() error {
	if len(s.Vectors) != len(s.Chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", ErrStoreCorrupt, len(s.Vectors), len(s.Chunks))
	}
	if s.Manifest.Count != len(s.Chunks) {
		return fmt.Errorf("%w: manifest count %d, have %d chunks", ErrStoreCorrupt, s.Manifest.Count, len(s.Chunks))
	}
	for i, v := range s.Vectors {
		if len(v) != s.Manifest.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrStoreCorrupt, i, len(v), s.Manifest.Dimension)
		}
	}
	return nil
}

func (s *Snapshot) Len() int { return len(s.Chunks) }
