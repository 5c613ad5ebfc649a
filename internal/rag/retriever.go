package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/chromemdb"
	"docqa/internal/embedding"
	"docqa/internal/models"
	"docqa/internal/vectorindex"
)

// Retriever answers k-nearest-neighbour queries over one loaded snapshot.
// It never changes after construction and is safe for concurrent use.
type Retriever struct {
	snapshot *models.Snapshot
	index    vectorindex.Index
	embedder embeddings.Embedder
}

// NewRetriever indexes the snapshot's vectors under its manifest metric.
func NewRetriever(ctx context.Context, snapshot *models.Snapshot, embedder embeddings.Embedder) (*Retriever, error) {
	if snapshot == nil {
		return nil, models.ErrIndexUnavailable
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	var index vectorindex.Index
	switch snapshot.Manifest.Metric {
	case models.MetricL2, "":
		flat := vectorindex.NewFlat(snapshot.Manifest.Dimension)
		if err := flat.Add(snapshot.Vectors...); err != nil {
			return nil, err
		}
		index = flat
	case models.MetricCosine:
		m, err := chromemdb.FromSnapshot(ctx, snapshot)
		if err != nil {
			return nil, err
		}
		index = m
	default:
		return nil, fmt.Errorf("unknown metric %q", snapshot.Manifest.Metric)
	}
	return &Retriever{snapshot: snapshot, index: index, embedder: embedder}, nil
}

func (r *Retriever) Manifest() models.Manifest { return r.snapshot.Manifest }

func (r *Retriever) Len() int { return r.snapshot.Len() }

// Retrieve returns up to k chunks nearest to query in ascending distance,
// ties going to the earlier position. A blank query returns nothing without
// calling the embedder; k <= 0 means models.DefaultTopK.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if r.snapshot.Len() == 0 {
		return nil, models.ErrEmptyCorpus
	}
	if k <= 0 {
		k = models.DefaultTopK
	}

	vector, err := embedding.EmbedQuery(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}
	if len(vector) != r.index.Dim() {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, index was built with %d (model %q)",
			models.ErrModelMismatch, len(vector), r.index.Dim(), r.snapshot.Manifest.EmbeddingModel)
	}

	hits, err := r.index.Search(vector, k)
	switch {
	case errors.Is(err, vectorindex.ErrEmpty):
		return nil, models.ErrEmptyCorpus
	case errors.Is(err, vectorindex.ErrDimension):
		return nil, fmt.Errorf("%w: %w", models.ErrModelMismatch, err)
	case err != nil:
		return nil, err
	}

	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = models.SearchResult{Chunk: r.snapshot.Chunks[h.Position], Distance: h.Distance}
	}
	return results, nil
}
