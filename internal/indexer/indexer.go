package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/embedding"
	"docqa/internal/models"
)

type Extractor interface {
	Extract(ctx context.Context, path string) ([]models.Chunk, error)
}

// Saver persists a snapshot, replacing the previous one.
type Saver interface {
	Save(ctx context.Context, snapshot *models.Snapshot) error
}

type Options struct {
	// EmbeddingModel is recorded in the manifest so a later load can warn
	// about a different query model.
	EmbeddingModel string
	Metric         models.Metric
}

// Indexer turns documents into a snapshot. Every build is a full rebuild:
// vectors and chunks come out of the same pass in the same order.
type Indexer struct {
	extractor Extractor
	embedder  embeddings.Embedder
	opts      Options
	now       func() time.Time
}

func New(extractor Extractor, embedder embeddings.Embedder, opts Options) *Indexer {
	if opts.Metric == "" {
		opts.Metric = models.MetricL2
	}
	return &Indexer{extractor: extractor, embedder: embedder, opts: opts, now: time.Now}
}

// Corpus extracts every document in order and drops empty chunks. A
// document that cannot be opened is logged and skipped.
func (ix *Indexer) Corpus(ctx context.Context, paths []string) ([]models.Chunk, error) {
	var corpus []models.Chunk
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, err := ix.extractor.Extract(ctx, path)
		if err != nil {
			log.Error().Err(err).Str("source", path).Msg("Failed to extract document, skipping")
			continue
		}

		counts := make(map[models.ChunkType]int)
		dropped := 0
		for _, c := range chunks {
			if c.IsEmpty() {
				dropped++
				continue
			}
			counts[c.Type]++
			corpus = append(corpus, c)
		}
		log.Info().
			Str("source", path).
			Int("text", counts[models.ChunkTypeText]).
			Int("table", counts[models.ChunkTypeTable]).
			Int("ocr", counts[models.ChunkTypeOCR]).
			Int("dropped", dropped).
			Msg("Extracted document")
	}
	return corpus, nil
}

// Build extracts, flattens and embeds the documents in one batch.
func (ix *Indexer) Build(ctx context.Context, paths []string) (*models.Snapshot, error) {
	corpus, err := ix.Corpus(ctx, paths)
	if err != nil {
		return nil, err
	}
	if len(corpus) == 0 {
		return nil, models.ErrEmptyCorpus
	}

	texts := make([]string, len(corpus))
	for i, c := range corpus {
		texts[i] = c.Content.Flatten()
	}
	vectors, err := embedding.GenerateEmbeddings(ctx, ix.embedder, texts)
	if err != nil {
		return nil, err
	}

	snapshot := &models.Snapshot{
		Manifest: models.Manifest{
			Version:        models.SnapshotVersion,
			EmbeddingModel: ix.opts.EmbeddingModel,
			Dimension:      len(vectors[0]),
			Count:          len(corpus),
			Metric:         ix.opts.Metric,
			CreatedAt:      ix.now().UTC(),
		},
		Vectors: vectors,
		Chunks:  corpus,
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Rebuild builds a snapshot and hands it to the saver. Nothing is saved
// when the build fails.
func (ix *Indexer) Rebuild(ctx context.Context, paths []string, saver Saver) (*models.Snapshot, error) {
	snapshot, err := ix.Build(ctx, paths)
	if err != nil {
		return nil, err
	}
	if err := saver.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	log.Info().
		Int("chunks", snapshot.Len()).
		Int("dimension", snapshot.Manifest.Dimension).
		Str("model", snapshot.Manifest.EmbeddingModel).
		Msg("Index rebuilt")
	return snapshot, nil
}
