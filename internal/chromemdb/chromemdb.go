package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"docqa/internal/models"
	"docqa/internal/vectorindex"
)

// Document represents our data structure with content and metadata
type Document struct {
	Position  int
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// meta data will have source id, page number, local id, type and position

// VectorDBManager keeps a chromem-go collection whose document IDs are the
// insertion positions of the vectors. It serves cosine-distance search and
// encrypted exports of a corpus.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
	dim        int
	count      int
	compress   bool
}

const (
	compress       = false
	collectionName = "docqa_corpus"
)

var errNoEmbeddingFunc = errors.New("documents must carry their embedding")

// NewVectorDBManager initializes an in-memory manager for vectors of dimension dim.
func NewVectorDBManager(dim int) (*VectorDBManager, error) {
	db := chromem.NewDB()
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }
	c, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &VectorDBManager{
		db:         db,
		collection: c,
		dim:        dim,
		compress:   compress,
	}, nil
}

// FromSnapshot loads every chunk of a snapshot, keeping positions aligned.
func FromSnapshot(ctx context.Context, snapshot *models.Snapshot) (*VectorDBManager, error) {
	m, err := NewVectorDBManager(snapshot.Manifest.Dimension)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(snapshot.Chunks))
	for i, chunk := range snapshot.Chunks {
		docs[i] = Document{
			Position:  i,
			Content:   chunk.Content.Flatten(),
			Metadata:  CreateMetadata(chunk),
			Embedding: snapshot.Vectors[i],
		}
	}
	if err := m.CreateDocs(ctx, docs); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMetadata flattens chunk identity into chromem metadata.
func CreateMetadata(chunk models.Chunk) map[string]string {
	return map[string]string{
		"source_id": chunk.SourceID,
		"page":      strconv.Itoa(chunk.Page),
		"local_id":  chunk.LocalID,
		"type":      string(chunk.Type),
	}
}

// add multiple documents; positions must continue the current sequence
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []Document) error {
	if len(documents) == 0 {
		return nil
	}
	chromemDocs := make([]chromem.Document, len(documents))
	for i, doc := range documents {
		if doc.Position != m.count+i {
			return fmt.Errorf("document position %d out of sequence, want %d", doc.Position, m.count+i)
		}
		if len(doc.Embedding) != m.dim {
			return fmt.Errorf("%w: document %d has %d, index has %d", vectorindex.ErrDimension, doc.Position, len(doc.Embedding), m.dim)
		}
		meta := make(map[string]string, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["position"] = strconv.Itoa(doc.Position)
		chromemDocs[i] = chromem.Document{
			ID:        strconv.Itoa(doc.Position),
			Content:   doc.Content,
			Metadata:  meta,
			Embedding: doc.Embedding,
		}
	}

	err := m.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	m.count += len(documents)
	return nil
}

func (m *VectorDBManager) Add(vectors ...[]float32) error {
	docs := make([]Document, len(vectors))
	for i, v := range vectors {
		docs[i] = Document{Position: m.count + i, Embedding: v}
	}
	return m.CreateDocs(context.Background(), docs)
}

func (m *VectorDBManager) Len() int { return m.count }
func (m *VectorDBManager) Dim() int { return m.dim }

// Search ranks every stored vector by cosine distance (1 - similarity).
func (m *VectorDBManager) Search(query []float32, k int) ([]vectorindex.Hit, error) {
	if len(query) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vectorindex.ErrDimension, len(query), m.dim)
	}
	if m.count == 0 {
		return nil, vectorindex.ErrEmpty
	}
	if k <= 0 {
		return nil, nil
	}

	// All results are requested so that ties at the cut-off resolve by position.
	results, err := m.collection.QueryEmbedding(context.Background(), query, m.count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	hits := make([]vectorindex.Hit, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", r.ID, err)
		}
		hits = append(hits, vectorindex.Hit{Position: pos, Distance: 1 - r.Similarity})
	}
	vectorindex.SortHits(hits)
	return hits[:min(k, len(hits))], nil
}

// Export writes the collection to an encrypted file.
func (m *VectorDBManager) Export(filePath, encryptionKey string) error {
	if encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if len(encryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	if filePath == "" {
		return fmt.Errorf("file path is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", filePath).
		Bool("compress", m.compress).
		Int("documents", m.count).
		Msg("Exporting collection")
	err := m.db.ExportToFile(filePath, m.compress, encryptionKey, m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

var _ vectorindex.Index = (*VectorDBManager)(nil)
