package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/chromemdb"
	"docqa/internal/llmservice"
	"docqa/internal/models"
)

// Loader returns the most recently persisted snapshot.
type Loader interface {
	Load(ctx context.Context) (*models.Snapshot, error)
}

// RAG answers questions from the loaded corpus. Queries share the current
// retriever; Reload and Use swap it exclusively.
type RAG struct {
	loader         Loader
	embedder       embeddings.Embedder
	generator      llmservice.Generator
	embeddingModel string
	topK           int

	mu        sync.RWMutex
	retriever *Retriever
}

type Options struct {
	// EmbeddingModel is compared with the model recorded at build time.
	EmbeddingModel string
	TopK           int
}

func NewRAG(loader Loader, embedder embeddings.Embedder, generator llmservice.Generator, opts Options) *RAG {
	if opts.TopK <= 0 {
		opts.TopK = models.DefaultTopK
	}
	return &RAG{
		loader:         loader,
		embedder:       embedder,
		generator:      generator,
		embeddingModel: opts.EmbeddingModel,
		topK:           opts.TopK,
	}
}

// Reload reads the persisted snapshot and makes it current.
func (r *RAG) Reload(ctx context.Context) error {
	snapshot, err := r.loader.Load(ctx)
	if err != nil {
		return err
	}
	return r.Use(ctx, snapshot)
}

// Use makes an in-memory snapshot current, e.g. right after a rebuild.
func (r *RAG) Use(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot == nil {
		return models.ErrIndexUnavailable
	}
	built := snapshot.Manifest.EmbeddingModel
	if built != "" && r.embeddingModel != "" && built != r.embeddingModel {
		log.Warn().
			Str("index_model", built).
			Str("query_model", r.embeddingModel).
			Msg("Index was built with a different embedding model; results may be meaningless")
	}

	retriever, err := NewRetriever(ctx, snapshot, r.embedder)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.retriever = retriever
	r.mu.Unlock()

	log.Info().
		Int("chunks", snapshot.Len()).
		Int("dimension", snapshot.Manifest.Dimension).
		Str("metric", string(snapshot.Manifest.Metric)).
		Msg("Index loaded")
	return nil
}

func (r *RAG) current() (*Retriever, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.retriever == nil {
		return nil, models.ErrIndexUnavailable
	}
	return r.retriever, nil
}

func (r *RAG) Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	retriever, err := r.current()
	if err != nil {
		return nil, err
	}
	return retriever.Retrieve(ctx, query, k)
}

// Query retrieves context for question, asks the generator and records the
// exchange in session. A blank question returns nil without any calls.
func (r *RAG) Query(ctx context.Context, session *Session, question string) (*models.PromptResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil
	}
	results, err := r.Retrieve(ctx, question, r.topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	prompt := AssemblePrompt(question, chunks)

	log.Debug().Str("query", question).Int("chunks", len(chunks)).Msg("Generating answer")
	answer, err := r.generator.Generate(ctx, models.SystemInstruction, prompt)
	if err != nil {
		return nil, err
	}
	if session != nil {
		session.Append(question, answer)
	}

	return &models.PromptResponse{
		Query:   question,
		Prompt:  prompt,
		Source:  Sources(results),
		Content: answer,
		Chunks:  results,
	}, nil
}

// Export writes the loaded corpus as an encrypted chromem-go file.
func (r *RAG) Export(ctx context.Context, path, encryptionKey string) error {
	retriever, err := r.current()
	if err != nil {
		return err
	}
	m, err := chromemdb.FromSnapshot(ctx, retriever.snapshot)
	if err != nil {
		return fmt.Errorf("prepare export: %w", err)
	}
	return m.Export(path, encryptionKey)
}
