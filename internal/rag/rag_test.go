package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/models"
)

func TestAssemblePrompt(t *testing.T) {
	chunks := []models.Chunk{
		models.NewChunk("chem.pdf", 1, models.ChunkTypeText, 0, models.NewTextContent("  Matter is made of atoms.\n")),
		models.NewChunk("chem.pdf", 1, models.ChunkTypeTable, 0, models.NewTableContent([][]string{{"A", "B"}, {"C", "D"}})),
	}
	want := "\nUse ONLY the context below to answer the question.\n" +
		"If the answer is not in the context, say you don't know.\n\n" +
		"Context:\n- Matter is made of atoms.\n- A | B\nC | D\n\n" +
		"Question: What is matter made of?\n\nAnswer:\n"
	assert.Equal(t, want, AssemblePrompt("What is matter made of?", chunks))
}

func TestAssemblePromptNoContext(t *testing.T) {
	prompt := AssemblePrompt("Why?", nil)
	assert.Contains(t, prompt, "Context:\n\n\nQuestion: Why?")
}

func TestSources(t *testing.T) {
	results := []models.SearchResult{
		{Chunk: models.NewChunk("a.pdf", 2, models.ChunkTypeTable, 1, models.NewTextContent("x"))},
		{Chunk: models.NewChunk("b.pdf", 1, models.ChunkTypeOCR, 0, models.NewTextContent("y"))},
	}
	assert.Equal(t, "a.pdf p.2 table_1\nb.pdf p.1 ocr_0", Sources(results))
}

func TestSessionTranscript(t *testing.T) {
	a, err := NewSession()
	require.NoError(t, err)
	b, err := NewSession()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	a.Append("q1", "a1")
	a.Append("q2", "a2")
	assert.Equal(t, []Turn{{"q1", "a1"}, {"q2", "a2"}}, a.Turns())
	assert.Empty(t, b.Turns())

	turns := a.Turns()
	turns[0].Answer = "changed"
	assert.Equal(t, "a1", a.Turns()[0].Answer)
}

type fakeGenerator struct {
	mu      sync.Mutex
	system  string
	prompts []string
	answer  string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.system = system
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

type fakeLoader struct {
	snapshot *models.Snapshot
	err      error
}

func (l fakeLoader) Load(context.Context) (*models.Snapshot, error) {
	return l.snapshot, l.err
}

func TestQueryWithoutIndex(t *testing.T) {
	gen := &fakeGenerator{answer: "never"}
	stub := &stubEmbedder{fallback: []float32{1}}
	r := NewRAG(fakeLoader{err: models.ErrIndexUnavailable}, stub.embedder(t), gen, Options{})

	assert.ErrorIs(t, r.Reload(context.Background()), models.ErrIndexUnavailable)
	_, err := r.Query(context.Background(), nil, "What is Dalton's Atomic Theory?")
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
	assert.Empty(t, gen.prompts)
}

func TestQuery(t *testing.T) {
	snap := snapshotWith(models.MetricL2, [][]float32{{0, 1}, {1, 0}}, dalton, "Water is H2O.")
	stub := &stubEmbedder{vectors: map[string][]float32{"What is Dalton's Atomic Theory?": {0, 0.9}}, fallback: []float32{1, 1}}
	gen := &fakeGenerator{answer: "Matter is made of atoms."}
	r := NewRAG(fakeLoader{snapshot: snap}, stub.embedder(t), gen, Options{EmbeddingModel: "all-minilm", TopK: 1})
	require.NoError(t, r.Reload(context.Background()))

	session, err := NewSession()
	require.NoError(t, err)

	resp, err := r.Query(context.Background(), session, "What is Dalton's Atomic Theory?")
	require.NoError(t, err)
	assert.Equal(t, "Matter is made of atoms.", resp.Content)
	assert.Equal(t, "chem.pdf p.1 text_0", resp.Source)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, dalton, resp.Chunks[0].Chunk.Content.Text())

	assert.Equal(t, models.SystemInstruction, gen.system)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, resp.Prompt, gen.prompts[0])
	assert.Contains(t, resp.Prompt, "- "+dalton)
	assert.NotContains(t, resp.Prompt, "Water")

	assert.Equal(t, []Turn{{Question: "What is Dalton's Atomic Theory?", Answer: "Matter is made of atoms."}}, session.Turns())
}

func TestQueryBlankAndFailures(t *testing.T) {
	snap := snapshotWith(models.MetricL2, [][]float32{{1}}, "x")
	stub := &stubEmbedder{fallback: []float32{1}}
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	r := NewRAG(fakeLoader{}, stub.embedder(t), gen, Options{})
	require.NoError(t, r.Use(context.Background(), snap))

	session, err := NewSession()
	require.NoError(t, err)

	resp, err := r.Query(context.Background(), session, "  ")
	assert.NoError(t, err)
	assert.Nil(t, resp)

	_, err = r.Query(context.Background(), session, "q")
	assert.ErrorContains(t, err, "model overloaded")
	assert.Empty(t, session.Turns())
}

func TestConcurrentRetrieveDuringReload(t *testing.T) {
	snap := snapshotWith(models.MetricL2, [][]float32{{0}, {1}, {2}}, "a", "b", "c")
	stub := &stubEmbedder{fallback: []float32{0}}
	r := NewRAG(fakeLoader{snapshot: snap}, stub.embedder(t), &fakeGenerator{}, Options{})
	require.NoError(t, r.Reload(context.Background()))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			results, err := r.Retrieve(context.Background(), "q", 2)
			if err == nil && len(results) != 2 {
				err = errors.New("short result")
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			errs <- r.Reload(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestExport(t *testing.T) {
	snap := snapshotWith(models.MetricL2, [][]float32{{0, 1}, {1, 0}}, "a", "b")
	stub := &stubEmbedder{fallback: []float32{0, 1}}
	r := NewRAG(fakeLoader{snapshot: snap}, stub.embedder(t), &fakeGenerator{}, Options{})

	path := filepath.Join(t.TempDir(), "corpus.gob.enc")
	assert.ErrorIs(t, r.Export(context.Background(), path, "0123456789abcdef0123456789abcdef"), models.ErrIndexUnavailable)

	require.NoError(t, r.Reload(context.Background()))
	assert.Error(t, r.Export(context.Background(), path, "short"))
	require.NoError(t, r.Export(context.Background(), path, "0123456789abcdef0123456789abcdef"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
