package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/config"
	"docqa/internal/models"
)

func snapshotOf(texts ...string) *models.Snapshot {
	snap := &models.Snapshot{
		Manifest: models.Manifest{
			Version:        models.SnapshotVersion,
			EmbeddingModel: "all-minilm",
			Dimension:      3,
			Count:          len(texts),
			Metric:         models.MetricL2,
			CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	for i, s := range texts {
		snap.Chunks = append(snap.Chunks, models.NewChunk("doc.pdf", 1, models.ChunkTypeText, i, models.NewTextContent(s)))
		snap.Vectors = append(snap.Vectors, []float32{float32(i), 0.5, -1})
	}
	return snap
}

func generations(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var gens []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), genPrefix) {
			gens = append(gens, e.Name())
		}
	}
	return gens
}

func TestFileBackendLoadWithoutSave(t *testing.T) {
	_, err := NewFileBackend(filepath.Join(t.TempDir(), "index")).Load(context.Background())
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
}

func TestFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(filepath.Join(t.TempDir(), "index"))

	snap := snapshotOf("Atoms.", "Molecules.")
	snap.Chunks = append(snap.Chunks, models.NewChunk("doc.pdf", 2, models.ChunkTypeTable, 0, models.NewTableContent([][]string{{"A", "B"}, {"C", "D"}})))
	snap.Vectors = append(snap.Vectors, []float32{9, 9, 9})
	snap.Manifest.Count = 3

	require.NoError(t, b.Save(ctx, snap))
	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestFileBackendReplacesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	b := NewFileBackend(dir)

	require.NoError(t, b.Save(ctx, snapshotOf("one", "two", "three")))
	first := generations(t, dir)
	require.Len(t, first, 1)

	require.NoError(t, b.Save(ctx, snapshotOf("only")))
	second := generations(t, dir)
	require.Len(t, second, 1)
	assert.NotEqual(t, first, second)

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, "only", loaded.Chunks[0].Content.Text())
}

func TestFileBackendRejectsBadSnapshots(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	b := NewFileBackend(dir)

	assert.ErrorIs(t, b.Save(ctx, &models.Snapshot{}), models.ErrEmptyCorpus)
	assert.ErrorIs(t, b.Save(ctx, nil), models.ErrEmptyCorpus)

	misaligned := snapshotOf("a", "b")
	misaligned.Vectors = misaligned.Vectors[:1]
	assert.ErrorIs(t, b.Save(ctx, misaligned), models.ErrStoreCorrupt)

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
}

func TestFileBackendFailedSaveKeepsPreviousPair(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	b := NewFileBackend(dir)
	require.NoError(t, b.Save(ctx, snapshotOf("kept")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, b.Save(cancelled, snapshotOf("lost", "too")), context.Canceled)

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", loaded.Chunks[0].Content.Text())
	assert.Len(t, generations(t, dir), 1)
}

func TestFileBackendDetectsTampering(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	b := NewFileBackend(dir)
	require.NoError(t, b.Save(ctx, snapshotOf("a", "b")))

	gen := generations(t, dir)[0]
	require.NoError(t, os.WriteFile(filepath.Join(dir, gen, chunksFile), []byte(`[]`), 0o644))
	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, models.ErrStoreCorrupt)

	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("../elsewhere"), 0o644))
	_, err = b.Load(ctx)
	assert.ErrorIs(t, err, models.ErrStoreCorrupt)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	cfg.Store.Backend = "s3"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
