package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docqa/internal/helper"
	"docqa/internal/models"
	"docqa/internal/vectorindex"

	"github.com/rs/zerolog/log"
)

const (
	currentFile  = "CURRENT"
	vectorsFile  = "vectors.bin"
	chunksFile   = "chunks.json"
	manifestFile = "manifest.json"
	genPrefix    = "gen-"
)

// FileBackend keeps each snapshot in its own generation directory and
// switches between them by rewriting the CURRENT pointer with a rename.
// A crash at any point leaves either the old or the new generation live.
type FileBackend struct {
	dir string
	mu  sync.RWMutex
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if err := checkSave(snapshot); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := helper.CreateFolder(b.dir); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	gen := fmt.Sprintf("%s%d", genPrefix, time.Now().UnixNano())
	genDir := filepath.Join(b.dir, gen)
	if err := os.Mkdir(genDir, 0o755); err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	if err := writeGeneration(ctx, genDir, snapshot); err != nil {
		os.RemoveAll(genDir)
		return err
	}
	if err := writeFileAtomic(filepath.Join(b.dir, currentFile), []byte(gen+"\n")); err != nil {
		os.RemoveAll(genDir)
		return fmt.Errorf("switch current generation: %w", err)
	}

	b.pruneExcept(gen)
	log.Info().Str("dir", b.dir).Str("generation", gen).Int("chunks", snapshot.Len()).Msg("snapshot saved")
	return nil
}

func writeGeneration(ctx context.Context, dir string, snapshot *models.Snapshot) error {
	index := vectorindex.NewFlat(snapshot.Manifest.Dimension)
	if err := index.Add(snapshot.Vectors...); err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(dir, vectorsFile), func(w *bufio.Writer) error {
		_, err := index.WriteTo(w)
		return err
	}); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, chunksFile), snapshot.Chunks); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, manifestFile), snapshot.Manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return syncDir(dir)
}

func (b *FileBackend) Load(ctx context.Context) (*models.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(b.dir, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.ErrIndexUnavailable
	}
	if err != nil {
		return nil, err
	}
	gen := strings.TrimSpace(string(data))
	if !strings.HasPrefix(gen, genPrefix) || strings.ContainsAny(gen, `/\`) {
		return nil, fmt.Errorf("%w: bad generation pointer %q", models.ErrStoreCorrupt, gen)
	}
	dir := filepath.Join(b.dir, gen)

	var snapshot models.Snapshot
	if err := readJSON(filepath.Join(dir, manifestFile), &snapshot.Manifest); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, chunksFile), &snapshot.Chunks); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreCorrupt, err)
	}
	defer f.Close()
	index, err := vectorindex.ReadFlat(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreCorrupt, err)
	}
	snapshot.Vectors = make([][]float32, index.Len())
	for i := range snapshot.Vectors {
		snapshot.Vectors[i] = index.Vector(i)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// pruneExcept removes every generation other than keep. Failures only cost
// disk space.
func (b *FileBackend) pruneExcept(keep string) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", b.dir).Msg("cannot list old generations")
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(b.dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("generation", e.Name()).Msg("cannot remove old generation")
		}
	}
}

func writeJSON(path string, v any) error {
	return writeFileSync(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreCorrupt, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrStoreCorrupt, filepath.Base(path), err)
	}
	return nil
}

func writeFileSync(path string, write func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeFileAtomic replaces path through a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := writeFileSync(tmp, func(w *bufio.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
