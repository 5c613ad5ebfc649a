package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	blobMagic   = "VIDX"
	blobVersion = uint32(1)

	// maxBlobDim bounds the header before anything is allocated from it.
	maxBlobDim = 1 << 16
	// readChunk caps the preallocation for the vector slice.
	readChunk = 1024
)

// Flat is an exact index under squared Euclidean distance.
type Flat struct {
	dim     int
	vectors [][]float32
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

func (f *Flat) Dim() int { return f.dim }
func (f *Flat) Len() int { return len(f.vectors) }

func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimension, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.vectors = append(f.vectors, append([]float32(nil), v...))
	}
	return nil
}

func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimension, len(query), f.dim)
	}
	if len(f.vectors) == 0 {
		return nil, ErrEmpty
	}
	if k <= 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Distance: SquaredL2(query, v)}
	}
	SortHits(hits)
	return hits[:min(k, len(hits))], nil
}

// Vector returns a copy of the vector stored at position i.
func (f *Flat) Vector(i int) []float32 {
	return append([]float32(nil), f.vectors[i]...)
}

// SquaredL2 returns the squared Euclidean distance of two equal-length vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// WriteTo serialises the index: magic, version, dim, count, then the
// vectors as little-endian float32.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	header := make([]byte, 16)
	copy(header, blobMagic)
	binary.LittleEndian.PutUint32(header[4:], blobVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(f.dim))
	binary.LittleEndian.PutUint32(header[12:], uint32(len(f.vectors)))
	m, err := bw.Write(header)
	n += int64(m)
	if err != nil {
		return n, err
	}
	buf := make([]byte, 4)
	for _, v := range f.vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			m, err := bw.Write(buf)
			n += int64(m)
			if err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}

// ReadFlat decodes an index written by WriteTo.
func ReadFlat(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)
	header := make([]byte, 16)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if string(header[:4]) != blobMagic {
		return nil, errors.New("not a vector index blob")
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != blobVersion {
		return nil, fmt.Errorf("unsupported index version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(header[8:]))
	count := int(binary.LittleEndian.Uint32(header[12:]))
	if dim > maxBlobDim {
		return nil, fmt.Errorf("index header dimension %d out of range", dim)
	}
	if dim == 0 && count > 0 {
		return nil, fmt.Errorf("index header has %d vectors of dimension 0", count)
	}

	f := &Flat{dim: dim, vectors: make([][]float32, 0, min(count, readChunk))}
	buf := make([]byte, 4*dim)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("failed to read vector %d: %w", i, err)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		f.vectors = append(f.vectors, v)
	}
	return f, nil
}

var _ Index = (*Flat)(nil)
