package models

import "errors"

var (
	// ErrEmptyCorpus means no chunk survived extraction and filtering.
	ErrEmptyCorpus = errors.New("empty corpus: no content to index")
	// ErrIndexUnavailable means no persisted index exists yet.
	ErrIndexUnavailable = errors.New("index unavailable: ingest documents first")
	// ErrModelMismatch means the query embedding does not fit the index.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrCollaborator wraps failures of the embedder, OCR or generative model.
	ErrCollaborator = errors.New("collaborator call failed")
	// ErrStoreCorrupt means the persisted vectors and chunks are out of alignment.
	ErrStoreCorrupt = errors.New("persisted store is corrupt")
)
