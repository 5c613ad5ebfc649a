package store

import (
	"context"
	"fmt"

	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/models"
)

// Backend persists a snapshot as one unit. Save replaces whatever was
// stored before; Load returns models.ErrIndexUnavailable when nothing has
// been saved yet.
type Backend interface {
	Save(ctx context.Context, snapshot *models.Snapshot) error
	Load(ctx context.Context) (*models.Snapshot, error)
	Close() error
}

// Open returns the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Store.Backend {
	case "", "file":
		return NewFileBackend(cfg.Store.Dir), nil
	case "postgres":
		b, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// checkSave rejects snapshots that must never reach a backend.
func checkSave(snapshot *models.Snapshot) error {
	if snapshot == nil || snapshot.Len() == 0 {
		return models.ErrEmptyCorpus
	}
	return snapshot.Validate()
}
