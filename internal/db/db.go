package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"docqa/internal/config"
	"docqa/internal/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// ChunkRecord is one row of the chunk table. Position is the join key
// between a vector and its chunk.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	Position      int            `bun:"position,pk"`
	SourceID      string         `bun:"source_id,notnull"`
	Page          int            `bun:"page,notnull"`
	LocalID       string         `bun:"local_id,notnull"`
	Type          string         `bun:"type,notnull"`
	Content       models.Content `bun:"content,type:jsonb,notnull"`
	Embedding     []float32      `bun:"embedding,notnull,type:vector"`
}

type ManifestRecord struct {
	bun.BaseModel `bun:"table:manifests,alias:m"`
	ID            int             `bun:"id,pk"`
	Manifest      models.Manifest `bun:"manifest,type:jsonb,notnull"`
}

const insertBatch = 500

// Backend stores snapshots in Postgres with pgvector. Both tables are
// replaced inside one transaction.
type Backend struct {
	db    *bun.DB
	table string
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := withSSLMode(cfg.URL)
	switch cfg.Driver {
	case "", "pgdriver":
		opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case "pq":
		if cfg.Password != "" {
			var err error
			if dsn, err = withPassword(dsn, cfg.Password); err != nil {
				return nil, err
			}
		}
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, err
		}
		return sql.OpenDB(connector), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Open connects and makes sure the pgvector extension is available.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Backend, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	b := &Backend{db: NewDB(sqldb, cfg.Debug), table: cfg.Table}
	if b.table == "" {
		b.table = "chunks"
	}
	if err := b.db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("enable pgvector: %w", err)
	}
	return b, nil
}

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) manifestTable() string { return b.table + "_manifest" }

func (b *Backend) InitDB(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*ChunkRecord)(nil)).
		ModelTableExpr("?", bun.Ident(b.table)).
		IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chunk table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*ManifestRecord)(nil)).
		ModelTableExpr("?", bun.Ident(b.manifestTable())).
		IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create manifest table: %w", err)
	}
	return nil
}

func (b *Backend) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot == nil || snapshot.Len() == 0 {
		return models.ErrEmptyCorpus
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}
	records := ToRecords(snapshot)

	err := b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := b.InitDB(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*ChunkRecord)(nil)).
			ModelTableExpr("? AS c", bun.Ident(b.table)).
			Where("TRUE").Exec(ctx); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
		if _, err := tx.NewDelete().Model((*ManifestRecord)(nil)).
			ModelTableExpr("? AS m", bun.Ident(b.manifestTable())).
			Where("TRUE").Exec(ctx); err != nil {
			return fmt.Errorf("clear manifest: %w", err)
		}
		for start := 0; start < len(records); start += insertBatch {
			batch := records[start:min(start+insertBatch, len(records))]
			if _, err := tx.NewInsert().Model(&batch).
				ModelTableExpr("? AS c", bun.Ident(b.table)).
				Exec(ctx); err != nil {
				return fmt.Errorf("insert chunks: %w", err)
			}
		}
		manifest := &ManifestRecord{ID: 1, Manifest: snapshot.Manifest}
		if _, err := tx.NewInsert().Model(manifest).
			ModelTableExpr("? AS m", bun.Ident(b.manifestTable())).
			Exec(ctx); err != nil {
			return fmt.Errorf("insert manifest: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("table", b.table).Int("chunks", len(records)).Msg("snapshot saved")
	return nil
}

func (b *Backend) Load(ctx context.Context) (*models.Snapshot, error) {
	var exists bool
	if err := b.db.NewRaw("SELECT to_regclass(?) IS NOT NULL AND to_regclass(?) IS NOT NULL",
		b.table, b.manifestTable()).Scan(ctx, &exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrIndexUnavailable
	}

	var manifests []ManifestRecord
	if err := b.db.NewSelect().Model(&manifests).
		ModelTableExpr("? AS m", bun.Ident(b.manifestTable())).
		Where("m.id = 1").
		Scan(ctx); err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, models.ErrIndexUnavailable
	}

	var records []ChunkRecord
	if err := b.db.NewSelect().Model(&records).
		ModelTableExpr("? AS c", bun.Ident(b.table)).
		Order("c.position").
		Scan(ctx); err != nil {
		return nil, err
	}
	return FromRecords(manifests[0].Manifest, records)
}

func ToRecords(snapshot *models.Snapshot) []ChunkRecord {
	records := make([]ChunkRecord, snapshot.Len())
	for i, c := range snapshot.Chunks {
		records[i] = ChunkRecord{
			Position:  i,
			SourceID:  c.SourceID,
			Page:      c.Page,
			LocalID:   c.LocalID,
			Type:      string(c.Type),
			Content:   c.Content,
			Embedding: snapshot.Vectors[i],
		}
	}
	return records
}

// FromRecords rebuilds a snapshot from rows ordered by position. A gap in
// the positions means the tables were modified outside a Save.
func FromRecords(manifest models.Manifest, records []ChunkRecord) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{
		Manifest: manifest,
		Vectors:  make([][]float32, len(records)),
		Chunks:   make([]models.Chunk, len(records)),
	}
	for i, r := range records {
		if r.Position != i {
			return nil, fmt.Errorf("%w: expected position %d, found %d", models.ErrStoreCorrupt, i, r.Position)
		}
		snapshot.Chunks[i] = r.chunk()
		snapshot.Vectors[i] = r.Embedding
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r ChunkRecord) chunk() models.Chunk {
	return models.Chunk{
		SourceID: r.SourceID,
		Page:     r.Page,
		LocalID:  r.LocalID,
		Type:     models.ChunkType(r.Type),
		Content:  r.Content,
	}
}

func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&sslmode=disable"
	}
	return dsn + "?sslmode=disable"
}

func withPassword(dsn, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}
