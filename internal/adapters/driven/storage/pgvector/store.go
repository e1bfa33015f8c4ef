// Package pgvector implements driven.VectorStore on PostgreSQL with the
// pgvector extension. All modality collections share one table keyed by
// (collection, id); similarity is cosine via the <=> operator.
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS media_vectors (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    file_id    TEXT NOT NULL,
    task_id    TEXT NOT NULL,
    start_ms   BIGINT NOT NULL DEFAULT 0,
    end_ms     BIGINT NOT NULL DEFAULT 0,
    embedding  vector NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS media_vectors_file_idx ON media_vectors (file_id);
`

const upsertSQL = `
INSERT INTO media_vectors (collection, id, file_id, task_id, start_ms, end_ms, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (collection, id) DO UPDATE SET
    file_id = EXCLUDED.file_id,
    task_id = EXCLUDED.task_id,
    start_ms = EXCLUDED.start_ms,
    end_ms = EXCLUDED.end_ms,
    embedding = EXCLUDED.embedding`

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is a PostgreSQL + pgvector vector store.
type Store struct {
	db DB
}

// Connect opens a pool, registers the vector type and creates the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: pgvector dsn: %w", domain.ErrInvalidInput, err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	// The extension must exist before AfterConnect can register its type.
	bootstrap, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	_, err = bootstrap.Exec(ctx, schema)
	bootstrap.Close(ctx)
	if err != nil {
		return nil, unavailable("create schema", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("open pool", err)
	}
	logger.Debug("Connected to pgvector at %s", cfg.ConnConfig.Host)
	return New(pool), nil
}

// New wraps an existing pool. The schema must already exist.
func New(db DB) *Store {
	return &Store{db: db}
}

// Upsert writes or replaces records in a collection in one batch.
func (s *Store) Upsert(ctx context.Context, collection string, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertSQL, collection, r.ID, r.FileID, r.TaskID, r.StartMs, r.EndMs, pgvector.NewVector(r.Vector))
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return unavailable("upsert "+collection, err)
		}
	}
	return nil
}

// Query returns up to k hits ordered by descending cosine similarity.
func (s *Store) Query(
	ctx context.Context, collection string, vector []float32, filter driven.VectorFilter, k int,
) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	sql, args := buildQuery(collection, pgvector.NewVector(vector), filter, k)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("query "+collection, err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var h driven.VectorHit
		if err := rows.Scan(&h.ID, &h.FileID, &h.TaskID, &h.Score); err != nil {
			return nil, unavailable("scan hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate hits", err)
	}
	return hits, nil
}

// Delete removes records by id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM media_vectors WHERE collection = $1 AND id = ANY($2)`, collection, ids)
	if err != nil {
		return unavailable("delete "+collection, err)
	}
	return nil
}

// Reset removes every record in scope across all collections.
func (s *Store) Reset(ctx context.Context, scope driven.ResetScope) error {
	var err error
	if scope.All() {
		_, err = s.db.Exec(ctx, `DELETE FROM media_vectors`)
	} else {
		_, err = s.db.Exec(ctx, `DELETE FROM media_vectors WHERE file_id = $1`, scope.FileID)
	}
	if err != nil {
		return unavailable("reset", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// buildQuery returns the similarity query and its arguments. The score is
// 1 - cosine distance so that higher is closer.
func buildQuery(collection string, vector pgvector.Vector, filter driven.VectorFilter, k int) (string, []any) {
	sql := `SELECT id, file_id, task_id, 1 - (embedding <=> $1) AS score
FROM media_vectors
WHERE collection = $2`
	args := []any{vector, collection}
	if len(filter.FileIDs) > 0 {
		sql += ` AND file_id = ANY($3)`
		args = append(args, filter.FileIDs)
	}
	args = append(args, k)
	sql += fmt.Sprintf("\nORDER BY embedding <=> $1\nLIMIT $%d", len(args))
	return sql, args
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: pgvector %s: %w", domain.ErrStorageUnavailable, op, err)
}
