package sqlite

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// vectorStore implements driven.VectorStore with brute-force cosine scoring
// over vectors kept in the same database as the metadata.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// Upsert writes or replaces records in a collection.
func (s *vectorStore) Upsert(ctx context.Context, collection string, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (collection, id, file_id, task_id, start_ms, end_ms, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			file_id = excluded.file_id,
			task_id = excluded.task_id,
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			embedding = excluded.embedding
	`)
	if err != nil {
		return storageErr("preparing statement", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.FileID, r.TaskID,
			r.StartMs, r.EndMs, encodeVector(r.Vector)); err != nil {
			return storageErr("saving vector", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing vectors", err)
	}
	return nil
}

// Query scores every record in the collection (narrowed by the filter) and returns the top k.
func (s *vectorStore) Query(
	ctx context.Context, collection string, vector []float32, filter driven.VectorFilter, k int,
) ([]driven.VectorHit, error) {
	query := `SELECT id, file_id, task_id, embedding FROM vectors WHERE collection = ?`
	args := []any{collection}
	if len(filter.FileIDs) > 0 {
		query += ` AND file_id IN (` + placeholders(len(filter.FileIDs)) + `)`
		args = append(args, stringArgs(filter.FileIDs)...)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying vectors", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	var scores []similarity.Scored
	for rows.Next() {
		var h driven.VectorHit
		var blob []byte
		if err := rows.Scan(&h.ID, &h.FileID, &h.TaskID, &blob); err != nil {
			return nil, storageErr("scanning vector", err)
		}
		scores = append(scores, similarity.Scored{Index: len(hits), Score: similarity.Cosine(vector, decodeVector(blob))})
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating vectors", err)
	}

	top := similarity.TopK(scores, k)
	out := make([]driven.VectorHit, len(top))
	for i, sc := range top {
		out[i] = hits[sc.Index]
		out[i].Score = sc.Score
	}
	return out, nil
}

// Delete removes records by id. Missing ids are ignored.
func (s *vectorStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{collection}, stringArgs(ids)...)
	_, err := s.store.db.ExecContext(ctx,
		`DELETE FROM vectors WHERE collection = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return storageErr("deleting vectors", err)
	}
	return nil
}

// Reset removes every record in scope across all collections.
func (s *vectorStore) Reset(ctx context.Context, scope driven.ResetScope) error {
	var err error
	if scope.All() {
		_, err = s.store.db.ExecContext(ctx, `DELETE FROM vectors`)
	} else {
		_, err = s.store.db.ExecContext(ctx, `DELETE FROM vectors WHERE file_id = ?`, scope.FileID)
	}
	if err != nil {
		return storageErr("resetting vectors", err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the database.
func (s *vectorStore) Close() error {
	return nil
}
