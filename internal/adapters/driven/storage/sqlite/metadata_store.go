package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// metadataStore implements driven.MetadataStore.
type metadataStore struct {
	store *Store
}

var _ driven.MetadataStore = (*metadataStore)(nil)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const fileColumns = `id, uri, kind, duration_ms, fps, content_hash, size, modified_at, last_task_id, created_at, updated_at`

const segmentColumns = `id, file_id, task_id, modality, start_ms, end_ms, frame_index, transcript,
	precision_ns, whole_file, vector_ref`

const taskColumns = `id, file_id, uri, state, progress, retry_count, error_kind, error_message,
	total_segments, failed_segments, created_at, started_at, completed_at`

// SaveFile stores or updates a media file.
func (s *metadataStore) SaveFile(ctx context.Context, file *domain.MediaFile) error {
	return saveFile(ctx, s.store.db, file)
}

func saveFile(ctx context.Context, db execer, file *domain.MediaFile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO media_files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			kind = excluded.kind,
			duration_ms = excluded.duration_ms,
			fps = excluded.fps,
			content_hash = excluded.content_hash,
			size = excluded.size,
			modified_at = excluded.modified_at,
			last_task_id = excluded.last_task_id,
			updated_at = excluded.updated_at
	`, file.ID, file.URI, string(file.Kind), file.DurationMs, file.FPS, file.ContentHash, file.Size,
		nullTime(file.ModifiedAt), file.LastTaskID, nullTime(file.CreatedAt), nullTime(file.UpdatedAt))
	if err != nil {
		return storageErr("saving media file", err)
	}
	return nil
}

// GetFile retrieves a media file by ID.
func (s *metadataStore) GetFile(ctx context.Context, id string) (*domain.MediaFile, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM media_files WHERE id = ?`, id)
	return scanFile(row)
}

// ListFiles returns every known media file ordered by URI.
func (s *metadataStore) ListFiles(ctx context.Context) ([]domain.MediaFile, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM media_files ORDER BY uri`)
	if err != nil {
		return nil, storageErr("querying media files", err)
	}
	defer rows.Close()

	var files []domain.MediaFile //nolint:prealloc // size unknown from query
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating media files", err)
	}
	return files, nil
}

// GetSegments returns the committed segments of a file.
func (s *metadataStore) GetSegments(ctx context.Context, fileID string) ([]domain.Segment, error) {
	return querySegments(ctx, s.store.db, `
		SELECT `+segmentColumns+` FROM segments WHERE file_id = ?
		ORDER BY modality, start_ms, id
	`, fileID)
}

// GetSegmentsByID returns the committed segments with the given ids.
func (s *metadataStore) GetSegmentsByID(ctx context.Context, ids []string) ([]domain.Segment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return querySegments(ctx, s.store.db,
		`SELECT `+segmentColumns+` FROM segments WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
}

// CommitIndex replaces the file's segments and flips its active task in one transaction.
func (s *metadataStore) CommitIndex(
	ctx context.Context, file *domain.MediaFile, taskID string, segments []domain.Segment,
) ([]domain.Segment, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	previous, err := querySegments(ctx, tx, `SELECT `+segmentColumns+` FROM segments WHERE file_id = ?`, file.ID)
	if err != nil {
		return nil, err
	}

	stored := *file
	stored.LastTaskID = taskID
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	if err := saveFile(ctx, tx, &stored); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE file_id = ?`, file.ID); err != nil {
		return nil, storageErr("deleting previous segments", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (`+segmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, storageErr("preparing statement", err)
	}
	defer stmt.Close()

	for i := range segments {
		seg := &segments[i]
		var frame sql.NullInt64
		if seg.FrameIndex != nil {
			frame = sql.NullInt64{Int64: *seg.FrameIndex, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, seg.ID, file.ID, seg.TaskID, string(seg.Modality),
			seg.StartMs, seg.EndMs, frame, seg.Transcript, int64(seg.Precision), seg.WholeFile, seg.VectorRef); err != nil {
			return nil, storageErr("saving segment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing index", err)
	}
	file.LastTaskID = taskID
	return previous, nil
}

// DeleteFile removes a file and its segments.
func (s *metadataStore) DeleteFile(ctx context.Context, fileID string) ([]domain.Segment, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	removed, err := querySegments(ctx, tx, `SELECT `+segmentColumns+` FROM segments WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE file_id = ?`, fileID); err != nil {
		return nil, storageErr("deleting segments", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM media_files WHERE id = ?`, fileID)
	if err != nil {
		return nil, storageErr("deleting media file", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("committing delete", err)
	}
	return removed, nil
}

// SaveTask stores a task snapshot.
func (s *metadataStore) SaveTask(ctx context.Context, task *domain.ProcessingTask) error {
	var errKind, errMsg sql.NullString
	if task.Error != nil {
		errKind = sql.NullString{String: string(task.Error.Kind), Valid: true}
		errMsg = sql.NullString{String: task.Error.Message, Valid: true}
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			progress = excluded.progress,
			retry_count = excluded.retry_count,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			total_segments = excluded.total_segments,
			failed_segments = excluded.failed_segments,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, task.ID, task.FileID, task.URI, string(task.State), task.Progress, task.RetryCount,
		errKind, errMsg, task.TotalSegments, task.FailedSegments,
		nullTime(task.CreatedAt), nullTime(task.StartedAt), nullTime(task.CompletedAt))
	if err != nil {
		return storageErr("saving task", err)
	}
	return nil
}

// GetTask retrieves a task snapshot by ID.
func (s *metadataStore) GetTask(ctx context.Context, id string) (*domain.ProcessingTask, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks returns task snapshots, most recent first.
func (s *metadataStore) ListTasks(ctx context.Context, limit int) ([]domain.ProcessingTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying tasks", err)
	}
	defer rows.Close()

	var tasks []domain.ProcessingTask //nolint:prealloc // size unknown from query
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating tasks", err)
	}
	return tasks, nil
}

// Reset removes files and segments in scope.
func (s *metadataStore) Reset(ctx context.Context, scope driven.ResetScope) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	statements := []string{`DELETE FROM segments`, `DELETE FROM media_files`}
	var args []any
	if !scope.All() {
		statements = []string{`DELETE FROM segments WHERE file_id = ?`, `DELETE FROM media_files WHERE id = ?`}
		args = []any{scope.FileID}
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return storageErr("resetting metadata", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing reset", err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the database.
func (s *metadataStore) Close() error {
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*domain.MediaFile, error) {
	var f domain.MediaFile
	var kind string
	var modifiedAt, createdAt, updatedAt sql.NullTime

	if err := row.Scan(&f.ID, &f.URI, &kind, &f.DurationMs, &f.FPS, &f.ContentHash, &f.Size,
		&modifiedAt, &f.LastTaskID, &createdAt, &updatedAt); err != nil {
		return nil, notFound("scanning media file", err)
	}

	f.Kind = domain.MediaKind(kind)
	f.ModifiedAt = timeOf(modifiedAt)
	f.CreatedAt = timeOf(createdAt)
	f.UpdatedAt = timeOf(updatedAt)
	return &f, nil
}

func querySegments(ctx context.Context, db execer, query string, args ...any) ([]domain.Segment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying segments", err)
	}
	defer rows.Close()

	var segments []domain.Segment //nolint:prealloc // size unknown from query
	for rows.Next() {
		var seg domain.Segment
		var modality string
		var frame sql.NullInt64
		var precision int64

		if err := rows.Scan(&seg.ID, &seg.FileID, &seg.TaskID, &modality, &seg.StartMs, &seg.EndMs,
			&frame, &seg.Transcript, &precision, &seg.WholeFile, &seg.VectorRef); err != nil {
			return nil, storageErr("scanning segment", err)
		}

		seg.Modality = domain.Modality(modality)
		seg.Precision = time.Duration(precision)
		if frame.Valid {
			idx := frame.Int64
			seg.FrameIndex = &idx
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating segments", err)
	}
	return segments, nil
}

func scanTask(row scanner) (*domain.ProcessingTask, error) {
	var t domain.ProcessingTask
	var state string
	var errKind, errMsg sql.NullString
	var createdAt, startedAt, completedAt sql.NullTime

	if err := row.Scan(&t.ID, &t.FileID, &t.URI, &state, &t.Progress, &t.RetryCount, &errKind, &errMsg,
		&t.TotalSegments, &t.FailedSegments, &createdAt, &startedAt, &completedAt); err != nil {
		return nil, notFound("scanning task", err)
	}

	t.State = domain.TaskState(state)
	if errKind.Valid {
		t.Error = &domain.TaskError{Kind: domain.ErrorKind(errKind.String), Message: errMsg.String}
	}
	t.CreatedAt = timeOf(createdAt)
	t.StartedAt = timeOf(startedAt)
	t.CompletedAt = timeOf(completedAt)
	return &t, nil
}
