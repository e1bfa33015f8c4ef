package driven

import "context"

// VectorRecord is one vector written to a modality collection.
// ID equals the segment id; FileID and TaskID let readers drop hits
// from a task that is not the file's active one.
type VectorRecord struct {
	ID      string
	FileID  string
	TaskID  string
	StartMs int64
	EndMs   int64
	Vector  []float32
}

// VectorFilter narrows a similarity query.
type VectorFilter struct {
	// FileIDs restricts hits to these files. Empty means all files.
	FileIDs []string
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the matched segment.
	ID string

	// FileID is the file the segment belongs to.
	FileID string

	// TaskID is the task that wrote the vector.
	TaskID string

	// Score is the cosine similarity (higher is closer).
	Score float64
}

// ResetScope selects what a Reset clears. An empty FileID clears everything.
type ResetScope struct {
	FileID string
}

// All returns true if the scope covers the whole store.
func (s ResetScope) All() bool {
	return s.FileID == ""
}

// VectorStore keeps one similarity collection per modality.
// Errors must wrap domain.ErrStorageUnavailable when the backend is unreachable.
type VectorStore interface {
	// Upsert writes or replaces records in a collection.
	Upsert(ctx context.Context, collection string, records []VectorRecord) error

	// Query returns up to k hits ordered by descending score.
	Query(ctx context.Context, collection string, vector []float32, filter VectorFilter, k int) ([]VectorHit, error)

	// Delete removes records by id. Missing ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Reset removes every record in scope across all collections.
	Reset(ctx context.Context, scope ResetScope) error

	// Close releases resources.
	Close() error
}
