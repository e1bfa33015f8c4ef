package driven

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// MetadataStore persists media files, their segments and task snapshots.
// Backed by SQLite for local installs.
type MetadataStore interface {
	// SaveFile stores or updates a media file.
	SaveFile(ctx context.Context, file *domain.MediaFile) error

	// GetFile retrieves a media file by ID.
	GetFile(ctx context.Context, id string) (*domain.MediaFile, error)

	// ListFiles returns every known media file.
	ListFiles(ctx context.Context) ([]domain.MediaFile, error)

	// GetSegments returns the committed segments of a file.
	GetSegments(ctx context.Context, fileID string) ([]domain.Segment, error)

	// GetSegmentsByID returns the committed segments with the given ids.
	// Unknown ids are skipped.
	GetSegmentsByID(ctx context.Context, ids []string) ([]domain.Segment, error)

	// CommitIndex atomically replaces the file's segments with those of taskID
	// and makes taskID the file's active task. It returns the replaced segments
	// so their vectors can be deleted.
	CommitIndex(ctx context.Context, file *domain.MediaFile, taskID string, segments []domain.Segment) ([]domain.Segment, error)

	// DeleteFile removes a file and its segments, returning the removed segments.
	DeleteFile(ctx context.Context, fileID string) ([]domain.Segment, error)

	// SaveTask stores a task snapshot.
	SaveTask(ctx context.Context, task *domain.ProcessingTask) error

	// GetTask retrieves a task snapshot by ID.
	GetTask(ctx context.Context, id string) (*domain.ProcessingTask, error)

	// ListTasks returns task snapshots, most recent first.
	ListTasks(ctx context.Context, limit int) ([]domain.ProcessingTask, error)

	// Reset removes files and segments in scope. Task history is kept.
	Reset(ctx context.Context, scope ResetScope) error

	// Close releases resources.
	Close() error
}

// PersonStore persists registered people.
type PersonStore interface {
	// SavePerson stores or updates a person.
	SavePerson(ctx context.Context, person *domain.PersonIdentity) error

	// GetPerson retrieves a person by ID.
	GetPerson(ctx context.Context, id string) (*domain.PersonIdentity, error)

	// ListPersons returns all registered people.
	ListPersons(ctx context.Context) ([]domain.PersonIdentity, error)

	// DeletePerson removes a person.
	DeletePerson(ctx context.Context, id string) error
}
