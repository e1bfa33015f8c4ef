package driving

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// IngestionService accepts media for indexing and tracks its progress.
type IngestionService interface {
	// Start launches the worker pool. It returns immediately.
	Start(ctx context.Context) error

	// Stop stops accepting work, waits for in-flight tasks and releases workers.
	Stop() error

	// Submit enqueues a file and returns its task id.
	// Submitting a file that is already in flight returns the in-flight task id.
	// Submitting an unchanged, already indexed file returns the completed task id.
	Submit(ctx context.Context, uri string) (string, error)

	// BatchSubmit submits each URI in order. Failures of individual files are
	// reported on their tasks, not as an error.
	BatchSubmit(ctx context.Context, uris []string) ([]string, error)

	// Status returns a snapshot of a task.
	Status(ctx context.Context, taskID string) (*domain.ProcessingTask, error)

	// Cancel requests cancellation. Returns domain.ErrTaskTerminal if the task already finished.
	Cancel(ctx context.Context, taskID string) error

	// Wait blocks until the task reaches a terminal state or ctx ends.
	Wait(ctx context.Context, taskID string) (*domain.ProcessingTask, error)

	// Remove drops a file's segments and vectors from the index.
	Remove(ctx context.Context, uri string) error
}

// Segmenter splits a media file into modality-tagged segments on one shared timeline.
type Segmenter interface {
	// Segment decodes the local copy of file and returns its segments,
	// sorted per modality and non-overlapping within each modality.
	Segment(ctx context.Context, file *domain.MediaFile, localPath string) ([]domain.Segment, error)
}
