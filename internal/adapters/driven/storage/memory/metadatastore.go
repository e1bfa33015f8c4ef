package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure MetadataStore implements the interface.
var _ driven.MetadataStore = (*MetadataStore)(nil)

// MetadataStore is an in-memory implementation of driven.MetadataStore.
type MetadataStore struct {
	mu       sync.RWMutex
	files    map[string]domain.MediaFile
	segments map[string][]domain.Segment
	byID     map[string]domain.Segment
	tasks    map[string]domain.ProcessingTask
}

// NewMetadataStore creates a new in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		files:    make(map[string]domain.MediaFile),
		segments: make(map[string][]domain.Segment),
		byID:     make(map[string]domain.Segment),
		tasks:    make(map[string]domain.ProcessingTask),
	}
}

// SaveFile stores or updates a media file.
func (s *MetadataStore) SaveFile(_ context.Context, file *domain.MediaFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.ID] = *file
	return nil
}

// GetFile retrieves a media file by ID.
func (s *MetadataStore) GetFile(_ context.Context, id string) (*domain.MediaFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.files[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &file, nil
}

// ListFiles returns every known media file ordered by URI.
func (s *MetadataStore) ListFiles(_ context.Context) ([]domain.MediaFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]domain.MediaFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].URI < files[j].URI })
	return files, nil
}

// GetSegments returns the committed segments of a file.
func (s *MetadataStore) GetSegments(_ context.Context, fileID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Segment(nil), s.segments[fileID]...), nil
}

// GetSegmentsByID returns the committed segments with the given ids.
func (s *MetadataStore) GetSegmentsByID(_ context.Context, ids []string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Segment, 0, len(ids))
	for _, id := range ids {
		if seg, ok := s.byID[id]; ok {
			out = append(out, seg)
		}
	}
	return out, nil
}

// CommitIndex replaces the file's segments and flips its active task in one step.
func (s *MetadataStore) CommitIndex(
	_ context.Context, file *domain.MediaFile, taskID string, segments []domain.Segment,
) ([]domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.segments[file.ID]
	for _, seg := range previous {
		delete(s.byID, seg.ID)
	}

	committed := make([]domain.Segment, len(segments))
	for i, seg := range segments {
		seg.Embedding = nil
		committed[i] = seg
		s.byID[seg.ID] = seg
	}
	s.segments[file.ID] = committed

	stored := *file
	stored.LastTaskID = taskID
	s.files[file.ID] = stored
	file.LastTaskID = taskID

	return previous, nil
}

// DeleteFile removes a file and its segments.
func (s *MetadataStore) DeleteFile(_ context.Context, fileID string) ([]domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return nil, domain.ErrNotFound
	}
	removed := s.segments[fileID]
	s.dropFileLocked(fileID)
	return removed, nil
}

// SaveTask stores a task snapshot.
func (s *MetadataStore) SaveTask(_ context.Context, task *domain.ProcessingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *task
	if task.Error != nil {
		e := *task.Error
		snapshot.Error = &e
	}
	s.tasks[task.ID] = snapshot
	return nil
}

// GetTask retrieves a task snapshot by ID.
func (s *MetadataStore) GetTask(_ context.Context, id string) (*domain.ProcessingTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &task, nil
}

// ListTasks returns task snapshots, most recent first.
func (s *MetadataStore) ListTasks(_ context.Context, limit int) ([]domain.ProcessingTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]domain.ProcessingTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// Reset removes files and segments in scope.
func (s *MetadataStore) Reset(_ context.Context, scope driven.ResetScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope.All() {
		s.files = make(map[string]domain.MediaFile)
		s.segments = make(map[string][]domain.Segment)
		s.byID = make(map[string]domain.Segment)
		return nil
	}
	s.dropFileLocked(scope.FileID)
	return nil
}

func (s *MetadataStore) dropFileLocked(fileID string) {
	for _, seg := range s.segments[fileID] {
		delete(s.byID, seg.ID)
	}
	delete(s.segments, fileID)
	delete(s.files, fileID)
}

// Close releases resources (no-op for memory store).
func (s *MetadataStore) Close() error {
	return nil
}
