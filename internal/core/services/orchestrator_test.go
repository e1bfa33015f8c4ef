package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// mockSource implements driven.MediaSource. Paths are used as-is.
type mockSource struct {
	mu     sync.Mutex
	hashes map[string]string
	fetchN atomic.Int32

	fetchGate    chan struct{}
	fetchEntered chan struct{}
}

func newMockSource() *mockSource {
	return &mockSource{hashes: make(map[string]string)}
}

func (m *mockSource) setHash(uri, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[uri] = hash
}

func (m *mockSource) Stat(_ context.Context, uri string) (*domain.MediaStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.hashes[uri]
	if !ok {
		hash = "h-" + uri
	}
	return &domain.MediaStat{Size: 1024, ContentHash: hash}, nil
}

func (m *mockSource) Fetch(ctx context.Context, uri string) (string, func(), error) {
	m.fetchN.Add(1)
	if m.fetchEntered != nil {
		select {
		case m.fetchEntered <- struct{}{}:
		default:
		}
	}
	if m.fetchGate != nil {
		select {
		case <-m.fetchGate:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	return uri, func() {}, nil
}

// mockEmbedder implements driven.EmbeddingProvider with deterministic vectors.
type mockEmbedder struct {
	mu        sync.Mutex
	calls     map[domain.Modality]int
	failFor   map[domain.Modality]error
	transient int // fail this many calls with ModelUnavailable before succeeding
	noFace    bool
	gate      chan struct{}
	entered   chan struct{}
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{calls: make(map[domain.Modality]int), failFor: make(map[domain.Modality]error)}
}

func (m *mockEmbedder) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls[modality]++
	if m.transient > 0 {
		m.transient--
		m.mu.Unlock()
		return nil, domain.ErrModelUnavailable
	}
	err := m.failFor[modality]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if modality == domain.ModalityFace && m.noFace {
		return nil, domain.ErrNoFace
	}
	if content.IsText() {
		return &driven.Embedding{Vector: textVector(content.Text)}, nil
	}
	emb := &driven.Embedding{Vector: []float32{float32(len(content.Data)), 1, float32(len(modality))}}
	if modality == domain.ModalityAudioSpeech {
		emb.Transcript = "hello from " + string(content.Data)
	}
	return emb, nil
}

func (m *mockEmbedder) callCount(modality domain.Modality) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[modality]
}

func (m *mockEmbedder) ModelName() string { return "mock" }
func (m *mockEmbedder) Close() error      { return nil }

func textVector(text string) []float32 {
	return []float32{float32(len(text)), 1, 0}
}

// flakyVectorStore fails the first n upserts with StorageUnavailable. With
// hang set every upsert blocks until its context ends. A gate holds the call
// after the write lands.
type flakyVectorStore struct {
	*memory.VectorStore
	mu       sync.Mutex
	failures int
	upserts  int
	hang     bool
	gate     chan struct{}
	entered  chan struct{}
}

func (f *flakyVectorStore) Upsert(ctx context.Context, collection string, records []driven.VectorRecord) error {
	f.mu.Lock()
	f.upserts++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return fmt.Errorf("connection refused: %w", domain.ErrStorageUnavailable)
	}
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.VectorStore.Upsert(ctx, collection, records); err != nil {
		return err
	}
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// testMediaDecoder answers by extension: .mp4 is a 30s/30fps clip with a cut
// at 12s and an audio track, .mp3 a 20s song, images decode to a frame.
func testMediaDecoder() *mockDecoder {
	return &mockDecoder{
		info:        &domain.MediaInfo{DurationMs: 30000, FPS: 30, HasVideo: true, HasAudio: true},
		scores:      sceneCuts(30, 30, 12),
		probeErrFor: make(map[string]error),
	}
}

type orchestratorFixture struct {
	orch     *IngestionOrchestrator
	source   *mockSource
	decoder  *mockDecoder
	embedder *mockEmbedder
	vectors  *flakyVectorStore
	metadata *memory.MetadataStore
}

func newOrchestratorFixture(t *testing.T, mutate func(*domain.AppSettings)) *orchestratorFixture {
	t.Helper()
	settings := domain.DefaultAppSettings()
	settings.Segmenter.Speech = true
	if mutate != nil {
		mutate(&settings)
	}

	f := &orchestratorFixture{
		source:   newMockSource(),
		decoder:  testMediaDecoder(),
		embedder: newMockEmbedder(),
		vectors:  &flakyVectorStore{VectorStore: memory.NewVectorStore()},
		metadata: memory.NewMetadataStore(),
	}
	segmenter := NewTemporalSegmenter(f.decoder, settings.Segmenter)
	f.orch = NewIngestionOrchestrator(
		f.source, segmenter, f.decoder, f.embedder, f.vectors, f.metadata,
		settings.Orchestrator, settings.Retry,
	)
	f.orch.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { _ = f.orch.Stop() })
	return f
}

func (f *orchestratorFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.orch.Start(context.Background()))
}

func waitTask(t *testing.T, orch *IngestionOrchestrator, id string) *domain.ProcessingTask {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	task, err := orch.Wait(ctx, id)
	require.NoError(t, err)
	return task
}

func TestCanonicalURI(t *testing.T) {
	assert.Equal(t, "s3://bucket/a.mp4", CanonicalURI(" s3://bucket/a.mp4 "))
	assert.Equal(t, "/media/a.mp4", CanonicalURI("/media/x/../a.mp4"))
	assert.True(t, filepath.IsAbs(CanonicalURI("relative/a.mp4")))
	assert.Equal(t, MediaFileID("/media/a.mp4"), MediaFileID(CanonicalURI("file:/media/a.mp4")))
	assert.NotEqual(t, MediaFileID("/media/a.mp4"), MediaFileID("/media/b.mp4"))
}

func TestOrchestrator_SubmitCompletesVideo(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)

	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCompleted, task.State)
	assert.Equal(t, 1.0, task.Progress)
	assert.Nil(t, task.Error)
	// 2 visual + 3 music + 3 speech
	assert.Equal(t, 8, task.TotalSegments)

	fileID := MediaFileID("/media/clip.mp4")
	file, err := f.metadata.GetFile(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, id, file.LastTaskID)
	assert.Equal(t, int64(30000), file.DurationMs)
	assert.Equal(t, "h-/media/clip.mp4", file.ContentHash)

	segs, err := f.metadata.GetSegments(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, segs, 8)
	require.NoError(t, domain.ValidateSegments(segs))
	for _, s := range segs {
		assert.Equal(t, id, s.TaskID)
		assert.Less(t, s.StartMs, s.EndMs)
		assert.Equal(t, s.Modality.Collection()+"/"+s.ID, s.VectorRef)
		if s.Modality == domain.ModalityAudioSpeech {
			assert.True(t, strings.HasPrefix(s.Transcript, "hello from audio@"))
		}
	}

	assert.Equal(t, 2, f.vectors.Count(domain.ModalityVisual.Collection()))
	assert.Equal(t, 3, f.vectors.Count(domain.ModalityAudioMusic.Collection()))
	assert.Equal(t, 3, f.vectors.Count(domain.ModalityAudioSpeech.Collection()))

	stored, err := f.metadata.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, stored.State, "snapshot persisted")
}

func TestOrchestrator_Idempotence(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	first, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)
	waitTask(t, f.orch, first)

	second, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, first, second, "unchanged file maps to the completed task")
	assert.Equal(t, int32(1), f.source.fetchN.Load())

	tasks, err := f.metadata.ListTasks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	segs, err := f.metadata.GetSegments(ctx, MediaFileID("/media/clip.mp4"))
	require.NoError(t, err)
	assert.Len(t, segs, 8, "no duplicate segments")

	// Changed content is re-indexed and replaces the old vectors.
	f.source.setHash("/media/clip.mp4", "h2")
	third, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, domain.TaskCompleted, waitTask(t, f.orch, third).State)

	segs, err = f.metadata.GetSegments(ctx, MediaFileID("/media/clip.mp4"))
	require.NoError(t, err)
	assert.Len(t, segs, 8)
	assert.Equal(t, 2, f.vectors.Count(domain.ModalityVisual.Collection()))
}

func TestOrchestrator_ConcurrentSubmitDedup(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.embedder.gate = make(chan struct{})
	f.start(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.orch.Submit(ctx, "/media/clip.mp4")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	close(f.embedder.gate)

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, domain.TaskCompleted, waitTask(t, f.orch, ids[0]).State)

	tasks, err := f.metadata.ListTasks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "exactly one task")
}

// hookedMetadata runs onGetFile once, after the wrapped lookup.
type hookedMetadata struct {
	*memory.MetadataStore
	onGetFile atomic.Pointer[func()]
}

func (h *hookedMetadata) GetFile(ctx context.Context, id string) (*domain.MediaFile, error) {
	file, err := h.MetadataStore.GetFile(ctx, id)
	if hook := h.onGetFile.Swap(nil); hook != nil {
		(*hook)()
	}
	return file, err
}

func TestOrchestrator_SubmitSeesCommitBeforeRegistering(t *testing.T) {
	settings := domain.DefaultAppSettings()
	source := newMockSource()
	decoder := testMediaDecoder()
	metadata := &hookedMetadata{MetadataStore: memory.NewMetadataStore()}
	orch := NewIngestionOrchestrator(
		source, NewTemporalSegmenter(decoder, settings.Segmenter), decoder,
		newMockEmbedder(), memory.NewVectorStore(), metadata,
		settings.Orchestrator, settings.Retry,
	)
	orch.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { _ = orch.Stop() })
	require.NoError(t, orch.Start(context.Background()))
	ctx := context.Background()
	const uri = "/media/photo.jpg"

	// The second submission misses the index, then a first one runs to
	// completion before it reaches the in-flight set.
	var first string
	hook := func() {
		id, err := orch.Submit(ctx, uri)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskCompleted, waitTask(t, orch, id).State)
		first = id
	}
	metadata.onGetFile.Store(&hook)

	second, err := orch.Submit(ctx, uri)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.fetchN.Load())

	tasks, err := metadata.ListTasks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestOrchestrator_UnsupportedFileType(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.start(t)

	id, err := f.orch.Submit(context.Background(), "/docs/report.pdf")
	require.NoError(t, err)

	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskFailed, task.State)
	require.NotNil(t, task.Error)
	assert.Equal(t, domain.ErrorKindUnsupportedFileType, task.Error.Kind)
	assert.Zero(t, f.source.fetchN.Load(), "routing never touches content")
}

func TestOrchestrator_BatchIsolatesCorruptedFile(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	var uris []string
	for i := 1; i <= 10; i++ {
		uris = append(uris, fmt.Sprintf("/media/batch/clip%02d.mp4", i))
	}
	f.decoder.probeErrFor[uris[3]] = errors.New("moov atom not found")
	f.start(t)

	ids, err := f.orch.BatchSubmit(context.Background(), uris)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	completed := 0
	for i, id := range ids {
		task := waitTask(t, f.orch, id)
		if i == 3 {
			assert.Equal(t, domain.TaskFailed, task.State)
			require.NotNil(t, task.Error)
			assert.Equal(t, domain.ErrorKindFileCorrupted, task.Error.Kind)
			continue
		}
		if assert.Equal(t, domain.TaskCompleted, task.State, uris[i]) {
			completed++
		}
	}
	assert.Equal(t, 9, completed)
}

func TestOrchestrator_SegmentFailureRatio(t *testing.T) {
	t.Run("minority failure completes", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.embedder.failFor[domain.ModalityAudioSpeech] = fmt.Errorf("bad audio: %w", domain.ErrUnsupportedFileType)
		f.start(t)

		id, err := f.orch.Submit(context.Background(), "/media/clip.mp4")
		require.NoError(t, err)
		task := waitTask(t, f.orch, id)
		assert.Equal(t, domain.TaskCompleted, task.State)
		assert.Equal(t, 3, task.FailedSegments)

		segs, _ := f.metadata.GetSegments(context.Background(), MediaFileID("/media/clip.mp4"))
		assert.Len(t, segs, 5, "failed segments are skipped")
		assert.Equal(t, 3, f.embedder.callCount(domain.ModalityAudioSpeech), "permanent errors are not retried")
	})

	t.Run("majority failure fails", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.embedder.failFor[domain.ModalityAudioSpeech] = domain.ErrFileCorrupted
		f.embedder.failFor[domain.ModalityAudioMusic] = domain.ErrFileCorrupted
		f.start(t)

		id, err := f.orch.Submit(context.Background(), "/media/clip.mp4")
		require.NoError(t, err)
		task := waitTask(t, f.orch, id)
		assert.Equal(t, domain.TaskFailed, task.State)
		assert.Equal(t, domain.ErrorKindFileCorrupted, task.Error.Kind)
		assert.Equal(t, 0, f.vectors.Count(domain.ModalityVisual.Collection()))
	})
}

func TestOrchestrator_TransientEmbedRetried(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.embedder.transient = 2
	f.start(t)

	id, err := f.orch.Submit(context.Background(), "/media/song.mp3")
	require.NoError(t, err)
	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCompleted, task.State)
	assert.Zero(t, task.FailedSegments)
}

func TestOrchestrator_StoringRetries(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.vectors.failures = 2
		f.start(t)

		id, err := f.orch.Submit(context.Background(), "/media/photo.jpg")
		require.NoError(t, err)
		task := waitTask(t, f.orch, id)
		assert.Equal(t, domain.TaskCompleted, task.State)
		assert.Equal(t, 1, f.vectors.Count(domain.ModalityVisual.Collection()))
	})

	t.Run("gives up", func(t *testing.T) {
		f := newOrchestratorFixture(t, nil)
		f.vectors.failures = 100
		f.start(t)

		id, err := f.orch.Submit(context.Background(), "/media/photo.jpg")
		require.NoError(t, err)
		task := waitTask(t, f.orch, id)
		assert.Equal(t, domain.TaskFailed, task.State)
		assert.Equal(t, domain.ErrorKindStorageUnavailable, task.Error.Kind)
		assert.Equal(t, 3, f.vectors.upserts, "bounded by retry.max_attempts")

		_, err = f.metadata.GetFile(context.Background(), MediaFileID("/media/photo.jpg"))
		assert.ErrorIs(t, err, domain.ErrNotFound, "nothing committed")
	})
}

func TestOrchestrator_StoreTimeoutIsStorageUnavailable(t *testing.T) {
	f := newOrchestratorFixture(t, func(s *domain.AppSettings) {
		s.Orchestrator.StoreTimeout = 20 * time.Millisecond
	})
	f.vectors.hang = true
	f.start(t)

	id, err := f.orch.Submit(context.Background(), "/media/photo.jpg")
	require.NoError(t, err)
	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskFailed, task.State)
	require.NotNil(t, task.Error)
	assert.Equal(t, domain.ErrorKindStorageUnavailable, task.Error.Kind)
	assert.Equal(t, 3, f.vectors.upserts, "timeouts are retried like other store failures")
}

func TestOrchestrator_NoFaceIsNotAFailure(t *testing.T) {
	f := newOrchestratorFixture(t, func(s *domain.AppSettings) { s.Segmenter.Faces = true })
	f.embedder.noFace = true
	f.start(t)

	id, err := f.orch.Submit(context.Background(), "/media/photo.png")
	require.NoError(t, err)
	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCompleted, task.State)
	assert.Zero(t, task.FailedSegments)
	assert.Equal(t, 0, f.vectors.Count(domain.ModalityFace.Collection()))
	assert.Equal(t, 1, f.vectors.Count(domain.ModalityVisual.Collection()))
}

func TestOrchestrator_NoSpeechIsNotAFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.embedder.failFor[domain.ModalityAudioSpeech] = domain.ErrNoSpeech
	f.start(t)

	id, err := f.orch.Submit(context.Background(), "/media/song.mp3")
	require.NoError(t, err)
	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCompleted, task.State)
	assert.Zero(t, task.FailedSegments)
	assert.Equal(t, 0, f.vectors.Count(domain.ModalityAudioSpeech.Collection()))
	assert.Positive(t, f.vectors.Count(domain.ModalityAudioMusic.Collection()))
}

func TestOrchestrator_CancelPending(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)

	require.NoError(t, f.orch.Cancel(ctx, id))
	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCancelled, task.State)

	f.start(t)
	assert.ErrorIs(t, f.orch.Cancel(ctx, id), domain.ErrTaskTerminal)
	assert.Zero(t, f.source.fetchN.Load())

	// The file is free again.
	again, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)
	assert.NotEqual(t, id, again)
	assert.Equal(t, domain.TaskCompleted, waitTask(t, f.orch, again).State)
}

func TestOrchestrator_CancelDuringVectorizing(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.embedder.gate = make(chan struct{})
	f.embedder.entered = make(chan struct{}, 1)
	f.start(t)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)

	<-f.embedder.entered
	status, err := f.orch.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskVectorizing, status.State)

	require.NoError(t, f.orch.Cancel(ctx, id))
	close(f.embedder.gate)

	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCancelled, task.State)
	for _, m := range domain.AllModalities() {
		assert.Equal(t, 0, f.vectors.Count(m.Collection()), m)
	}
	_, err = f.metadata.GetFile(ctx, MediaFileID("/media/clip.mp4"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrchestrator_CancelDuringStoring(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.vectors.gate = make(chan struct{})
	f.vectors.entered = make(chan struct{}, 1)
	f.start(t)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, "/media/photo.jpg")
	require.NoError(t, err)

	<-f.vectors.entered
	status, err := f.orch.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStoring, status.State)

	require.NoError(t, f.orch.Cancel(ctx, id))
	status, err = f.orch.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStoring, status.State, "storing stops at the next checkpoint")
	close(f.vectors.gate)

	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCancelled, task.State)
	_, err = f.metadata.GetFile(ctx, MediaFileID("/media/photo.jpg"))
	assert.ErrorIs(t, err, domain.ErrNotFound, "nothing committed")
	for _, m := range domain.AllModalities() {
		assert.Equal(t, 0, f.vectors.Count(m.Collection()), m)
	}
}

func TestOrchestrator_CancelDuringPreprocessing(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.source.fetchGate = make(chan struct{})
	f.source.fetchEntered = make(chan struct{}, 1)
	defer close(f.source.fetchGate)
	f.start(t)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)

	<-f.source.fetchEntered
	status, err := f.orch.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPreprocessing, status.State)

	require.NoError(t, f.orch.Cancel(ctx, id))
	status, err = f.orch.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, status.State, "cancelled without waiting for the fetch")

	task := waitTask(t, f.orch, id)
	assert.Equal(t, domain.TaskCancelled, task.State)
	assert.Nil(t, task.Error)
	for _, m := range domain.AllModalities() {
		assert.Zero(t, f.embedder.callCount(m), m)
	}
	_, err = f.metadata.GetFile(ctx, MediaFileID("/media/clip.mp4"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrchestrator_StatusUnknown(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	_, err := f.orch.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.orch.Cancel(context.Background(), "nope"), domain.ErrNotFound)
}

func TestOrchestrator_Remove(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.start(t)
	ctx := context.Background()

	id, err := f.orch.Submit(ctx, "/media/clip.mp4")
	require.NoError(t, err)
	waitTask(t, f.orch, id)

	require.NoError(t, f.orch.Remove(ctx, "/media/clip.mp4"))
	for _, m := range domain.AllModalities() {
		assert.Equal(t, 0, f.vectors.Count(m.Collection()))
	}
	_, err = f.metadata.GetFile(ctx, MediaFileID("/media/clip.mp4"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, f.orch.Remove(ctx, "/media/clip.mp4"), domain.ErrNotFound)
}

func TestOrchestrator_StopRejectsSubmit(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.start(t)
	require.NoError(t, f.orch.Stop())
	require.NoError(t, f.orch.Stop())

	_, err := f.orch.Submit(context.Background(), "/media/clip.mp4")
	assert.ErrorIs(t, err, domain.ErrOrchestratorStopped)
	assert.ErrorIs(t, f.orch.Start(context.Background()), domain.ErrOrchestratorStopped)
}

func TestOrchestrator_SubmitEmpty(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	_, err := f.orch.Submit(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
