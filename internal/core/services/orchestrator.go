package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure IngestionOrchestrator implements the interface.
var _ driving.IngestionService = (*IngestionOrchestrator)(nil)

// CanonicalURI normalises a URI so the same file always maps to the same id.
// Local paths are made absolute; URIs with a scheme are kept as given.
func CanonicalURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if strings.Contains(uri, "://") {
		return uri
	}
	uri = strings.TrimPrefix(uri, "file:")
	if abs, err := filepath.Abs(uri); err == nil {
		return abs
	}
	return filepath.Clean(uri)
}

// MediaFileID derives the stable file id of a canonical URI.
func MediaFileID(uri string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(uri)).String()
}

// taskRecord is the orchestrator-owned state of one task.
// The worker running the task is the only writer besides Cancel.
type taskRecord struct {
	mu              sync.Mutex
	task            domain.ProcessingTask
	stat            *domain.MediaStat
	cancelRequested bool
	abort           context.CancelFunc

	// Worker-owned; never touched by other goroutines.
	file      *domain.MediaFile
	localPath string
	release   func()
	segments  []domain.Segment
	upserted  map[domain.Modality][]string

	done     chan struct{}
	doneOnce sync.Once
}

func (r *taskRecord) snapshot() *domain.ProcessingTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.task
	if r.task.Error != nil {
		e := *r.task.Error
		t.Error = &e
	}
	return &t
}

func (r *taskRecord) isCancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelRequested
}

// IngestionOrchestrator drives every task through the ingestion state machine
// on a fixed pool of workers.
type IngestionOrchestrator struct {
	source    driven.MediaSource
	segmenter driving.Segmenter
	decoder   driven.MediaDecoder
	embedder  driven.EmbeddingProvider
	vectors   driven.VectorStore
	metadata  driven.MetadataStore
	cfg       domain.OrchestratorSettings
	retry     domain.RetryPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// tasks maps task id to *taskRecord.
	tasks sync.Map

	// inflight maps file id to the id of its non-terminal task.
	inflightMu sync.Mutex
	inflight   map[string]string

	queue chan *taskRecord

	lifecycleMu sync.Mutex
	baseCtx     context.Context
	stopWorkers context.CancelFunc
	started     bool
	stopped     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewIngestionOrchestrator creates an orchestrator. Call Start before submitting.
func NewIngestionOrchestrator(
	source driven.MediaSource,
	segmenter driving.Segmenter,
	decoder driven.MediaDecoder,
	embedder driven.EmbeddingProvider,
	vectors driven.VectorStore,
	metadata driven.MetadataStore,
	cfg domain.OrchestratorSettings,
	retry domain.RetryPolicy,
) *IngestionOrchestrator {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.SegmentConcurrency < 1 {
		cfg.SegmentConcurrency = 1
	}
	return &IngestionOrchestrator{
		source:    source,
		segmenter: segmenter,
		decoder:   decoder,
		embedder:  embedder,
		vectors:   vectors,
		metadata:  metadata,
		cfg:       cfg,
		retry:     retry,
		now:       time.Now,
		sleep:     sleepCtx,
		inflight:  make(map[string]string),
		queue:     make(chan *taskRecord, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start launches the worker pool.
func (o *IngestionOrchestrator) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	if o.stopped {
		return domain.ErrOrchestratorStopped
	}
	if o.started {
		return nil
	}
	o.started = true
	o.baseCtx, o.stopWorkers = context.WithCancel(context.WithoutCancel(ctx))

	logger.Info("Starting %d ingestion workers (queue %d)", o.cfg.MaxWorkers, o.cfg.QueueSize)
	for i := 0; i < o.cfg.MaxWorkers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return nil
}

// Stop stops accepting work and waits for running tasks. Queued tasks are cancelled.
func (o *IngestionOrchestrator) Stop() error {
	o.lifecycleMu.Lock()
	if o.stopped {
		o.lifecycleMu.Unlock()
		return nil
	}
	o.stopped = true
	close(o.stopCh)
	o.lifecycleMu.Unlock()

	o.wg.Wait()
	if o.stopWorkers != nil {
		o.stopWorkers()
	}

	for {
		select {
		case rec := <-o.queue:
			o.cancelQueued(rec)
		default:
			return nil
		}
	}
}

func (o *IngestionOrchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case rec := <-o.queue:
			select {
			case <-o.stopCh:
				o.cancelQueued(rec)
				return
			default:
			}
			o.process(rec)
		}
	}
}

// Submit enqueues a file for ingestion.
func (o *IngestionOrchestrator) Submit(ctx context.Context, uri string) (string, error) {
	if o.isStopped() {
		return "", domain.ErrOrchestratorStopped
	}
	if strings.TrimSpace(uri) == "" {
		return "", fmt.Errorf("%w: empty uri", domain.ErrInvalidInput)
	}
	uri = CanonicalURI(uri)
	fileID := MediaFileID(uri)

	if id, ok := o.inflightTask(fileID); ok {
		logger.Debug("Submit %s: already in flight as %s", uri, id)
		return id, nil
	}

	// Stat is best effort here; a failure is surfaced by the task itself.
	var stat *domain.MediaStat
	if domain.IsSupportedURI(uri) {
		s, err := o.source.Stat(ctx, uri)
		if err != nil {
			logger.Debug("Submit %s: stat failed: %v", uri, err)
		} else {
			stat = s
			if id, ok := o.unchangedTask(ctx, fileID, s); ok {
				logger.Debug("Submit %s: unchanged since task %s", uri, id)
				return id, nil
			}
		}
	}

	rec := &taskRecord{
		task: domain.ProcessingTask{
			ID:        uuid.New().String(),
			FileID:    fileID,
			URI:       uri,
			State:     domain.TaskPending,
			CreatedAt: o.now(),
		},
		stat: stat,
		done: make(chan struct{}),
	}

	o.inflightMu.Lock()
	if id, ok := o.inflight[fileID]; ok {
		o.inflightMu.Unlock()
		return id, nil
	}
	// A task for this file may have committed and released since the
	// check above; release happens after commit, so this read sees it.
	if stat != nil {
		if id, ok := o.unchangedTask(ctx, fileID, stat); ok {
			o.inflightMu.Unlock()
			logger.Debug("Submit %s: committed meanwhile as %s", uri, id)
			return id, nil
		}
	}
	o.inflight[fileID] = rec.task.ID
	o.tasks.Store(rec.task.ID, rec)
	o.inflightMu.Unlock()

	o.persist(rec.snapshot())
	logger.With(zap.String("task_id", rec.task.ID), zap.String("uri", uri)).Debug("task submitted")

	select {
	case o.queue <- rec:
		return rec.task.ID, nil
	case <-o.stopCh:
		o.cancelQueued(rec)
		return "", domain.ErrOrchestratorStopped
	case <-ctx.Done():
		o.cancelQueued(rec)
		return "", ctx.Err()
	}
}

// BatchSubmit submits each URI in order. A failing file never aborts its siblings;
// only orchestrator shutdown or ctx cancellation stops the batch.
func (o *IngestionOrchestrator) BatchSubmit(ctx context.Context, uris []string) ([]string, error) {
	ids := make([]string, 0, len(uris))
	for _, uri := range uris {
		id, err := o.Submit(ctx, uri)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				logger.Warn("Skipping %q: %v", uri, err)
				ids = append(ids, "")
				continue
			}
			return ids, fmt.Errorf("submit %s: %w", uri, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Status returns a snapshot of a task.
func (o *IngestionOrchestrator) Status(ctx context.Context, taskID string) (*domain.ProcessingTask, error) {
	if rec, ok := o.record(taskID); ok {
		return rec.snapshot(), nil
	}
	task, err := o.metadata.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return task, nil
}

// Cancel cancels a task. Tasks that have not produced vectors yet stop at once;
// later phases stop cooperatively before committing.
func (o *IngestionOrchestrator) Cancel(ctx context.Context, taskID string) error {
	rec, ok := o.record(taskID)
	if !ok {
		task, err := o.metadata.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("get task %s: %w", taskID, err)
		}
		if task.State.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTaskTerminal, taskID, task.State)
		}
		return fmt.Errorf("%w: task %s is not owned by this process", domain.ErrNotFound, taskID)
	}

	rec.mu.Lock()
	state := rec.task.State
	if state.IsTerminal() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", domain.ErrTaskTerminal, taskID, state)
	}
	if !state.CancelImmediately() {
		rec.cancelRequested = true
		rec.mu.Unlock()
		logger.Info("Cancel requested for task %s in %s", taskID, state)
		return nil
	}
	if err := rec.task.Transition(domain.TaskCancelled, o.now()); err != nil {
		rec.mu.Unlock()
		return err
	}
	abort := rec.abort
	snap := rec.task
	rec.mu.Unlock()

	if abort != nil {
		abort()
	}
	o.persist(&snap)
	o.release(rec)
	logger.Info("Task %s cancelled in %s", taskID, state)
	return nil
}

// Wait blocks until the task is terminal.
func (o *IngestionOrchestrator) Wait(ctx context.Context, taskID string) (*domain.ProcessingTask, error) {
	rec, ok := o.record(taskID)
	if !ok {
		return o.Status(ctx, taskID)
	}
	select {
	case <-rec.done:
		return rec.snapshot(), nil
	case <-ctx.Done():
		return rec.snapshot(), ctx.Err()
	}
}

// Remove drops a file from the index, cancelling its in-flight task first.
func (o *IngestionOrchestrator) Remove(ctx context.Context, uri string) error {
	uri = CanonicalURI(uri)
	fileID := MediaFileID(uri)

	if id, ok := o.inflightTask(fileID); ok {
		if err := o.Cancel(ctx, id); err != nil && !errors.Is(err, domain.ErrTaskTerminal) {
			logger.Warn("Remove %s: cancel %s: %v", uri, id, err)
		}
	}

	removed, err := o.metadata.DeleteFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", uri, err)
	}
	if err := o.deleteVectors(ctx, segmentIDsByModality(removed)); err != nil {
		return fmt.Errorf("delete vectors of %s: %w", uri, err)
	}
	logger.Info("Removed %s (%d segments)", uri, len(removed))
	return nil
}

func (o *IngestionOrchestrator) isStopped() bool {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	return o.stopped
}

func (o *IngestionOrchestrator) record(taskID string) (*taskRecord, bool) {
	v, ok := o.tasks.Load(taskID)
	if !ok {
		return nil, false
	}
	return v.(*taskRecord), true
}

func (o *IngestionOrchestrator) inflightTask(fileID string) (string, bool) {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	id, ok := o.inflight[fileID]
	return id, ok
}

// unchangedTask returns the last completed task of a file whose content hash
// still matches.
func (o *IngestionOrchestrator) unchangedTask(ctx context.Context, fileID string, stat *domain.MediaStat) (string, bool) {
	if stat.ContentHash == "" {
		return "", false
	}
	file, err := o.metadata.GetFile(ctx, fileID)
	if err != nil {
		return "", false
	}
	if file.LastTaskID == "" || file.ContentHash != stat.ContentHash {
		return "", false
	}
	return file.LastTaskID, true
}

// release frees the file for new submissions and wakes waiters. Safe to call twice.
func (o *IngestionOrchestrator) release(rec *taskRecord) {
	rec.doneOnce.Do(func() {
		o.inflightMu.Lock()
		if o.inflight[rec.task.FileID] == rec.task.ID {
			delete(o.inflight, rec.task.FileID)
		}
		o.inflightMu.Unlock()
		close(rec.done)
	})
}

func (o *IngestionOrchestrator) cancelQueued(rec *taskRecord) {
	rec.mu.Lock()
	err := rec.task.Transition(domain.TaskCancelled, o.now())
	snap := rec.task
	rec.mu.Unlock()
	if err == nil {
		o.persist(&snap)
	}
	o.release(rec)
}

// persist writes a task snapshot. Snapshot failures never fail the task.
func (o *IngestionOrchestrator) persist(task *domain.ProcessingTask) {
	ctx, cancel := context.WithTimeout(context.Background(), o.storeTimeout())
	defer cancel()
	if err := o.metadata.SaveTask(ctx, task); err != nil {
		logger.Warn("Save task %s snapshot: %v", task.ID, err)
	}
}

func (o *IngestionOrchestrator) storeTimeout() time.Duration {
	if o.cfg.StoreTimeout > 0 {
		return o.cfg.StoreTimeout
	}
	return 15 * time.Second
}

func (o *IngestionOrchestrator) embedTimeout() time.Duration {
	if o.cfg.EmbedTimeout > 0 {
		return o.cfg.EmbedTimeout
	}
	return 30 * time.Second
}

// advance applies a transition unless the task was finished concurrently
// (e.g. cancelled). It returns false when the worker must stop.
func (o *IngestionOrchestrator) advance(rec *taskRecord, to domain.TaskState) bool {
	rec.mu.Lock()
	from := rec.task.State
	if err := rec.task.Transition(to, o.now()); err != nil {
		rec.mu.Unlock()
		if !errors.Is(err, domain.ErrTaskTerminal) {
			logger.Error("Task %s: %v", rec.task.ID, err)
		}
		return false
	}
	if to == domain.TaskRouting {
		rec.task.StartedAt = o.now()
	}
	snap := rec.task
	rec.mu.Unlock()

	o.persist(&snap)
	logger.With(zap.String("task_id", snap.ID), zap.String("file_id", snap.FileID)).
		Debug("task state", zap.String("from", string(from)), zap.String("to", string(to)))
	return true
}

func (o *IngestionOrchestrator) setProgress(rec *taskRecord, p float64) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.task.State.IsTerminal() {
		rec.task.Progress = p
	}
}

// process runs one task to a terminal state.
func (o *IngestionOrchestrator) process(rec *taskRecord) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	defer cancel()

	rec.mu.Lock()
	rec.abort = cancel
	rec.mu.Unlock()

	defer func() {
		if rec.release != nil {
			rec.release()
		}
		o.release(rec)
	}()

	state := domain.TaskRouting
	for !state.IsTerminal() {
		if !o.advance(rec, state) {
			return
		}
		next, err := o.runPhase(ctx, rec, state)
		if err != nil {
			o.fail(rec, err)
			return
		}
		state = next
	}
	if o.advance(rec, state) {
		snap := rec.snapshot()
		logger.Info("Task %s %s: %s (%d segments, %d failed)",
			snap.ID, snap.State, snap.URI, snap.TotalSegments, snap.FailedSegments)
	}
}

func (o *IngestionOrchestrator) runPhase(
	ctx context.Context, rec *taskRecord, state domain.TaskState,
) (domain.TaskState, error) {
	switch state {
	case domain.TaskRouting:
		return o.route(ctx, rec)
	case domain.TaskPreprocessing:
		return o.preprocess(ctx, rec)
	case domain.TaskVectorizing:
		return o.vectorize(ctx, rec)
	case domain.TaskStoring:
		return o.store(ctx, rec)
	default:
		return "", fmt.Errorf("%w: no handler for %s", domain.ErrIllegalTransition, state)
	}
}

func (o *IngestionOrchestrator) fail(rec *taskRecord, cause error) {
	o.discardUpserted(rec)

	rec.mu.Lock()
	var err error
	if errors.Is(cause, context.Canceled) && rec.cancelRequested {
		err = rec.task.Transition(domain.TaskCancelled, o.now())
	} else {
		err = rec.task.Fail(cause, o.now())
	}
	snap := rec.task
	rec.mu.Unlock()
	if err != nil {
		// Already terminal: cancelled while the phase was running.
		return
	}

	o.persist(&snap)
	if snap.State == domain.TaskFailed {
		logger.Error("Task %s failed on %s: %v", snap.ID, snap.URI, snap.Error)
	}
}

// route picks the strategy from the extension alone.
func (o *IngestionOrchestrator) route(ctx context.Context, rec *taskRecord) (domain.TaskState, error) {
	uri := rec.task.URI
	kind := domain.KindFromURI(uri)
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, filepath.Ext(uri))
	}

	file, err := o.metadata.GetFile(ctx, rec.task.FileID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		file = &domain.MediaFile{ID: rec.task.FileID, CreatedAt: o.now()}
	case err != nil:
		return "", fmt.Errorf("load file: %w", storageErr(err))
	}
	file.URI = uri
	file.Kind = kind

	if rec.stat != nil {
		file.ContentHash = rec.stat.ContentHash
		file.Size = rec.stat.Size
		file.ModifiedAt = rec.stat.ModifiedAt
	}
	rec.file = file
	o.setProgress(rec, 0.05)
	return domain.TaskPreprocessing, nil
}

// preprocess fetches the content and segments it.
func (o *IngestionOrchestrator) preprocess(ctx context.Context, rec *taskRecord) (domain.TaskState, error) {
	path, release, err := o.source.Fetch(ctx, rec.task.URI)
	if err != nil {
		if domain.IsTransient(err) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("fetch: %w", err)
		}
		return "", fmt.Errorf("fetch: %w: %w", domain.ErrFileCorrupted, err)
	}
	rec.localPath, rec.release = path, release

	if rec.stat == nil {
		if stat, err := o.source.Stat(ctx, rec.task.URI); err == nil {
			rec.file.ContentHash = stat.ContentHash
			rec.file.Size = stat.Size
			rec.file.ModifiedAt = stat.ModifiedAt
		}
	}

	segments, err := o.segmenter.Segment(ctx, rec.file, path)
	if err != nil {
		return "", err
	}
	for i := range segments {
		segments[i].FileID = rec.file.ID
		segments[i].TaskID = rec.task.ID
	}
	rec.segments = segments

	rec.mu.Lock()
	rec.task.TotalSegments = len(segments)
	rec.task.Progress = 0.1
	rec.mu.Unlock()
	return domain.TaskVectorizing, nil
}

// vectorize embeds every segment with bounded parallelism. Failed segments are
// skipped; the task fails only when too many fail.
func (o *IngestionOrchestrator) vectorize(ctx context.Context, rec *taskRecord) (domain.TaskState, error) {
	total := len(rec.segments)
	results := make([]error, total)
	var finished atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SegmentConcurrency)
	for i := range rec.segments {
		g.Go(func() error {
			if rec.isCancelRequested() {
				return nil
			}
			results[i] = o.embedSegment(gctx, rec, &rec.segments[i])
			n := finished.Add(1)
			o.setProgress(rec, 0.1+0.8*float64(n)/float64(total))
			return nil
		})
	}
	_ = g.Wait()

	if rec.isCancelRequested() {
		return domain.TaskCancelled, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	kept := make([]domain.Segment, 0, total)
	failed := 0
	var lastErr error
	for i, err := range results {
		switch {
		case err == nil:
			kept = append(kept, rec.segments[i])
		case errors.Is(err, domain.ErrNoFace), errors.Is(err, domain.ErrNoSpeech):
			// Not every keyframe shows a face, nor every window carries speech.
		default:
			failed++
			lastErr = err
			logger.Warn("Task %s: segment %s (%s) skipped: %v",
				rec.task.ID, rec.segments[i].ID, rec.segments[i].Modality, err)
		}
	}

	rec.mu.Lock()
	rec.task.FailedSegments = failed
	rec.mu.Unlock()

	if total > 0 && float64(failed)/float64(total) > o.cfg.MaxFailedSegmentRatio {
		return "", fmt.Errorf("%d of %d segments failed: %w", failed, total, lastErr)
	}
	rec.segments = kept
	return domain.TaskStoring, nil
}

// embedSegment extracts the segment's content and embeds it, retrying transient errors.
func (o *IngestionOrchestrator) embedSegment(ctx context.Context, rec *taskRecord, seg *domain.Segment) error {
	content, err := o.segmentContent(ctx, rec, seg)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.embedTimeout())
		emb, err := o.embedder.Embed(callCtx, content, seg.Modality)
		cancel()
		if err == nil {
			seg.Embedding = emb.Vector
			seg.Transcript = emb.Transcript
			seg.VectorRef = seg.Modality.Collection() + "/" + seg.ID
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !o.retry.ShouldRetry(err, attempt) {
			return fmt.Errorf("embed %s: %w", seg.Modality, err)
		}
		if err := o.sleep(ctx, o.retry.Backoff(attempt)); err != nil {
			return err
		}
	}
}

func (o *IngestionOrchestrator) segmentContent(
	ctx context.Context, rec *taskRecord, seg *domain.Segment,
) (driven.Content, error) {
	switch seg.Modality {
	case domain.ModalityVisual, domain.ModalityFace:
		var atMs int64
		if seg.FrameIndex != nil && !seg.WholeFile {
			atMs = domain.FrameTimestampMs(*seg.FrameIndex, rec.file.FPS)
		}
		png, err := o.decoder.ExtractFrame(ctx, rec.localPath, atMs)
		if err != nil {
			return driven.Content{}, corrupted("extract frame", err)
		}
		return driven.Content{Data: png, MIMEType: "image/png"}, nil
	default:
		wav, err := o.decoder.ExtractAudio(ctx, rec.localPath, seg.StartMs, seg.EndMs)
		if err != nil {
			return driven.Content{}, corrupted("extract audio", err)
		}
		return driven.Content{Data: wav, MIMEType: "audio/wav"}, nil
	}
}

// store writes vectors, then commits metadata. A failed write retries the
// phase as a STORING self-transition.
func (o *IngestionOrchestrator) store(ctx context.Context, rec *taskRecord) (domain.TaskState, error) {
	if rec.isCancelRequested() {
		o.discardUpserted(rec)
		return domain.TaskCancelled, nil
	}

	if err := o.upsertVectors(ctx, rec); err != nil {
		return o.retryStoring(ctx, rec, err)
	}

	if rec.isCancelRequested() {
		o.discardUpserted(rec)
		return domain.TaskCancelled, nil
	}

	rec.file.UpdatedAt = o.now()
	commitCtx, cancel := context.WithTimeout(ctx, o.storeTimeout())
	previous, err := o.metadata.CommitIndex(commitCtx, rec.file, rec.task.ID, rec.segments)
	cancel()
	if err != nil {
		return o.retryStoring(ctx, rec, storageErr(err))
	}
	rec.upserted = nil

	if err := o.deleteVectors(ctx, segmentIDsByModality(previous)); err != nil {
		logger.Warn("Task %s: delete superseded vectors: %v", rec.task.ID, err)
	}
	return domain.TaskCompleted, nil
}

func (o *IngestionOrchestrator) retryStoring(ctx context.Context, rec *taskRecord, err error) (domain.TaskState, error) {
	rec.mu.Lock()
	attempt := rec.task.RetryCount + 1
	rec.mu.Unlock()

	if !o.retry.ShouldRetry(err, attempt) {
		return "", fmt.Errorf("store: %w", err)
	}
	logger.Warn("Task %s: store attempt %d failed, retrying: %v", rec.task.ID, attempt, err)
	if err := o.sleep(ctx, o.retry.Backoff(attempt)); err != nil {
		return "", err
	}

	rec.mu.Lock()
	rec.task.RetryCount = attempt
	rec.mu.Unlock()
	return domain.TaskStoring, nil
}

func (o *IngestionOrchestrator) upsertVectors(ctx context.Context, rec *taskRecord) error {
	byModality := make(map[domain.Modality][]driven.VectorRecord)
	for _, seg := range rec.segments {
		byModality[seg.Modality] = append(byModality[seg.Modality], driven.VectorRecord{
			ID:      seg.ID,
			FileID:  seg.FileID,
			TaskID:  seg.TaskID,
			StartMs: seg.StartMs,
			EndMs:   seg.EndMs,
			Vector:  seg.Embedding,
		})
	}

	if rec.upserted == nil {
		rec.upserted = make(map[domain.Modality][]string)
	}
	for _, m := range domain.AllModalities() {
		records := byModality[m]
		if len(records) == 0 {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, o.storeTimeout())
		err := o.vectors.Upsert(callCtx, m.Collection(), records)
		cancel()
		if err != nil {
			return fmt.Errorf("upsert %s: %w", m.Collection(), storageErr(err))
		}
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		rec.upserted[m] = ids
	}
	return nil
}

// discardUpserted removes vectors written by a task that will not commit.
func (o *IngestionOrchestrator) discardUpserted(rec *taskRecord) {
	if len(rec.upserted) == 0 {
		return
	}
	if err := o.deleteVectors(context.Background(), rec.upserted); err != nil {
		logger.Warn("Task %s: discard uncommitted vectors: %v", rec.task.ID, err)
	}
	rec.upserted = nil
}

func (o *IngestionOrchestrator) deleteVectors(ctx context.Context, ids map[domain.Modality][]string) error {
	var errs []error
	for m, list := range ids {
		if len(list) == 0 {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, o.storeTimeout())
		if err := o.vectors.Delete(callCtx, m.Collection(), list); err != nil {
			errs = append(errs, fmt.Errorf("delete from %s: %w", m.Collection(), err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

func segmentIDsByModality(segments []domain.Segment) map[domain.Modality][]string {
	out := make(map[domain.Modality][]string)
	for _, s := range segments {
		out[s.Modality] = append(out[s.Modality], s.ID)
	}
	return out
}

// storageErr tags unclassified store failures and store-call timeouts as
// StorageUnavailable so they are retried and reported against the store.
func storageErr(err error) error {
	if domain.Classify(err) == domain.ErrorKindInternal || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return err
}
