// Package watch turns filesystem events under watched roots into ingestion
// calls: new or modified media files are submitted, deleted ones removed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// DefaultDebounce is how long a file must be quiet before it is submitted.
// Copying a large video emits many write events. Only one burst is coalesced;
// every quiet file is submitted again and Submit decides whether it is new.
const DefaultDebounce = 500 * time.Millisecond

// ChangeType is the kind of change derived from a filesystem event.
type ChangeType int

// Change types.
const (
	ChangeUpsert ChangeType = iota + 1
	ChangeRemove
)

// Change is a media file that was created, modified or deleted.
type Change struct {
	Type ChangeType
	Path string
}

// Watcher watches directory trees and feeds an IngestionService.
type Watcher struct {
	roots    []string
	ingest   driving.IngestionService
	debounce time.Duration

	mu      sync.Mutex
	fw      *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	started bool
}

// New creates a watcher. debounce <= 0 uses DefaultDebounce.
func New(roots []string, ingest driving.IngestionService, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{roots: roots, ingest: ingest, debounce: debounce}
}

// Start adds watches for every directory under the roots and begins
// processing events in the background. It returns once the watches exist.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("watcher is closed")
	}
	if w.started {
		return nil // Already running
	}
	if len(w.roots) == 0 {
		return fmt.Errorf("%w: no paths to watch", domain.ErrInvalidInput)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil {
			fw.Close()
			return fmt.Errorf("root path error: %w", err)
		}
		if !info.IsDir() {
			fw.Close()
			return fmt.Errorf("root path error: %s is not a directory", root)
		}
		if _, err := addTree(fw, root); err != nil {
			fw.Close()
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fw = fw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true
	go w.loop(ctx, fw, w.done)

	logger.Info("Watching %d root(s) for media changes", len(w.roots))
	return nil
}

// Close stops the watcher and waits for the event loop to exit. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel, done, fw := w.cancel, w.done, w.fw
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return fw.Close()
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	pending := make(map[string]*time.Timer)
	ready := make(chan string, 64)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			for _, c := range w.handleFsEvent(fw, ev) {
				switch c.Type {
				case ChangeUpsert:
					if t, ok := pending[c.Path]; ok {
						t.Reset(w.debounce)
						continue
					}
					path := c.Path
					pending[path] = time.AfterFunc(w.debounce, func() {
						select {
						case ready <- path:
						case <-ctx.Done():
						}
					})
				case ChangeRemove:
					if t, ok := pending[c.Path]; ok {
						t.Stop()
						delete(pending, c.Path)
					}
					w.remove(ctx, c.Path)
				}
			}

		case path := <-ready:
			delete(pending, path)
			w.submit(ctx, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) submit(ctx context.Context, path string) {
	id, err := w.ingest.Submit(ctx, path)
	if err != nil {
		logger.Warn("Watch: submit %s failed: %v", path, err)
		return
	}
	logger.Debug("Watch: submitted %s as task %s", path, id)
}

func (w *Watcher) remove(ctx context.Context, path string) {
	err := w.ingest.Remove(ctx, path)
	switch {
	case err == nil:
		logger.Debug("Watch: removed %s", path)
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("Watch: %s was not indexed", path)
	default:
		logger.Warn("Watch: remove %s failed: %v", path, err)
	}
}

// handleFsEvent converts a filesystem event into changes. A new directory
// is watched and every media file already inside it is reported.
func (w *Watcher) handleFsEvent(fw *fsnotify.Watcher, ev fsnotify.Event) []Change {
	if w.hiddenUnderRoot(ev.Name) {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return nil // gone again before we looked
		}
		if info.IsDir() {
			if !ev.Has(fsnotify.Create) || fw == nil {
				return nil
			}
			files, err := addTree(fw, ev.Name)
			if err != nil {
				logger.Warn("Watch: cannot watch %s: %v", ev.Name, err)
			}
			changes := make([]Change, 0, len(files))
			for _, f := range files {
				changes = append(changes, Change{Type: ChangeUpsert, Path: f})
			}
			return changes
		}
		if !domain.IsSupportedURI(ev.Name) {
			return nil
		}
		return []Change{{Type: ChangeUpsert, Path: ev.Name}}

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if !domain.IsSupportedURI(ev.Name) {
			return nil
		}
		return []Change{{Type: ChangeRemove, Path: ev.Name}}
	}
	return nil
}

// addTree watches root and every non-hidden directory below it, returning
// the supported media files found on the way.
func addTree(fw *fsnotify.Watcher, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Debug("Skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return fw.Add(path)
		}
		if domain.IsSupportedURI(path) && !isHidden(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// hiddenUnderRoot applies isHidden to the part of path below its watched
// root, so a root inside a dot-directory still works.
func (w *Watcher) hiddenUnderRoot(path string) bool {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return isHidden(rel)
		}
	}
	return isHidden(path)
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
