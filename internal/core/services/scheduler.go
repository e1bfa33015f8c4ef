package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure RescanScheduler implements the interface.
var _ driving.Scheduler = (*RescanScheduler)(nil)

// RescanScheduler periodically submits every media file under the watched roots.
// Unchanged files cost one stat each; the orchestrator skips them.
type RescanScheduler struct {
	roots  []string
	spec   string
	ingest driving.IngestionService

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewRescanScheduler creates a scheduler. spec is a five-field cron expression.
func NewRescanScheduler(roots []string, spec string, ingest driving.IngestionService) *RescanScheduler {
	return &RescanScheduler{
		roots:  roots,
		spec:   spec,
		ingest: ingest,
	}
}

// Start runs one rescan, then rescans on schedule. Blocks until Stop is called
// or ctx is cancelled.
func (s *RescanScheduler) Start(ctx context.Context) error {
	schedule, err := cron.ParseStandard(s.spec)
	if err != nil {
		return fmt.Errorf("%w: rescan schedule %q: %w", domain.ErrInvalidInput, s.spec, err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()
	defer close(done)

	c := cron.New()
	c.Schedule(schedule, cron.FuncJob(func() { s.rescan(ctx) }))

	s.rescan(ctx)
	c.Start()
	logger.Info("Rescan scheduled (%s) for %d root(s)", s.spec, len(s.roots))

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-stopCh:
	}
	<-c.Stop().Done()
	return err
}

// Stop shuts down the scheduler and waits for Start to return.
func (s *RescanScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	// Wait for an in-progress rescan to finish.
	<-done
	return nil
}

// Rescan submits every media file under the roots once and returns how many
// were submitted.
func (s *RescanScheduler) Rescan(ctx context.Context) (int, error) {
	files, err := ListMediaFiles(s.roots)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	ids, err := s.ingest.BatchSubmit(ctx, files)
	return len(ids), err
}

func (s *RescanScheduler) rescan(ctx context.Context) {
	n, err := s.Rescan(ctx)
	if err != nil {
		logger.Warn("Rescan failed after %d file(s): %v", n, err)
		return
	}
	logger.Debug("Rescan submitted %d file(s)", n)
}

// ListMediaFiles walks the roots and returns every file with a supported
// extension. Hidden directories are skipped. A root may be a single file.
func ListMediaFiles(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return files, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if domain.IsSupportedURI(root) {
				files = append(files, root)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Debug("Skipping %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if domain.IsSupportedURI(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return files, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return files, nil
}
