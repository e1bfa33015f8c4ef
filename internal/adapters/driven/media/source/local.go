// Package source implements driven.MediaSource for local files and s3://
// objects, plus a Resolver that routes a URI to the right one by scheme.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure Local implements the interface.
var _ driven.MediaSource = (*Local)(nil)

// DefaultHashCacheSize is the number of file hashes remembered by Local.
const DefaultHashCacheSize = 4096

type hashEntry struct {
	size    int64
	modTime time.Time
	hash    string
}

// Local reads media from the local filesystem. Content hashes are cached
// per path and recomputed only when size or modification time change, so a
// rescan of an unchanged library does not re-read every file.
type Local struct {
	hashes *lru.Cache[string, hashEntry]
}

// NewLocal creates a local source. cacheSize <= 0 uses DefaultHashCacheSize.
func NewLocal(cacheSize int) *Local {
	if cacheSize <= 0 {
		cacheSize = DefaultHashCacheSize
	}
	// lru.New only fails for a non-positive size.
	hashes, _ := lru.New[string, hashEntry](cacheSize)
	return &Local{hashes: hashes}
}

// LocalPath strips a file:// scheme. Bare paths pass through unchanged.
func LocalPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// Stat returns size, modification time and the sha256 of the content.
func (l *Local) Stat(ctx context.Context, uri string) (*domain.MediaStat, error) {
	path := LocalPath(uri)
	info, err := os.Stat(path)
	if err != nil {
		return nil, statError(path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}

	stat := &domain.MediaStat{Size: info.Size(), ModifiedAt: info.ModTime()}
	if e, ok := l.hashes.Get(path); ok && e.size == stat.Size && e.modTime.Equal(stat.ModifiedAt) {
		stat.ContentHash = e.hash
		return stat, nil
	}

	hash, err := hashFile(ctx, path)
	if err != nil {
		return nil, err
	}
	l.hashes.Add(path, hashEntry{size: stat.Size, modTime: stat.ModifiedAt, hash: hash})
	stat.ContentHash = hash
	return stat, nil
}

// Fetch returns the path itself; release is a no-op.
func (l *Local) Fetch(_ context.Context, uri string) (string, func(), error) {
	path := LocalPath(uri)
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, statError(path, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}
	return path, func() {}, nil
}

func statError(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	return fmt.Errorf("stat %s: %w", path, err)
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func hashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", statError(path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, ctxReader{ctx: ctx, r: f}); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
