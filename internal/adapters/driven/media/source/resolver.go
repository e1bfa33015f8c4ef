package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure Resolver implements the interface.
var _ driven.MediaSource = (*Resolver)(nil)

// Resolver dispatches to a media source by URI scheme. URIs without a
// scheme, and file:// URIs, go to the "file" source.
type Resolver struct {
	sources map[string]driven.MediaSource
}

// NewResolver creates a resolver from scheme -> source.
func NewResolver(sources map[string]driven.MediaSource) *Resolver {
	r := &Resolver{sources: make(map[string]driven.MediaSource, len(sources))}
	for scheme, s := range sources {
		if s != nil {
			r.sources[strings.ToLower(scheme)] = s
		}
	}
	return r
}

// NewDefaultResolver serves local files and s3:// objects.
func NewDefaultResolver(s3Region string) *Resolver {
	return NewResolver(map[string]driven.MediaSource{
		"file": NewLocal(0),
		"s3":   NewS3(s3Region),
	})
}

// Scheme returns the lower-case scheme of uri, or "file" when it has none.
func Scheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return "file"
	}
	return strings.ToLower(scheme)
}

func (r *Resolver) source(uri string) (driven.MediaSource, error) {
	scheme := Scheme(uri)
	s, ok := r.sources[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no media source for scheme %q", domain.ErrUnsupportedFileType, scheme)
	}
	return s, nil
}

// Stat delegates to the source for uri's scheme.
func (r *Resolver) Stat(ctx context.Context, uri string) (*domain.MediaStat, error) {
	s, err := r.source(uri)
	if err != nil {
		return nil, err
	}
	return s.Stat(ctx, uri)
}

// Fetch delegates to the source for uri's scheme.
func (r *Resolver) Fetch(ctx context.Context, uri string) (string, func(), error) {
	s, err := r.source(uri)
	if err != nil {
		return "", nil, err
	}
	return s.Fetch(ctx, uri)
}
