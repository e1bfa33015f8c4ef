// Package embedding composes per-modality embedding providers into the single
// driven.EmbeddingProvider the core depends on, and wraps providers with
// query caching and rate limiting.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

// Ensure Router implements the interface.
var _ driven.EmbeddingProvider = (*Router)(nil)

// Router dispatches each Embed call to the provider configured for its modality.
type Router struct {
	providers map[domain.Modality]driven.EmbeddingProvider
}

// NewRouter creates a router. Modalities without a provider fail with
// domain.ErrUnsupportedFileType.
func NewRouter(providers map[domain.Modality]driven.EmbeddingProvider) *Router {
	m := make(map[domain.Modality]driven.EmbeddingProvider, len(providers))
	for k, v := range providers {
		if v != nil {
			m[k] = v
		}
	}
	return &Router{providers: m}
}

// Embed encodes content with the modality's provider.
func (r *Router) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	p, ok := r.providers[modality]
	if !ok {
		return nil, fmt.Errorf("%w: no embedding provider for %s", domain.ErrUnsupportedFileType, modality)
	}
	return p.Embed(ctx, content, modality)
}

// Has reports whether a provider is configured for the modality.
func (r *Router) Has(modality domain.Modality) bool {
	_, ok := r.providers[modality]
	return ok
}

// ModelName lists the configured models as "modality=model" pairs.
func (r *Router) ModelName() string {
	parts := make([]string, 0, len(r.providers))
	for m, p := range r.providers {
		parts = append(parts, string(m)+"="+p.ModelName())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Close closes every distinct provider.
func (r *Router) Close() error {
	seen := make(map[driven.EmbeddingProvider]bool)
	var errs []error
	for _, p := range r.providers {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
