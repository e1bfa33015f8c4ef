package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// CachedProvider memoises text embeddings. Repeated searches embed the same
// query text into several modalities; binary content is never cached.
type CachedProvider struct {
	next  driven.EmbeddingProvider
	cache *expirable.LRU[string, driven.Embedding]
}

// WithCache wraps p in an expiring LRU cache. A non-positive size or ttl
// returns p unchanged.
func WithCache(p driven.EmbeddingProvider, size int, ttl time.Duration) driven.EmbeddingProvider {
	if p == nil || size <= 0 || ttl <= 0 {
		return p
	}
	return &CachedProvider{
		next:  p,
		cache: expirable.NewLRU[string, driven.Embedding](size, nil, ttl),
	}
}

// Embed returns a cached embedding for text content, or calls through.
func (c *CachedProvider) Embed(ctx context.Context, content driven.Content, modality domain.Modality) (*driven.Embedding, error) {
	if !content.IsText() {
		return c.next.Embed(ctx, content, modality)
	}

	key := cacheKey(c.next.ModelName(), modality, content.Text)
	if cached, ok := c.cache.Get(key); ok {
		logger.Debug("Embedding cache hit (%s)", modality)
		return cloneEmbedding(cached), nil
	}
	emb, err := c.next.Embed(ctx, content, modality)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, *cloneEmbedding(*emb))
	return emb, nil
}

// Len returns the number of cached entries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

// ModelName returns the wrapped provider's model name.
func (c *CachedProvider) ModelName() string {
	return c.next.ModelName()
}

// Close purges the cache and closes the wrapped provider.
func (c *CachedProvider) Close() error {
	c.cache.Purge()
	return c.next.Close()
}

func cacheKey(model string, modality domain.Modality, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + "|" + string(modality) + "|" + hex.EncodeToString(sum[:])
}

func cloneEmbedding(e driven.Embedding) *driven.Embedding {
	out := &driven.Embedding{Transcript: e.Transcript}
	if len(e.Vector) > 0 {
		out.Vector = make([]float32, len(e.Vector))
		copy(out.Vector, e.Vector)
	}
	return out
}
