package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoises embeddings by exact text. Used on the query path,
// where the same question is often embedded repeatedly.
type CachedProvider struct {
	next  EmbeddingProvider
	cache *cache.Cache
}

func NewCachedProvider(next EmbeddingProvider, ttl time.Duration) *CachedProvider {
	// Purge expired items every 10 minutes
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (p *CachedProvider) Generate(ctx context.Context, text string) (*EmbeddingResponse, error) {
	if x, found := p.cache.Get(text); found {
		return x.(*EmbeddingResponse), nil
	}

	res, err := p.next.Generate(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(text, res, cache.DefaultExpiration)
	return res, nil
}

// Flush drops every cached entry.
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}
