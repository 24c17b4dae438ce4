package scraper

import (
	"context"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/game"
)

// CacheBackend reads records back from the local cache. It never touches the
// network, so a run with it only regenerates frontend output.
type CacheBackend struct {
	cache    *cache.Cache
	platform string
}

// NewCacheBackend creates a cache source for platform.
func NewCacheBackend(c *cache.Cache, platform string) *CacheBackend {
	return &CacheBackend{cache: c, platform: platform}
}

func (b *CacheBackend) Name() string         { return NameCache }
func (b *CacheBackend) Kind() Kind           { return CacheSource }
func (b *CacheBackend) MatchMode() MatchMode { return MatchOne }
func (b *CacheBackend) Remaining() int       { return Unlimited }

// SearchNames returns the job's filename, which is the cache key.
func (b *CacheBackend) SearchNames(job *game.Job) []string {
	return []string{job.Name}
}

func (b *CacheBackend) Search(_ context.Context, name, platformID string) ([]*game.Record, error) {
	rec, ok := b.cache.Get(cache.Key{Platform: b.platform, Name: name})
	if !ok {
		return nil, nil
	}
	if rec.Platform == "" {
		rec.Platform = platformID
	}
	if rec.Source == "" {
		rec.Source = NameCache
	}
	return []*game.Record{rec}, nil
}

// FetchDetails is a no-op; cached records are already complete.
func (b *CacheBackend) FetchDetails(context.Context, *game.Record) error {
	return nil
}
