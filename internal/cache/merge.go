package cache

import (
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/metrics"
)

// Policy selects how an incoming record combines with a cached one.
type Policy int

const (
	// PolicyMerge keeps existing fields unless the incoming value is non-empty.
	PolicyMerge Policy = iota
	// PolicyOverwrite replaces text fields wholesale.
	PolicyOverwrite
)

func (p Policy) String() string {
	if p == PolicyOverwrite {
		return "overwrite"
	}
	return "merge"
}

// MediaFilter reports whether assets of a kind may be written to the cache.
type MediaFilter func(game.AssetKind) bool

// AllMedia accepts every asset kind.
func AllMedia(game.AssetKind) bool { return true }

// Merge folds incoming into the entry for key and returns a copy of the result.
// Assets merge per kind and only for kinds media accepts; a rejected kind
// never changes the cached asset.
func (c *Cache) Merge(key Key, incoming *game.Record, policy Policy, media MediaFilter) *game.Record {
	if media == nil {
		media = AllMedia
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[key]
	if !ok {
		existing = &game.Record{}
	}
	merged := mergeRecords(existing, incoming, policy, media)

	c.entries[key] = merged
	c.touch(key)
	metrics.CacheMerges.WithLabelValues(policy.String()).Inc()
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return merged.Clone()
}

func mergeRecords(existing, incoming *game.Record, policy Policy, media MediaFilter) *game.Record {
	out := existing.Clone()
	if incoming == nil {
		return out
	}

	for _, f := range game.TextFields {
		dst, src := out.Field(f), incoming.Field(f)
		if policy == PolicyOverwrite || *src != "" {
			*dst = *src
		}
	}
	if policy == PolicyOverwrite || incoming.SearchMatch > 0 {
		out.SearchMatch = incoming.SearchMatch
	}
	if incoming.Source != "" || policy == PolicyOverwrite {
		out.Source = incoming.Source
	}

	for _, kind := range game.AssetKinds {
		if !media(kind) {
			continue
		}
		a, has := incoming.Asset(kind)
		switch {
		case has:
			out.SetAsset(kind, append([]byte(nil), a.Data...), a.Format)
		case policy == PolicyOverwrite:
			delete(out.Assets, kind)
		}
	}
	return out
}
