// Package cache stores scraped records per platform and filename. Records are
// held in memory during a run and persisted to SQLite on Flush; asset bytes
// live in content-addressed files next to the database.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/metrics"
)

// ErrNotFound is returned for keys with no cached entry.
var ErrNotFound = errors.New("cache entry not found")

const dbFile = "cache.db"

// Key identifies a cache entry: platform plus the ROM's base filename.
type Key struct {
	Platform string
	Name     string
}

func (k Key) String() string {
	return k.Platform + "/" + k.Name
}

// KeyFor returns the key of a job's file on the given platform.
func KeyFor(platform string, job *game.Job) Key {
	return Key{Platform: platform, Name: job.Name}
}

// Stats summarises cache content.
type Stats struct {
	Entries    int
	Dirty      int
	Assets     map[game.AssetKind]int
	AssetBytes int64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	dir     string
	db      *sql.DB
	entries map[Key]*game.Record
	updated map[Key]time.Time
	dirty   map[Key]struct{}
	deleted map[Key]struct{}
}

// Open opens or creates the cache in dir and loads every entry.
func Open(ctx context.Context, dir string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, assetDir), 0o755); err != nil {
		return nil, fmt.Errorf("create cache folder: %w", err)
	}

	db, err := openDB(filepath.Join(dir, dbFile))
	if err != nil {
		return nil, err
	}

	c := &Cache{
		dir:     dir,
		db:      db,
		entries: make(map[Key]*game.Record),
		updated: make(map[Key]time.Time),
		dirty:   make(map[Key]struct{}),
		deleted: make(map[Key]struct{}),
	}
	if err := c.load(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load cache: %w", err)
	}

	metrics.CacheEntries.Set(float64(len(c.entries)))
	logging.Debug("cache opened", "dir", dir, "entries", len(c.entries))
	return c, nil
}

// Dir returns the cache folder.
func (c *Cache) Dir() string {
	return c.dir
}

// Get returns a copy of the cached record for key.
func (c *Cache) Get(key Key) (*game.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Updated returns when the entry was last changed.
func (c *Cache) Updated(key Key) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.updated[key]
	return t, ok
}

// Keys returns the keys of the platform's entries sorted by name. An empty
// platform returns every key.
func (c *Cache) Keys(platform string) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		if platform == "" || k.Platform == platform {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Platform != keys[j].Platform {
			return keys[i].Platform < keys[j].Platform
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Edit sets one text field of a cached entry.
func (c *Cache) Edit(key Key, field game.TextField, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	p := rec.Field(field)
	if p == nil {
		return fmt.Errorf("unknown field %q", field)
	}
	*p = value
	c.touch(key)
	return nil
}

// Delete removes an entry. The removal is persisted on the next Flush.
func (c *Cache) Delete(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(c.entries, key)
	delete(c.updated, key)
	delete(c.dirty, key)
	c.deleted[key] = struct{}{}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return nil
}

// Stats returns entry and asset counts.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries: len(c.entries),
		Dirty:   len(c.dirty) + len(c.deleted),
		Assets:  make(map[game.AssetKind]int),
	}
	for _, rec := range c.entries {
		for kind, a := range rec.Assets {
			if a.Present() {
				s.Assets[kind]++
				s.AssetBytes += int64(len(a.Data))
			}
		}
	}
	return s
}

// Close releases the database. Unflushed changes are lost.
func (c *Cache) Close() error {
	return c.db.Close()
}

// touch marks key changed; callers hold mu.
func (c *Cache) touch(key Key) {
	c.dirty[key] = struct{}{}
	delete(c.deleted, key)
	c.updated[key] = time.Now().UTC()
}
