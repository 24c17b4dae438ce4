package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/platform"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Platform = "nes"
	cfg.ImportFolder = t.TempDir()
	return cfg
}

func testPlatform(t *testing.T) *platform.Platform {
	t.Helper()
	p, err := platform.Load().Get("nes")
	require.NoError(t, err)
	return p
}

func TestNewFactory_UnknownBackend(t *testing.T) {
	_, err := NewFactory(context.Background(), "screenscraper", Options{Config: testConfig(t)})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewFactory_NoConfig(t *testing.T) {
	_, err := NewFactory(context.Background(), NameImport, Options{})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewFactory_IGDBNeedsCredentials(t *testing.T) {
	_, err := NewFactory(context.Background(), NameIGDB, Options{
		Config:   testConfig(t),
		Platform: testPlatform(t),
	})
	assert.ErrorIs(t, err, ErrCredentials)
}

func TestNewFactory_Kinds(t *testing.T) {
	c, err := cache.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	tests := []struct {
		name      string
		wantKind  Kind
		wantMatch MatchMode
	}{
		{NameESGamelist, LocalExport, MatchOne},
		{NameImport, Offline, MatchOne},
		{NameCache, CacheSource, MatchOne},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := NewFactory(context.Background(), tt.name, Options{Config: testConfig(t), Cache: c})
			require.NoError(t, err)
			b, err := factory()
			require.NoError(t, err)
			assert.Equal(t, tt.name, b.Name())
			assert.Equal(t, tt.wantKind, b.Kind())
			assert.Equal(t, tt.wantMatch, b.MatchMode())
			assert.Equal(t, Unlimited, b.Remaining())
		})
	}
}

func TestQuota(t *testing.T) {
	q := NewQuota(10)
	assert.Equal(t, 10, q.Remaining())
	q.Exhaust()
	assert.Equal(t, 0, q.Remaining())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "networked", Networked.String())
	assert.Equal(t, "cache", CacheSource.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestSourceError(t *testing.T) {
	err := sourceErr(NameIGDB, "search", ErrExhausted)
	assert.Equal(t, "search 'igdb': source exhausted", err.Error())
	assert.True(t, errors.Is(err, ErrExhausted))

	var se *SourceError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &se)
	assert.Equal(t, NameIGDB, se.Source)
	assert.NoError(t, sourceErr(NameIGDB, "search", nil))
}

func TestCacheBackend(t *testing.T) {
	ctx := context.Background()
	c, err := cache.Open(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	rec := &game.Record{Title: "Super Game", Source: NameIGDB, Developer: "Dev"}
	c.Merge(cache.Key{Platform: "nes", Name: "Super Game.nes"}, rec, cache.PolicyMerge, cache.AllMedia)

	b := NewCacheBackend(c, "nes")
	job := game.NewJob("/roms/nes/Super Game.nes")
	assert.Equal(t, []string{"Super Game.nes"}, b.SearchNames(job))

	results, err := b.Search(ctx, "Super Game.nes", "nes")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Super Game", results[0].Title)
	assert.Equal(t, "Dev", results[0].Developer)
	assert.Equal(t, NameIGDB, results[0].Source)
	assert.Equal(t, "nes", results[0].Platform)
	require.NoError(t, b.FetchDetails(ctx, results[0]))

	results, err = b.Search(ctx, "Missing.nes", "nes")
	require.NoError(t, err)
	assert.Empty(t, results)
}
