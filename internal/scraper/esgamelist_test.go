package scraper

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/romscraper/internal/game"
)

const testGamelist = `<?xml version="1.0"?>
<gameList>
  <game>
    <path>./Foo.rom</path>
    <name>Foo Title</name>
    <desc>A foo game.</desc>
    <thumbnail>./media/foo-cover.png</thumbnail>
    <image>./media/missing.png</image>
    <video>./media/foo.mp4</video>
    <rating>0.7</rating>
    <releasedate>19930315T000000</releasedate>
    <developer>Foo Dev</developer>
    <publisher>Foo Pub</publisher>
    <genre>Puzzle</genre>
    <players>1-2</players>
  </game>
  <game>
    <path>./Small.rom</path>
    <name>Small</name>
    <video>./media/small.mp4</video>
  </game>
</gameList>
`

func writeGamelist(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "media"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gamelist.xml"), []byte(testGamelist), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "media", "foo-cover.png"), []byte("cover"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "media", "foo.mp4"), bytes.Repeat([]byte("v"), videoMinBytes+1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "media", "small.mp4"), []byte("tiny"), 0o644))
}

func newTestESGamelist(t *testing.T) (Backend, string) {
	t.Helper()
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.GamelistFolder = dir
	writeGamelist(t, dir)

	factory, err := newESGamelistFactory(Options{Config: cfg})
	require.NoError(t, err)
	b, err := factory()
	require.NoError(t, err)
	return b, dir
}

func TestESGamelist_Search(t *testing.T) {
	b, _ := newTestESGamelist(t)
	ctx := context.Background()

	tests := []struct {
		file      string
		wantTitle string
	}{
		{"Foo.rom", "Foo Title"},
		{"Bar.rom", ""},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			job := game.NewJob(tt.file)
			names := b.SearchNames(job)
			require.Equal(t, []string{tt.file}, names)

			results, err := b.Search(ctx, names[0], "nes")
			require.NoError(t, err)
			if tt.wantTitle == "" {
				assert.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTitle, results[0].Title)
			assert.Equal(t, NameESGamelist, results[0].Source)
		})
	}
}

func TestESGamelist_FetchDetails(t *testing.T) {
	b, _ := newTestESGamelist(t)
	ctx := context.Background()

	results, err := b.Search(ctx, "Foo.rom", "nes")
	require.NoError(t, err)
	require.Len(t, results, 1)
	rec := results[0]
	require.NoError(t, b.FetchDetails(ctx, rec))

	assert.Equal(t, "1993-03-15", rec.ReleaseDate)
	assert.Equal(t, "Foo Dev", rec.Developer)
	assert.Equal(t, "Foo Pub", rec.Publisher)
	assert.Equal(t, "1-2", rec.Players)
	assert.Equal(t, "0.7", rec.Rating)
	assert.Equal(t, "Puzzle", rec.Tags)
	assert.Equal(t, "A foo game.", rec.Description)

	cover, ok := rec.Asset(game.Cover)
	require.True(t, ok)
	assert.Equal(t, []byte("cover"), cover.Data)

	_, ok = rec.Asset(game.Screenshot)
	assert.False(t, ok, "missing file leaves the slot empty")

	// Videos are disabled by default.
	_, ok = rec.Asset(game.Video)
	assert.False(t, ok)
}

func TestESGamelist_Videos(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.GamelistFolder = dir
	enabled := true
	cfg.Media.Videos = &enabled
	writeGamelist(t, dir)

	factory, err := newESGamelistFactory(Options{Config: cfg})
	require.NoError(t, err)
	b, err := factory()
	require.NoError(t, err)
	ctx := context.Background()

	for name, want := range map[string]bool{"Foo.rom": true, "Small.rom": false} {
		results, err := b.Search(ctx, name, "nes")
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, b.FetchDetails(ctx, results[0]))

		video, ok := results[0].Asset(game.Video)
		assert.Equal(t, want, ok, name)
		if want {
			assert.Equal(t, "mp4", video.Format)
		}
	}
}

func TestESGamelist_FallsBackToImportFolder(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.GetImportFolder()
	writeGamelist(t, dir)

	factory, err := newESGamelistFactory(Options{Config: cfg})
	require.NoError(t, err)
	b, err := factory()
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "Foo.rom", "nes")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestESGamelist_MissingFileHasNoEntries(t *testing.T) {
	factory, err := newESGamelistFactory(Options{Config: testConfig(t)})
	require.NoError(t, err)
	b, err := factory()
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "Foo.rom", "nes")
	require.NoError(t, err)
	assert.Empty(t, results)
}
