package scraper

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ryanm101/romscraper/internal/frontend"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
)

// videoMinBytes is the smallest video kept from a gamelist. Anything smaller
// is a placeholder.
const videoMinBytes = 4096

// ESGamelist reads an existing EmulationStation gamelist.xml. The parsed
// list is shared read-only between instances.
type ESGamelist struct {
	folder string
	games  map[string]*frontend.GameListGame // keyed by base filename
	opts   Options
}

func newESGamelistFactory(opts Options) (Factory, error) {
	folder := opts.Config.GetGamelistFolder()
	if folder == "" || !fileExists(filepath.Join(folder, frontend.GamelistFile)) {
		folder = opts.Config.GetImportFolder()
	}
	path := filepath.Join(folder, frontend.GamelistFile)

	games := make(map[string]*frontend.GameListGame)
	gl, err := frontend.ReadGameList(path)
	if err != nil {
		// A missing or broken gamelist gives a source with no entries.
		logging.Warn("Could not read gamelist, no entries will match", "path", path, "error", err)
	} else {
		for i := range gl.Games {
			g := &gl.Games[i]
			name := filepath.Base(filepath.FromSlash(g.Path))
			if _, dup := games[name]; !dup {
				games[name] = g
			}
		}
		logging.Debug("loaded gamelist", "path", path, "entries", len(games))
	}

	return func() (Backend, error) {
		return &ESGamelist{folder: folder, games: games, opts: opts}, nil
	}, nil
}

func (b *ESGamelist) Name() string         { return NameESGamelist }
func (b *ESGamelist) Kind() Kind           { return LocalExport }
func (b *ESGamelist) MatchMode() MatchMode { return MatchOne }
func (b *ESGamelist) Remaining() int       { return Unlimited }

// SearchNames returns the job's filename. Gamelist entries are keyed by path.
func (b *ESGamelist) SearchNames(job *game.Job) []string {
	return []string{job.Name}
}

func (b *ESGamelist) Search(_ context.Context, name, platformID string) ([]*game.Record, error) {
	g, ok := b.games[name]
	if !ok {
		return nil, nil
	}
	return []*game.Record{{
		ID:       name,
		Source:   NameESGamelist,
		Title:    g.Name,
		Platform: platformID,
	}}, nil
}

func (b *ESGamelist) FetchDetails(_ context.Context, rec *game.Record) error {
	g, ok := b.games[rec.ID]
	if !ok {
		return nil
	}
	rec.ReleaseDate = frontend.ParseESDate(g.ReleaseDate)
	rec.Publisher = g.Publisher
	rec.Developer = g.Developer
	rec.Players = g.Players
	rec.Rating = g.Rating
	rec.Tags = g.Genre
	rec.Description = g.Description

	b.loadAsset(rec, game.Cover, g.Thumbnail)
	b.loadAsset(rec, game.Screenshot, g.Image)
	b.loadAsset(rec, game.Marquee, g.Marquee)
	b.loadAsset(rec, game.Manual, g.Manual)
	b.loadAsset(rec, game.Video, g.Video)
	return nil
}

// loadAsset reads the referenced file when its kind is enabled. Missing
// files leave the slot empty.
func (b *ESGamelist) loadAsset(rec *game.Record, kind game.AssetKind, ref string) {
	if ref == "" || !b.opts.media(kind) {
		return
	}
	path := b.resolve(ref)
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Debug("gamelist asset unreadable", "kind", kind, "path", path, "error", err)
		return
	}
	if kind == game.Video {
		if len(data) <= videoMinBytes {
			return
		}
		rec.SetAsset(kind, data, assetFormat(path))
		return
	}
	rec.SetAsset(kind, data, "")
}

// resolve finds a referenced file: as given first, then relative to the
// gamelist folder.
func (b *ESGamelist) resolve(ref string) string {
	ref = filepath.FromSlash(ref)
	if filepath.IsAbs(ref) || fileExists(ref) {
		return ref
	}
	return filepath.Join(b.folder, ref)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// assetFormat returns the file suffix without the dot.
func assetFormat(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
