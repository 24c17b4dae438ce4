// Package frontend writes scrape results in formats game frontends read.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
)

// ErrNoEntries is returned when an export has nothing to write.
var ErrNoEntries = errors.New("no entries to export")

// GamelistFile is the name of the EmulationStation metadata file.
const GamelistFile = "gamelist.xml"

// Entry is one exported file and its record.
type Entry struct {
	Path   string // Absolute path of the ROM
	Record *game.Record
}

// Exporter writes entries for a frontend.
type Exporter interface {
	Name() string
	Export(ctx context.Context, entries []Entry, stats game.Stats) error
}

// mediaFolders maps asset kinds to their folder under media/.
var mediaFolders = map[game.AssetKind]string{
	game.Cover:      "covers",
	game.Screenshot: "screenshots",
	game.Marquee:    "marquees",
	game.Video:      "videos",
	game.Manual:     "manuals",
}

// EmulationStation writes gamelist.xml plus media files into OutputFolder.
type EmulationStation struct {
	OutputFolder string
	// MediaFolder is relative to OutputFolder. Defaults to "media".
	MediaFolder string
}

// NewEmulationStation creates an exporter writing to outputFolder.
func NewEmulationStation(outputFolder string) *EmulationStation {
	return &EmulationStation{OutputFolder: outputFolder, MediaFolder: "media"}
}

// Name returns the exporter name.
func (e *EmulationStation) Name() string {
	return "emulationstation"
}

// Export writes media for every entry and a gamelist.xml. Entries already in
// an existing gamelist.xml that this export does not cover are kept.
func (e *EmulationStation) Export(ctx context.Context, entries []Entry, stats game.Stats) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}
	if err := os.MkdirAll(e.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}

	gamelistPath := filepath.Join(e.OutputFolder, GamelistFile)
	written := make(map[string]struct{}, len(entries))
	gl := GameList{Games: make([]GameListGame, 0, len(entries))}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Record == nil {
			continue
		}
		g, err := e.gameFor(entry)
		if err != nil {
			return err
		}
		written[g.Path] = struct{}{}
		gl.Games = append(gl.Games, g)
	}

	if existing, err := ReadGameList(gamelistPath); err == nil {
		for _, g := range existing.Games {
			if _, ok := written[g.Path]; !ok {
				gl.Games = append(gl.Games, g)
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Ignoring unreadable gamelist", "path", gamelistPath, "error", err)
	}

	data, err := gl.Marshal()
	if err != nil {
		return fmt.Errorf("marshal gamelist: %w", err)
	}
	if err := writeFileAtomic(gamelistPath, data); err != nil {
		return fmt.Errorf("write gamelist: %w", err)
	}

	logging.Info("Exported gamelist",
		"path", gamelistPath,
		"games", len(gl.Games),
		"found", stats.Found,
		"not_found", stats.NotFound)
	return nil
}

func (e *EmulationStation) gameFor(entry Entry) (GameListGame, error) {
	rec := entry.Record
	base := strings.TrimSuffix(filepath.Base(entry.Path), filepath.Ext(entry.Path))

	g := GameListGame{
		Path:        e.relPath(entry.Path),
		Name:        rec.Title,
		Description: rec.Description,
		Rating:      rec.Rating,
		ReleaseDate: FormatESDate(rec.ReleaseDate),
		Developer:   rec.Developer,
		Publisher:   rec.Publisher,
		Genre:       rec.Tags,
		Players:     rec.Players,
	}
	if g.Name == "" {
		g.Name = base
	}

	for _, kind := range game.AssetKinds {
		asset, ok := rec.Asset(kind)
		if !ok {
			continue
		}
		rel := filepath.Join(e.MediaFolder, mediaFolders[kind], base+assetExt(kind, asset))
		if err := writeFileAtomic(filepath.Join(e.OutputFolder, rel), asset.Data); err != nil {
			return GameListGame{}, fmt.Errorf("write %s for %s: %w", kind, entry.Path, err)
		}
		ref := "./" + filepath.ToSlash(rel)
		switch kind {
		case game.Cover:
			g.Thumbnail = ref
		case game.Screenshot:
			g.Image = ref
		case game.Marquee:
			g.Marquee = ref
		case game.Video:
			g.Video = ref
		case game.Manual:
			g.Manual = ref
		}
	}
	return g, nil
}

// relPath returns the ROM path relative to the output folder, prefixed with
// "./", or the absolute path when the ROM lives outside it.
func (e *EmulationStation) relPath(path string) string {
	out, err := filepath.Abs(e.OutputFolder)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(out, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "./" + filepath.ToSlash(rel)
}

func assetExt(kind game.AssetKind, a game.Asset) string {
	switch kind {
	case game.Video:
		if a.Format != "" {
			return "." + strings.TrimPrefix(a.Format, ".")
		}
		return ".mp4"
	case game.Manual:
		return ".pdf"
	}
	switch http.DetectContentType(a.Data) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
