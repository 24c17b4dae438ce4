package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/platform"
)

// SelectMode picks the run mode once at startup. An explicit mode wins;
// otherwise edits select cache editing, a single named file selects the
// verbose single mode and one thread runs without a pool.
func SelectMode(cfg *config.Config, files, edits int) string {
	if cfg.Mode != "" {
		return cfg.Mode
	}
	switch {
	case edits > 0:
		return config.ModeCacheEdit
	case files == 1:
		return config.ModeSingle
	case cfg.Threads <= 1:
		return config.ModeNoIntr
	default:
		return config.ModeThreaded
	}
}

// CollectJobs returns a job for every file in dir with one of the
// platform's formats, in name order. Subfolders and hidden files are skipped.
func CollectJobs(dir string, p *platform.Platform) ([]*game.Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input folder: %w", err)
	}

	var jobs []*game.Job
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if p != nil && !p.HasFormat(name) {
			continue
		}
		jobs = append(jobs, game.NewJob(filepath.Join(dir, name)))
	}
	return jobs, nil
}

// Edit overrides one field of a cached entry.
type Edit struct {
	Name  string // Base filename of the ROM, as used in the cache key
	Field game.TextField
	Value string
}

// ParseEdit parses "file:field=value".
func ParseEdit(s string) (Edit, error) {
	name, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Edit{}, fmt.Errorf("edit %q: expected file:field=value", s)
	}
	fieldName, value, ok := strings.Cut(rest, "=")
	if !ok {
		return Edit{}, fmt.Errorf("edit %q: expected file:field=value", s)
	}
	field, ok := game.ParseTextField(fieldName)
	if !ok {
		return Edit{}, fmt.Errorf("edit %q: unknown field %q", s, fieldName)
	}
	return Edit{Name: filepath.Base(name), Field: field, Value: value}, nil
}
