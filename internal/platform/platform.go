// Package platform holds the lookup table of supported platforms: display
// names, aliases used for platform equivalence, file formats and per-source ids.
package platform

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed platforms.yaml
var defaultsFS embed.FS

// ErrUnknown is returned for platform ids missing from the table.
var ErrUnknown = errors.New("unknown platform")

// Platform describes one platform.
type Platform struct {
	ID       string   `yaml:"-"`
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Formats  []string `yaml:"formats"`
	Scrapers []string `yaml:"scrapers"`
	IGDB     []int    `yaml:"igdb"`
}

// Table is the full platform lookup table.
type Table struct {
	DefaultScraper string               `yaml:"default_scraper"`
	Platforms      map[string]*Platform `yaml:"platforms"`
}

var (
	cachedTable     *Table
	cachedTableOnce sync.Once
)

// Load returns the platform table: embedded defaults with any user-defined
// platforms.yaml merged on top. It searches ROMSCRAPER_PLATFORMS_FILE, the
// current directory and ~/.config/romscraper/.
func Load() *Table {
	cachedTableOnce.Do(func() {
		cachedTable = loadEmbeddedDefaults()
		for _, path := range overridePaths() {
			if t, err := LoadFile(path); err == nil {
				cachedTable.merge(t)
			}
		}
	})
	return cachedTable
}

// Reset clears the cached table (for testing).
func Reset() {
	cachedTableOnce = sync.Once{}
	cachedTable = nil
}

func loadEmbeddedDefaults() *Table {
	t := &Table{Platforms: make(map[string]*Platform)}

	data, err := defaultsFS.ReadFile("platforms.yaml")
	if err != nil {
		return t
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return t
	}
	t.normalize()
	return t
}

// LoadFile reads a platform table from a YAML file.
func LoadFile(path string) (*Table, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t.normalize()
	return &t, nil
}

func overridePaths() []string {
	var paths []string
	if envPath := os.Getenv("ROMSCRAPER_PLATFORMS_FILE"); envPath != "" {
		paths = append(paths, envPath)
	}
	paths = append(paths, "platforms.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "romscraper", "platforms.yaml"))
	}
	return paths
}

func (t *Table) normalize() {
	if t.Platforms == nil {
		t.Platforms = make(map[string]*Platform)
	}
	for id, p := range t.Platforms {
		if p == nil {
			p = &Platform{}
			t.Platforms[id] = p
		}
		p.ID = id
		for i, f := range p.Formats {
			f = strings.ToLower(f)
			if !strings.HasPrefix(f, ".") {
				f = "." + f
			}
			p.Formats[i] = f
		}
	}
}

// merge overlays src onto t; platforms in src replace those in t.
func (t *Table) merge(src *Table) {
	if src == nil {
		return
	}
	if src.DefaultScraper != "" {
		t.DefaultScraper = src.DefaultScraper
	}
	for id, p := range src.Platforms {
		t.Platforms[id] = p
	}
}

// Get returns the platform with the given id.
func (t *Table) Get(id string) (*Platform, error) {
	p, ok := t.Platforms[strings.ToLower(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return p, nil
}

// IDs returns all platform ids, sorted.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.Platforms))
	for id := range t.Platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Supports reports whether the platform lists scraper as usable.
func (p *Platform) Supports(scraper string) bool {
	return len(p.Scrapers) == 0 || slices.Contains(p.Scrapers, scraper)
}

// HasFormat reports whether filename carries one of the platform's extensions.
func (p *Platform) HasFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext != "" && slices.Contains(p.Formats, ext)
}

// Matches reports whether name refers to this platform: its id, display name
// or any alias, compared without case or punctuation. "Famicom" matches nes.
func (p *Platform) Matches(name string) bool {
	n := normalizeName(name)
	if n == "" {
		return false
	}
	if n == normalizeName(p.ID) || n == normalizeName(p.Name) {
		return true
	}
	for _, a := range p.Aliases {
		if n == normalizeName(a) {
			return true
		}
	}
	return false
}

// IGDBPlatform reports whether id is one of the platform's IGDB platform ids.
func (p *Platform) IGDBPlatform(id int) bool {
	return slices.Contains(p.IGDB, id)
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
