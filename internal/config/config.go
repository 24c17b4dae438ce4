// Package config loads romscraper configuration from YAML or JSON5 files,
// .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/tracing"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Run modes accepted by the mode key. Empty selects automatically.
const (
	ModeSingle    = "single"
	ModeNoIntr    = "no_intr"
	ModeCacheEdit = "cache_edit"
	ModeThreaded  = "threaded"
)

// Transport clients.
const (
	ClientResty    = "resty"
	ClientFasthttp = "fasthttp"
)

// Media toggles asset fetching per kind. Nil means disabled.
type Media struct {
	Covers      *bool `yaml:"covers,omitempty" json:"covers,omitempty"`
	Screenshots *bool `yaml:"screenshots,omitempty" json:"screenshots,omitempty"`
	Marquees    *bool `yaml:"marquees,omitempty" json:"marquees,omitempty"`
	Videos      *bool `yaml:"videos,omitempty" json:"videos,omitempty"`
	Manuals     *bool `yaml:"manuals,omitempty" json:"manuals,omitempty"`
}

// Enabled reports whether assets of the given kind are fetched and merged.
func (m Media) Enabled(kind game.AssetKind) bool {
	var p *bool
	switch kind {
	case game.Cover:
		p = m.Covers
	case game.Screenshot:
		p = m.Screenshots
	case game.Marquee:
		p = m.Marquees
	case game.Video:
		p = m.Videos
	case game.Manual:
		p = m.Manuals
	}
	return p != nil && *p
}

// overlay returns a copy of m with every flag set in o replacing its own.
func (m Media) overlay(o Media) Media {
	pick := func(a, b *bool) *bool {
		if b != nil {
			a = b
		}
		if a == nil {
			return nil
		}
		v := *a
		return &v
	}
	return Media{
		Covers:      pick(m.Covers, o.Covers),
		Screenshots: pick(m.Screenshots, o.Screenshots),
		Marquees:    pick(m.Marquees, o.Marquees),
		Videos:      pick(m.Videos, o.Videos),
		Manuals:     pick(m.Manuals, o.Manuals),
	}
}

// Settings are the keys that a platforms.<id> section may override.
type Settings struct {
	Scraper        string            `yaml:"scraper,omitempty" json:"scraper,omitempty"`
	InputFolder    string            `yaml:"input_folder,omitempty" json:"input_folder,omitempty"`
	GamelistFolder string            `yaml:"gamelist_folder,omitempty" json:"gamelist_folder,omitempty"`
	ImportFolder   string            `yaml:"import_folder,omitempty" json:"import_folder,omitempty"`
	OutputFolder   string            `yaml:"output_folder,omitempty" json:"output_folder,omitempty"`
	Threads        int               `yaml:"threads,omitempty" json:"threads,omitempty"`
	MinMatch       int               `yaml:"min_match,omitempty" json:"min_match,omitempty"`
	Refresh        bool              `yaml:"refresh,omitempty" json:"refresh,omitempty"`
	Media          Media             `yaml:"media,omitempty" json:"media,omitempty"`
	RegionPrios    []string          `yaml:"region_prios,omitempty" json:"region_prios,omitempty"`
	LangPrios      []string          `yaml:"lang_prios,omitempty" json:"lang_prios,omitempty"`
	Aliases        map[string]string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// IGDB holds Twitch/IGDB API credentials.
type IGDB struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	Token        string `yaml:"token,omitempty" json:"token,omitempty"`
}

// Transport selects and tunes the HTTP client used by networked sources.
type Transport struct {
	Client  string `yaml:"client" json:"client"`
	Timeout int    `yaml:"timeout" json:"timeout"` // seconds
}

// TimeoutDuration returns the configured request timeout.
func (t Transport) TimeoutDuration() time.Duration {
	if t.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.Timeout) * time.Second
}

// Config holds application configuration.
type Config struct {
	Settings `yaml:",inline"`

	Platform    string              `yaml:"platform" json:"platform"`
	CacheFolder string              `yaml:"cache_folder" json:"cache_folder"`
	Mode        string              `yaml:"mode,omitempty" json:"mode,omitempty"`
	IGDB        IGDB                `yaml:"igdb" json:"igdb"`
	Transport   Transport           `yaml:"transport" json:"transport"`
	Logging     logging.Config      `yaml:"logging" json:"logging"`
	Tracing     tracing.Config      `yaml:"tracing" json:"tracing"`
	MetricsAddr string              `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	Platforms   map[string]Settings `yaml:"platforms,omitempty" json:"platforms,omitempty"`
}

func enabled(v bool) *bool { return &v }

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			Scraper:      "igdb",
			ImportFolder: "import",
			Threads:      4,
			MinMatch:     65,
			Media: Media{
				Covers:      enabled(true),
				Screenshots: enabled(true),
				Marquees:    enabled(true),
				Videos:      enabled(false),
				Manuals:     enabled(false),
			},
			RegionPrios: []string{"eu", "us", "wor", "jp"},
			LangPrios:   []string{"en"},
		},
		CacheFolder: defaultCacheFolder(),
		Transport:   Transport{Client: ClientResty, Timeout: 30},
		Logging:     logging.DefaultConfig(),
		Tracing:     tracing.DefaultConfig(),
	}
}

func defaultCacheFolder() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".romscraper", "cache")
	}
	return "cache"
}

// configPaths returns the list of paths to search for config file.
func configPaths() []string {
	paths := []string{
		".romscraper.yaml",
		".romscraper.yml",
		".romscraper.json5",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "romscraper", "config.yaml"),
			filepath.Join(home, ".config", "romscraper", "config.yml"),
			filepath.Join(home, ".config", "romscraper", "config.json5"),
		)
	}

	return paths
}

// Load loads configuration from file or returns defaults.
// Priority: env ROMSCRAPER_CONFIG > search paths > defaults, then the
// environment (including a .env file in the working directory) on top.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if envPath := os.Getenv("ROMSCRAPER_CONFIG"); envPath != "" {
		if err := cfg.LoadFile(envPath); err != nil {
			return nil, err
		}
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.LoadFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile decodes path over c. Files ending in .json5 or .json are read as
// JSON5, anything else as YAML.
func (c *Config) LoadFile(path string) error {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json5", ".json":
		err = json5.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ROMSCRAPER_PLATFORM"); v != "" {
		c.Platform = v
	}
	if v := os.Getenv("ROMSCRAPER_SCRAPER"); v != "" {
		c.Scraper = v
	}
	if v := os.Getenv("ROMSCRAPER_INPUT_FOLDER"); v != "" {
		c.InputFolder = v
	}
	if v := os.Getenv("ROMSCRAPER_CACHE_FOLDER"); v != "" {
		c.CacheFolder = v
	}
	if v := os.Getenv("ROMSCRAPER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Threads = n
		}
	}
	if v := os.Getenv("ROMSCRAPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ROMSCRAPER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ROMSCRAPER_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("ROMSCRAPER_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("IGDB_CLIENT_ID"); v != "" {
		c.IGDB.ClientID = v
	}
	if v := os.Getenv("IGDB_CLIENT_SECRET"); v != "" {
		c.IGDB.ClientSecret = v
	}
}

// ForPlatform returns a copy of c with the platforms.<id> section merged over
// the global settings. Non-empty override values win.
func (c *Config) ForPlatform(id string) (*Config, error) {
	out := *c
	out.Platform = strings.ToLower(id)
	out.Settings = c.Settings.clone()

	override, ok := c.Platforms[strings.ToLower(id)]
	if !ok {
		return &out, nil
	}
	override = override.clone()
	if err := mergo.Merge(&out.Settings, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge platform %s overrides: %w", id, err)
	}
	// mergo skips false values; an explicit media flag always wins.
	out.Media = out.Media.overlay(override.Media)
	return &out, nil
}

func (s Settings) clone() Settings {
	out := s
	out.Media = s.Media.overlay(Media{})
	out.RegionPrios = slices.Clone(s.RegionPrios)
	out.LangPrios = slices.Clone(s.LangPrios)
	if s.Aliases != nil {
		out.Aliases = make(map[string]string, len(s.Aliases))
		for k, v := range s.Aliases {
			out.Aliases[k] = v
		}
	}
	return out
}

// Validate checks the configuration for errors that must abort a run before
// any work starts.
func (c *Config) Validate() error {
	var errs []error

	if c.Platform == "" {
		errs = append(errs, errors.New("platform is required"))
	}
	if c.Scraper == "" {
		errs = append(errs, errors.New("scraper is required"))
	}
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", c.Threads))
	}
	if c.MinMatch < 0 || c.MinMatch > 100 {
		errs = append(errs, fmt.Errorf("min_match must be within 0-100, got %d", c.MinMatch))
	}
	switch c.Mode {
	case "", ModeSingle, ModeNoIntr, ModeCacheEdit, ModeThreaded:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	switch c.Transport.Client {
	case "", ClientResty, ClientFasthttp:
	default:
		errs = append(errs, fmt.Errorf("unknown transport client %q", c.Transport.Client))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// GetInputFolder returns the ROM folder for the active platform.
func (c *Config) GetInputFolder() string {
	if c.InputFolder != "" {
		return c.InputFolder
	}
	return filepath.Join("roms", c.Platform)
}

// GetCacheFolder returns the cache directory for the active platform.
func (c *Config) GetCacheFolder() string {
	return filepath.Join(c.CacheFolder, c.Platform)
}

// GetImportFolder returns the offline import folder for the active platform.
func (c *Config) GetImportFolder() string {
	return filepath.Join(c.ImportFolder, c.Platform)
}

// GetGamelistFolder returns the folder holding an existing gamelist.xml.
// Empty means fall back to the import folder.
func (c *Config) GetGamelistFolder() string {
	return c.GamelistFolder
}

// GetOutputFolder returns where the frontend export is written.
func (c *Config) GetOutputFolder() string {
	if c.OutputFolder != "" {
		return c.OutputFolder
	}
	return c.GetInputFolder()
}

// GetMinMatch returns the minimum accepted search match score.
func (c *Config) GetMinMatch() int {
	if c.MinMatch > 0 {
		return c.MinMatch
	}
	return 65
}
