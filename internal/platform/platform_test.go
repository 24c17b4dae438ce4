package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	table := loadEmbeddedDefaults()

	assert.Equal(t, "igdb", table.DefaultScraper)
	assert.NotEmpty(t, table.Platforms)

	nes, err := table.Get("nes")
	require.NoError(t, err)
	assert.Equal(t, "nes", nes.ID)
	assert.Equal(t, "Nintendo Entertainment System", nes.Name)
	assert.True(t, nes.IGDBPlatform(18))
	assert.Contains(t, table.IDs(), "snes")
}

func TestTable_GetUnknown(t *testing.T) {
	table := loadEmbeddedDefaults()
	_, err := table.Get("toaster")
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestPlatform_Matches(t *testing.T) {
	table := loadEmbeddedDefaults()
	nes, err := table.Get("NES")
	require.NoError(t, err)

	tests := []struct {
		name     string
		expected bool
	}{
		{"NES", true},
		{"Famicom", true},
		{"Family Computer", true},
		{"Nintendo Entertainment System", true},
		{"nintendo-entertainment-system", true},
		{"Super Famicom", false},
		{"Sega Mega Drive/Genesis", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nes.Matches(tt.name))
		})
	}
}

func TestPlatform_HasFormat(t *testing.T) {
	p := &Platform{Formats: []string{".sfc", ".zip"}}
	assert.True(t, p.HasFormat("Game.SFC"))
	assert.True(t, p.HasFormat("/roms/Game.zip"))
	assert.False(t, p.HasFormat("Game.srm"))
	assert.False(t, p.HasFormat("README"))
}

func TestPlatform_Supports(t *testing.T) {
	p := &Platform{Scrapers: []string{"igdb", "cache"}}
	assert.True(t, p.Supports("igdb"))
	assert.False(t, p.Supports("import"))
	assert.True(t, (&Platform{}).Supports("anything"))
}

func TestLoad_MergesOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platforms.yaml")
	content := `
default_scraper: esgamelist
platforms:
  pico8:
    name: PICO-8
    formats: [p8, png]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644)) // #nosec G306
	t.Setenv("ROMSCRAPER_PLATFORMS_FILE", path)

	Reset()
	defer Reset()

	table := Load()
	assert.Equal(t, "esgamelist", table.DefaultScraper)

	pico, err := table.Get("pico8")
	require.NoError(t, err)
	assert.Equal(t, []string{".p8", ".png"}, pico.Formats)

	_, err = table.Get("snes")
	assert.NoError(t, err, "defaults survive the merge")
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platforms: [oops"), 0644)) // #nosec G306
	_, err := LoadFile(path)
	assert.Error(t, err)
}
