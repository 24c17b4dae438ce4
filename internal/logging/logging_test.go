package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"verbose", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level).String())
		})
	}
}

func TestSetupWriter(t *testing.T) {
	t.Run("json job logger", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWriter(Config{Format: "json", Level: "debug"}, &buf)

		ForJob("Foo.rom", "igdb").Debug("search", "names", 2)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "search", line["msg"])
		assert.Equal(t, "Foo.rom", line["file"])
		assert.Equal(t, "igdb", line["backend"])
		assert.EqualValues(t, 2, line["names"])
	})

	t.Run("text filters level", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWriter(Config{Format: "text", Level: "warn"}, &buf)

		Info("hidden")
		ForRun("run-1", "snes").Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
		assert.Contains(t, buf.String(), "run_id=run-1")
	})

	t.Run("pretty", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWriter(Config{Format: "pretty", Level: "info"}, &buf)

		Info("cache flushed", "entries", 3)
		assert.Contains(t, buf.String(), "cache flushed")
	})
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "romscraper.log")
	require.NoError(t, Setup(Config{Format: "text", Level: "info", File: path}))
	t.Cleanup(Close)

	ForRun("abc", "nes").Info("Run finished", "found", 5)
	Debug("not written")
	Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 1)
	assert.Equal(t, "Run finished", lines[0]["msg"])
	assert.Equal(t, "nes", lines[0]["platform"])
	assert.EqualValues(t, 5, lines[0]["found"])
}

func TestSetupBadFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := Setup(Config{File: filepath.Join(blocker, "sub", "log")})
	assert.Error(t, err)
}
