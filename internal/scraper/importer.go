package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
)

const (
	definitionsFile = "definitions.dat"
	textualFolder   = "textual"
)

// defaultDefinitions is used when the import folder has no definitions.dat.
const defaultDefinitions = `###TITLE###
###RELEASEDATE###
###DEVELOPER###
###PUBLISHER###
###PLAYERS###
###AGES###
###RATING###
###TAGS###
###DESCRIPTION###`

// importFolders maps asset kinds to their import subfolder.
var importFolders = map[game.AssetKind]string{
	game.Cover:      "covers",
	game.Screenshot: "screenshots",
	game.Marquee:    "marquees",
	game.Video:      "videos",
	game.Manual:     "manuals",
}

// importTags maps definitions.dat tags to record fields.
var importTags = map[string]game.TextField{
	"TITLE":       game.FieldTitle,
	"DESCRIPTION": game.FieldDescription,
	"DEVELOPER":   game.FieldDeveloper,
	"PUBLISHER":   game.FieldPublisher,
	"PLAYERS":     game.FieldPlayers,
	"AGES":        game.FieldAges,
	"RATING":      game.FieldRating,
	"TAGS":        game.FieldTags,
	"RELEASEDATE": game.FieldReleaseDate,
}

var tagPattern = regexp.MustCompile(`###([A-Z]+)###`)

// template fills a record from the text of one textual file.
type template interface {
	// apply reports whether text matched the template.
	apply(text string, rec *game.Record) bool
}

// parseDefinitions compiles a definitions.dat template. Templates starting
// with an XML element are read as XML, anything else as a text template.
func parseDefinitions(tmpl string) (template, error) {
	if strings.HasPrefix(strings.TrimSpace(tmpl), "<") {
		d, err := parseXMLDefinitions(tmpl)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := parseTextDefinitions(tmpl)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// textDefinitions is a compiled text template.
type textDefinitions struct {
	re     *regexp.Regexp
	fields []game.TextField // per capture group, empty for unknown tags
}

// parseTextDefinitions compiles a text template. Literal text must match
// with any amount of whitespace; every tag captures the text up to the next
// literal.
func parseTextDefinitions(tmpl string) (*textDefinitions, error) {
	tmpl = strings.TrimSpace(tmpl)
	matches := tagPattern.FindAllStringSubmatchIndex(tmpl, -1)
	if len(matches) == 0 {
		return nil, errors.New("template has no tags")
	}

	var (
		b      strings.Builder
		fields []game.TextField
		last   int
	)
	b.WriteString(`(?s)^\s*`)
	for _, m := range matches {
		b.WriteString(literalPattern(tmpl[last:m[0]]))
		b.WriteString(`(.*?)`)
		fields = append(fields, importTags[tmpl[m[2]:m[3]]])
		last = m[1]
	}
	b.WriteString(literalPattern(tmpl[last:]))
	b.WriteString(`\s*$`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile template: %w", err)
	}
	return &textDefinitions{re: re, fields: fields}, nil
}

// literalPattern quotes s with whitespace runs relaxed to \s*. A separator
// made only of whitespace keeps its line breaks, so one tag per line works.
func literalPattern(s string) string {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		n := strings.Count(s, "\n")
		if n == 0 {
			return `[ \t]*`
		}
		return `[ \t]*` + strings.Repeat(`\n[ \t]*`, n)
	}
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return `\s*` + strings.Join(parts, `\s*`) + `\s*`
}

// apply fills rec from text. It reports whether the template matched.
func (d *textDefinitions) apply(text string, rec *game.Record) bool {
	m := d.re.FindStringSubmatch(strings.ReplaceAll(text, "\r\n", "\n"))
	if m == nil {
		return false
	}
	for i, field := range d.fields {
		if field == "" {
			continue
		}
		if v := strings.TrimSpace(m[i+1]); v != "" {
			*rec.Field(field) = v
		}
	}
	return true
}

// Import is the offline source reading hand-made data from the import
// folder. Its file index is shared read-only between instances.
type Import struct {
	defs    template
	textual map[string]string
	assets  map[game.AssetKind]map[string]string
	opts    Options
}

func newImportFactory(opts Options) (Factory, error) {
	folder := opts.Config.GetImportFolder()

	tmpl := defaultDefinitions
	// #nosec G304
	if data, err := os.ReadFile(filepath.Join(folder, definitionsFile)); err == nil {
		tmpl = string(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Could not read import definitions, using defaults", "folder", folder, "error", err)
	}
	defs, err := parseDefinitions(tmpl)
	if err != nil {
		return nil, sourceErr(NameImport, "load definitions", err)
	}

	textual := indexFolder(filepath.Join(folder, textualFolder))
	assets := make(map[game.AssetKind]map[string]string, len(importFolders))
	for kind, sub := range importFolders {
		assets[kind] = indexFolder(filepath.Join(folder, sub))
	}
	logging.Debug("indexed import folder", "folder", folder, "textual", len(textual))

	return func() (Backend, error) {
		return &Import{defs: defs, textual: textual, assets: assets, opts: opts}, nil
	}, nil
}

// indexFolder maps base names (without the last extension) to file paths.
// A missing folder gives an empty index.
func indexFolder(dir string) map[string]string {
	out := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if _, dup := out[base]; !dup {
			out[base] = filepath.Join(dir, name)
		}
	}
	return out
}

func (b *Import) Name() string         { return NameImport }
func (b *Import) Kind() Kind           { return Offline }
func (b *Import) MatchMode() MatchMode { return MatchOne }
func (b *Import) Remaining() int       { return Unlimited }

// SearchNames returns the job's base name; import files are named after it.
func (b *Import) SearchNames(job *game.Job) []string {
	return []string{job.BaseName()}
}

func (b *Import) Search(_ context.Context, name, platformID string) ([]*game.Record, error) {
	if !b.has(name) {
		return nil, nil
	}
	rec := &game.Record{ID: name, Source: NameImport, Title: name, Platform: platformID}
	if path, ok := b.textual[name]; ok {
		if text, err := readText(path); err == nil {
			var parsed game.Record
			if b.defs.apply(text, &parsed) && parsed.Title != "" {
				rec.Title = parsed.Title
			}
		}
	}
	return []*game.Record{rec}, nil
}

func (b *Import) has(name string) bool {
	if _, ok := b.textual[name]; ok {
		return true
	}
	for _, idx := range b.assets {
		if _, ok := idx[name]; ok {
			return true
		}
	}
	return false
}

func (b *Import) FetchDetails(_ context.Context, rec *game.Record) error {
	var errs []error
	if path, ok := b.textual[rec.ID]; ok {
		text, err := readText(path)
		switch {
		case err != nil:
			errs = append(errs, sourceErr(NameImport, "read textual", err))
		case !b.defs.apply(text, rec):
			errs = append(errs, sourceErr(NameImport, "parse textual",
				fmt.Errorf("%s does not match %s", path, definitionsFile)))
		}
	}

	for _, kind := range game.AssetKinds {
		path, ok := b.assets[kind][rec.ID]
		if !ok || !b.opts.media(kind) {
			continue
		}
		// #nosec G304
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, sourceErr(NameImport, "read "+string(kind), err))
			continue
		}
		format := ""
		if kind == game.Video {
			format = assetFormat(path)
		}
		rec.SetAsset(kind, data, format)
	}
	return errors.Join(errs...)
}

func readText(path string) (string, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
