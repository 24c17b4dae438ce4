package scraper

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ryanm101/romscraper/internal/game"
)

// xmlDefinitions maps element paths such as "game/title" to record fields.
// Textual files are read as XML, so element order and entities don't matter.
type xmlDefinitions struct {
	fields map[string]game.TextField
}

func parseXMLDefinitions(tmpl string) (*xmlDefinitions, error) {
	d := &xmlDefinitions{fields: make(map[string]game.TextField)}
	err := walkXML(tmpl, func(path, text string) {
		m := tagPattern.FindStringSubmatch(text)
		if m == nil {
			return
		}
		if field, ok := importTags[m[1]]; ok {
			d.fields[path] = field
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse xml template: %w", err)
	}
	if len(d.fields) == 0 {
		return nil, errors.New("template has no tags")
	}
	return d, nil
}

func (d *xmlDefinitions) apply(text string, rec *game.Record) bool {
	var parsed game.Record
	seen := make(map[string]bool)
	err := walkXML(text, func(path, value string) {
		field, ok := d.fields[path]
		if !ok || seen[path] {
			return
		}
		seen[path] = true
		*parsed.Field(field) = strings.TrimSpace(value)
	})
	if err != nil || len(seen) == 0 {
		return false
	}
	for _, field := range d.fields {
		if v := *parsed.Field(field); v != "" {
			*rec.Field(field) = v
		}
	}
	return true
}

// walkXML calls fn with the slash-joined path and the character data of
// every element once the element closes.
func walkXML(doc string, fn func(path, text string)) error {
	dec := xml.NewDecoder(strings.NewReader(doc))

	var (
		path  []string
		texts []*strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if len(path) > 0 {
				return fmt.Errorf("unclosed element %q", path[len(path)-1])
			}
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			texts = append(texts, &strings.Builder{})
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		case xml.EndElement:
			if len(path) == 0 {
				return fmt.Errorf("unexpected closing element %q", t.Name.Local)
			}
			fn(strings.Join(path, "/"), texts[len(texts)-1].String())
			path = path[:len(path)-1]
			texts = texts[:len(texts)-1]
		}
	}
}
