// Package game holds the records and jobs that flow through a scrape run.
package game

import (
	"strings"
)

// AssetKind identifies one binary asset slot of a record.
type AssetKind string

const (
	Cover      AssetKind = "cover"
	Screenshot AssetKind = "screenshot"
	Marquee    AssetKind = "marquee"
	Video      AssetKind = "video"
	Manual     AssetKind = "manual"
)

// AssetKinds lists every asset slot in a stable order.
var AssetKinds = []AssetKind{Cover, Screenshot, Marquee, Video, Manual}

// Asset is a binary payload. Format is only set for videos.
type Asset struct {
	Data   []byte
	Format string
}

// Present reports whether the asset carries any bytes.
func (a Asset) Present() bool {
	return len(a.Data) > 0
}

// Record is the unit of output of a scrape. Empty fields mean "unknown".
type Record struct {
	ID          string // Source specific, may be composite (e.g. "1234;19")
	Source      string // Backend that produced the record
	Title       string
	Platform    string
	ReleaseDate string // ISO 8601 (YYYY-MM-DD)
	Developer   string
	Publisher   string
	Players     string
	Rating      string // Decimal string between 0.0 and 1.0
	Ages        string
	Tags        string // Comma joined
	Description string

	// SearchMatch is the matcher score (0-100) that selected this record.
	SearchMatch int

	Assets map[AssetKind]Asset
}

// TextField names a descriptive field of a record.
type TextField string

const (
	FieldID          TextField = "id"
	FieldTitle       TextField = "title"
	FieldPlatform    TextField = "platform"
	FieldReleaseDate TextField = "releasedate"
	FieldDeveloper   TextField = "developer"
	FieldPublisher   TextField = "publisher"
	FieldPlayers     TextField = "players"
	FieldRating      TextField = "rating"
	FieldAges        TextField = "ages"
	FieldTags        TextField = "tags"
	FieldDescription TextField = "description"
)

// TextFields lists the descriptive fields in a stable order.
var TextFields = []TextField{
	FieldID, FieldTitle, FieldPlatform, FieldReleaseDate, FieldDeveloper, FieldPublisher,
	FieldPlayers, FieldRating, FieldAges, FieldTags, FieldDescription,
}

// Field returns a pointer to the named text field, or nil for unknown names.
func (r *Record) Field(name TextField) *string {
	switch name {
	case FieldID:
		return &r.ID
	case FieldTitle:
		return &r.Title
	case FieldPlatform:
		return &r.Platform
	case FieldReleaseDate:
		return &r.ReleaseDate
	case FieldDeveloper:
		return &r.Developer
	case FieldPublisher:
		return &r.Publisher
	case FieldPlayers:
		return &r.Players
	case FieldRating:
		return &r.Rating
	case FieldAges:
		return &r.Ages
	case FieldTags:
		return &r.Tags
	case FieldDescription:
		return &r.Description
	}
	return nil
}

// ParseTextField resolves a user supplied field name.
func ParseTextField(s string) (TextField, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "genre", "genres":
		s = string(FieldTags)
	case "desc":
		s = string(FieldDescription)
	case "name":
		s = string(FieldTitle)
	}
	for _, f := range TextFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// SetAsset stores data for kind. Empty data is ignored.
func (r *Record) SetAsset(kind AssetKind, data []byte, format string) {
	if len(data) == 0 {
		return
	}
	if r.Assets == nil {
		r.Assets = make(map[AssetKind]Asset)
	}
	r.Assets[kind] = Asset{Data: data, Format: format}
}

// Asset returns the asset for kind and whether it is present.
func (r *Record) Asset(kind AssetKind) (Asset, bool) {
	a, ok := r.Assets[kind]
	if !ok || !a.Present() {
		return Asset{}, false
	}
	return a, true
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Assets != nil {
		c.Assets = make(map[AssetKind]Asset, len(r.Assets))
		for k, a := range r.Assets {
			data := make([]byte, len(a.Data))
			copy(data, a.Data)
			c.Assets[k] = Asset{Data: data, Format: a.Format}
		}
	}
	return &c
}

// completenessFields are the fields counted by Completeness.
var completenessFields = []TextField{
	FieldTitle, FieldReleaseDate, FieldDeveloper, FieldPublisher, FieldPlayers,
	FieldRating, FieldAges, FieldTags, FieldDescription,
}

// Completeness returns the percentage of descriptive fields and assets that are populated.
func (r *Record) Completeness() int {
	total := len(completenessFields) + len(AssetKinds)
	filled := 0
	for _, f := range completenessFields {
		if *r.Field(f) != "" {
			filled++
		}
	}
	for _, k := range AssetKinds {
		if _, ok := r.Asset(k); ok {
			filled++
		}
	}
	return filled * 100 / total
}
