package game

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Field(t *testing.T) {
	r := &Record{}
	for _, f := range TextFields {
		p := r.Field(f)
		require.NotNil(t, p, "field %s", f)
		*p = string(f)
	}
	assert.Equal(t, "title", r.Title)
	assert.Equal(t, "releasedate", r.ReleaseDate)
	assert.Nil(t, r.Field("bogus"))
}

func TestParseTextField(t *testing.T) {
	tests := []struct {
		input    string
		expected TextField
		ok       bool
	}{
		{"title", FieldTitle, true},
		{" Title ", FieldTitle, true},
		{"name", FieldTitle, true},
		{"genre", FieldTags, true},
		{"desc", FieldDescription, true},
		{"releasedate", FieldReleaseDate, true},
		{"cover", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, ok := ParseTextField(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestRecord_SetAsset(t *testing.T) {
	r := &Record{}
	r.SetAsset(Cover, nil, "")
	_, ok := r.Asset(Cover)
	assert.False(t, ok)
	assert.Nil(t, r.Assets)

	r.SetAsset(Video, []byte("vid"), "mp4")
	a, ok := r.Asset(Video)
	require.True(t, ok)
	assert.Equal(t, "mp4", a.Format)
}

func TestRecord_Clone(t *testing.T) {
	r := &Record{Title: "Foo", Rating: "0.5"}
	r.SetAsset(Cover, []byte{1, 2, 3}, "")

	c := r.Clone()
	if diff := cmp.Diff(r, c); diff != "" {
		t.Fatalf("clone differs (-want +got):\n%s", diff)
	}

	c.Assets[Cover].Data[0] = 9
	assert.Equal(t, byte(1), r.Assets[Cover].Data[0])
	assert.Nil(t, (*Record)(nil).Clone())
}

func TestRecord_Completeness(t *testing.T) {
	assert.Equal(t, 0, (&Record{}).Completeness())

	r := &Record{
		Title: "a", ReleaseDate: "b", Developer: "c", Publisher: "d", Players: "e",
		Rating: "f", Ages: "g", Tags: "h", Description: "i",
	}
	for _, k := range AssetKinds {
		r.SetAsset(k, []byte{1}, "")
	}
	assert.Equal(t, 100, r.Completeness())

	partial := &Record{Title: "a"}
	assert.Equal(t, 7, partial.Completeness())
}

func TestJob(t *testing.T) {
	j := NewJob("roms/Super Game (Europe).rom")
	assert.Equal(t, "Super Game (Europe).rom", j.Name)
	assert.Equal(t, "Super Game (Europe)", j.BaseName())

	j.Tracef("first %d", 1)
	j.Tracef("second")
	assert.Equal(t, []string{"first 1", "second"}, j.Trace())
	assert.Equal(t, "first 1\nsecond", j.TraceText())
}
