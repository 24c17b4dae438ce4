package frontend

import (
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"time"
)

// GameList represents the XML structure of a gamelist.xml file.
type GameList struct {
	XMLName xml.Name       `xml:"gameList"`
	Games   []GameListGame `xml:"game"`
}

// GameListGame represents a single game entry in gamelist.xml.
type GameListGame struct {
	Path        string `xml:"path"`
	Name        string `xml:"name"`
	Description string `xml:"desc,omitempty"`
	Image       string `xml:"image,omitempty"`
	Thumbnail   string `xml:"thumbnail,omitempty"`
	Marquee     string `xml:"marquee,omitempty"`
	Video       string `xml:"video,omitempty"`
	Manual      string `xml:"manual,omitempty"`
	Rating      string `xml:"rating,omitempty"`
	ReleaseDate string `xml:"releasedate,omitempty"`
	Developer   string `xml:"developer,omitempty"`
	Publisher   string `xml:"publisher,omitempty"`
	Genre       string `xml:"genre,omitempty"`
	Players     string `xml:"players,omitempty"`
}

// ReadGameList parses the gamelist.xml at path.
func ReadGameList(path string) (*GameList, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gl GameList
	if err := xml.Unmarshal(data, &gl); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &gl, nil
}

// Marshal renders the gamelist with an XML header.
func (g *GameList) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

var esDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})T\d{6}$`)

// FormatESDate converts an ISO date (YYYY-MM-DD) to EmulationStation's
// date format. Other values pass through unchanged.
func FormatESDate(iso string) string {
	t, err := time.Parse(time.DateOnly, iso)
	if err != nil {
		return iso
	}
	return t.Format("20060102T150405")
}

// ParseESDate converts an EmulationStation date to ISO form. Other values
// pass through unchanged.
func ParseESDate(s string) string {
	m := esDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}
