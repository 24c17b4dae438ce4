package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ryanm101/romscraper/internal/game"
)

var jsonOutput bool

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(13)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// printTable outputs tabular data, or a list of objects in JSON mode.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if jsonOutput {
		result := make([]map[string]string, len(rows))
		for i, row := range rows {
			m := make(map[string]string, len(headers))
			for j, h := range headers {
				if j < len(row) {
					m[h] = row[j]
				}
			}
			result[i] = m
		}
		printJSON(result)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		t.AppendRow(r)
	}
	t.Render()
}

// printInfo prints a message unless output is quiet or JSON.
func printInfo(format string, args ...any) {
	if !quiet && !jsonOutput {
		fmt.Printf(format, args...)
	}
}

// renderRecord formats a record as a bordered card.
func renderRecord(rec *game.Record) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(rec.Title))
	b.WriteString("\n")

	line := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	line("Platform", rec.Platform)
	line("Source", rec.Source)
	line("ID", rec.ID)
	line("Released", rec.ReleaseDate)
	line("Developer", rec.Developer)
	line("Publisher", rec.Publisher)
	line("Players", rec.Players)
	line("Rating", rec.Rating)
	line("Ages", rec.Ages)
	line("Tags", rec.Tags)
	if rec.SearchMatch > 0 {
		line("Match", fmt.Sprintf("%d%%", rec.SearchMatch))
	}
	line("Complete", fmt.Sprintf("%d%%", rec.Completeness()))

	var media []string
	for _, kind := range game.AssetKinds {
		if a, ok := rec.Asset(kind); ok {
			media = append(media, fmt.Sprintf("%s (%s)", kind, humanize.Bytes(uint64(len(a.Data)))))
		}
	}
	line("Media", strings.Join(media, ", "))

	if rec.Description != "" {
		desc := rec.Description
		if len(desc) > 300 {
			desc = desc[:300] + "..."
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(72).Render(desc))
	}
	return cardStyle.Render(strings.TrimRight(b.String(), "\n"))
}
