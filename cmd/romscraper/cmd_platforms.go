package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryanm101/romscraper/internal/platform"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List known platforms with their file formats and sources",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		table := platform.Load()
		var rows [][]string
		for _, id := range table.IDs() {
			p, err := table.Get(id)
			if err != nil {
				return err
			}
			rows = append(rows, []string{
				p.ID, p.Name,
				strings.Join(p.Formats, " "),
				strings.Join(p.Scrapers, ", "),
			})
		}
		printTable(os.Stdout, []string{"ID", "Name", "Formats", "Scrapers"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}
