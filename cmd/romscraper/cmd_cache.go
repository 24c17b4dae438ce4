package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/engine"
	"github.com/ryanm101/romscraper/internal/frontend"
	"github.com/ryanm101/romscraper/internal/game"
)

var cacheExport bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and edit the resource cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries for the platform",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(c *cache.Cache, pcfg *config.Config) error {
			var rows [][]string
			for _, key := range c.Keys(pcfg.Platform) {
				rec, _ := c.Get(key)
				updated := ""
				if t, ok := c.Updated(key); ok {
					updated = humanize.Time(t)
				}
				rows = append(rows, []string{
					key.Name, rec.Title, rec.Source,
					strconv.Itoa(rec.Completeness()) + "%", updated,
				})
			}
			printTable(os.Stdout, []string{"File", "Title", "Source", "Complete", "Updated"}, rows)
			return nil
		})
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show one cached entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.Cache, pcfg *config.Config) error {
			key := cache.Key{Platform: pcfg.Platform, Name: filepath.Base(args[0])}
			rec, ok := c.Get(key)
			if !ok {
				return fmt.Errorf("%w: %s", cache.ErrNotFound, key)
			}
			if jsonOutput {
				printJSON(rec)
				return nil
			}
			fmt.Println(renderRecord(rec))
			return nil
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and asset counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(c *cache.Cache, _ *config.Config) error {
			s := c.Stats()
			rows := [][]string{
				{"Folder", c.Dir()},
				{"Entries", humanize.Comma(int64(s.Entries))},
			}
			for _, kind := range game.AssetKinds {
				rows = append(rows, []string{string(kind) + "s", humanize.Comma(int64(s.Assets[kind]))})
			}
			rows = append(rows, []string{"Asset size", humanize.Bytes(uint64(s.AssetBytes))})
			printTable(os.Stdout, []string{"Cache", ""}, rows)
			return nil
		})
	},
}

var cacheEditCmd = &cobra.Command{
	Use:   "edit <file:field=value>...",
	Short: "Override fields of cached entries",
	Long: `Override text fields of cached entries without contacting any source,
for example:

  romscraper cache edit -p snes "Zelda.sfc:title=The Legend of Zelda"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCacheEdit,
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <file>...",
	Short: "Remove cached entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.Cache, pcfg *config.Config) error {
			for _, name := range args {
				key := cache.Key{Platform: pcfg.Platform, Name: filepath.Base(name)}
				if err := c.Delete(key); err != nil {
					return err
				}
				printInfo("Deleted %s\n", key)
			}
			return c.Flush(cmd.Context())
		})
	},
}

func init() {
	cacheEditCmd.Flags().BoolVar(&cacheExport, "export", false, "write the edited entries to the gamelist")
	cacheCmd.AddCommand(cacheListCmd, cacheShowCmd, cacheStatsCmd, cacheEditCmd, cacheDeleteCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache opens the cache for the selected platform and closes it after fn.
func withCache(cmd *cobra.Command, fn func(*cache.Cache, *config.Config) error) error {
	_, pcfg, err := resolvePlatform()
	if err != nil {
		return err
	}
	c, err := cache.Open(cmd.Context(), pcfg.GetCacheFolder())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = c.Close() }()
	return fn(c, pcfg)
}

func runCacheEdit(cmd *cobra.Command, args []string) error {
	edits := make([]engine.Edit, 0, len(args))
	for _, arg := range args {
		edit, err := engine.ParseEdit(arg)
		if err != nil {
			return err
		}
		edits = append(edits, edit)
	}

	p, pcfg, err := resolvePlatform()
	if err != nil {
		return err
	}
	pcfg.Mode = config.ModeCacheEdit
	if err := pcfg.Validate(); err != nil {
		return err
	}

	c, err := cache.Open(cmd.Context(), pcfg.GetCacheFolder())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = c.Close() }()

	eng, err := engine.New(engine.Options{
		Config:   pcfg,
		Platform: p,
		Cache:    c,
		Backend:  "cache",
		Edits:    edits,
	})
	if err != nil {
		return err
	}
	summary, runErr := eng.Run(cmd.Context())
	if summary == nil {
		return runErr
	}
	printInfo("Edited %d of %d entries\n", summary.Stats.Found, len(edits))

	if cacheExport && len(summary.Entries) > 0 {
		es := frontend.NewEmulationStation(pcfg.GetOutputFolder())
		if err := es.Export(cmd.Context(), summary.Entries, summary.Stats); err != nil {
			return fmt.Errorf("export %s: %w", es.Name(), err)
		}
		printInfo("Updated %s\n", filepath.Join(es.OutputFolder, frontend.GamelistFile))
	}
	return runErr
}
