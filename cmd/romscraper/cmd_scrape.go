package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/engine"
	"github.com/ryanm101/romscraper/internal/frontend"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/netcomm"
	"github.com/ryanm101/romscraper/internal/ratelimit"
	"github.com/ryanm101/romscraper/internal/scraper"
)

type scrapeOptions struct {
	scraper   string
	threads   int
	mode      string
	minMatch  int
	refresh   bool
	input     string
	output    string
	transport string
	noExport  bool
}

var scrapeFlags scrapeOptions

var scrapeCmd = &cobra.Command{
	Use:   "scrape [files...]",
	Short: "Scrape metadata and media for a platform's ROMs",
	Long: `Scrape every ROM in the platform's input folder, or only the files given,
merge the results into the resource cache and write an EmulationStation
gamelist to the output folder.`,
	RunE: runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeFlags.scraper, "scraper", "s", "", "scraping source: igdb, esgamelist, import, cache")
	f.IntVarP(&scrapeFlags.threads, "threads", "t", 0, "number of worker threads")
	f.StringVar(&scrapeFlags.mode, "mode", "", "run mode: single, no_intr, threaded")
	f.IntVar(&scrapeFlags.minMatch, "min-match", -1, "minimum title match percentage (0-100)")
	f.BoolVar(&scrapeFlags.refresh, "refresh", false, "overwrite cached data instead of merging")
	f.StringVarP(&scrapeFlags.input, "input", "i", "", "ROM input folder")
	f.StringVarP(&scrapeFlags.output, "output", "o", "", "gamelist output folder")
	f.StringVar(&scrapeFlags.transport, "transport", "", "HTTP client: resty or fasthttp")
	f.BoolVar(&scrapeFlags.noExport, "no-export", false, "only update the cache")
	rootCmd.AddCommand(scrapeCmd)
}

func applyScrapeFlags(c *config.Config) {
	if scrapeFlags.scraper != "" {
		c.Scraper = scrapeFlags.scraper
	}
	if scrapeFlags.threads > 0 {
		c.Threads = scrapeFlags.threads
	}
	if scrapeFlags.mode != "" {
		c.Mode = scrapeFlags.mode
	}
	if scrapeFlags.minMatch >= 0 {
		c.MinMatch = scrapeFlags.minMatch
	}
	if scrapeFlags.refresh {
		c.Refresh = true
	}
	if scrapeFlags.input != "" {
		c.InputFolder = scrapeFlags.input
	}
	if scrapeFlags.output != "" {
		c.OutputFolder = scrapeFlags.output
	}
	if scrapeFlags.transport != "" {
		c.Transport.Client = scrapeFlags.transport
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, pcfg, err := resolvePlatform()
	if err != nil {
		return err
	}
	applyScrapeFlags(pcfg)
	if err := pcfg.Validate(); err != nil {
		return err
	}
	if pcfg.Mode == config.ModeCacheEdit {
		return fmt.Errorf("%w: use 'romscraper cache edit' for cache edits", config.ErrInvalid)
	}
	if !p.Supports(pcfg.Scraper) {
		logging.Warn("Scraper is not listed for platform", "scraper", pcfg.Scraper, "platform", p.ID)
	}

	c, err := cache.Open(ctx, pcfg.GetCacheFolder())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = c.Close() }()

	transport, err := netcomm.New(pcfg.Transport.Client, pcfg.Transport.TimeoutDuration())
	if err != nil {
		return err
	}
	factory, err := scraper.NewFactory(ctx, pcfg.Scraper, scraper.Options{
		Config:    pcfg,
		Platform:  p,
		Transport: transport,
		Limiters:  ratelimit.NewRegistry(),
		Cache:     c,
	})
	if err != nil {
		return err
	}

	mode := engine.SelectMode(pcfg, len(args), 0)
	var bar *progressbar.ProgressBar
	opts := engine.Options{
		Config:   pcfg,
		Platform: p,
		Cache:    c,
		Backend:  pcfg.Scraper,
		Factory:  factory,
		Files:    args,
	}
	if !quiet && !jsonOutput {
		if mode == config.ModeSingle {
			opts.OnResult = func(_ engine.Result, merged *game.Record) {
				if merged != nil {
					fmt.Println(renderRecord(merged))
				}
			}
		} else {
			opts.OnQueued = func(total int) {
				bar = progressbar.Default(int64(total), "Scraping")
			}
			opts.OnResult = func(engine.Result, *game.Record) {
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}
	}

	eng, err := engine.New(opts)
	if err != nil {
		return err
	}
	summary, runErr := eng.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if summary == nil {
		return runErr
	}

	if !scrapeFlags.noExport && len(summary.Entries) > 0 {
		es := frontend.NewEmulationStation(pcfg.GetOutputFolder())
		if err := es.Export(ctx, summary.Entries, summary.Stats); err != nil {
			runErr = fmt.Errorf("export %s: %w", es.Name(), err)
		} else {
			printInfo("Wrote %d games to %s\n", len(summary.Entries), es.OutputFolder)
		}
	}

	printSummary(summary)
	if ctx.Err() != nil && summary.Remaining > 0 {
		printInfo("Interrupted, %d files left unprocessed\n", summary.Remaining)
	}
	return runErr
}

func printSummary(s *engine.Summary) {
	if jsonOutput {
		printJSON(map[string]any{
			"run_id":           s.RunID,
			"mode":             s.Mode,
			"backend":          s.Backend,
			"total":            s.Stats.Total,
			"found":            s.Stats.Found,
			"not_found":        s.Stats.NotFound,
			"remaining":        s.Remaining,
			"exhausted":        s.Exhausted,
			"avg_search_match": s.Stats.AvgSearchMatch(),
			"avg_completeness": s.Stats.AvgCompleteness(),
			"elapsed":          s.Stats.Elapsed.String(),
		})
		return
	}
	if quiet {
		return
	}

	rows := [][]string{
		{"Mode", s.Mode},
		{"Source", s.Backend},
		{"Files", humanize.Comma(int64(s.Stats.Total))},
		{"Found", humanize.Comma(int64(s.Stats.Found))},
		{"Not found", humanize.Comma(int64(s.Stats.NotFound))},
		{"Avg. search match", strconv.Itoa(s.Stats.AvgSearchMatch()) + "%"},
		{"Avg. completeness", strconv.Itoa(s.Stats.AvgCompleteness()) + "%"},
		{"Elapsed", s.Stats.Elapsed.Round(time.Millisecond).String()},
	}
	if s.Remaining > 0 {
		rows = append(rows, []string{"Left in queue", strconv.Itoa(s.Remaining)})
	}
	if s.Exhausted {
		rows = append(rows, []string{"Quota", "exhausted"})
	}
	printTable(os.Stdout, []string{"Run " + s.RunID[:8], ""}, rows)
}
