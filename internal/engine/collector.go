package engine

import (
	"time"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/frontend"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/metrics"
)

// collector merges worker results into the cache. It runs on one goroutine,
// so its state needs no lock.
type collector struct {
	e       *Engine
	summary *Summary
	policy  cache.Policy
	media   cache.MediaFilter
}

func (e *Engine) newCollector(summary *Summary) *collector {
	cfg := e.opts.Config
	policy := cache.PolicyMerge
	if cfg.Refresh {
		policy = cache.PolicyOverwrite
	}
	return &collector{
		e:       e,
		summary: summary,
		policy:  policy,
		media:   cfg.Media.Enabled,
	}
}

func (c *collector) handle(r Result) {
	cfg := c.e.opts.Config
	key := cache.KeyFor(cfg.Platform, r.Job)
	metrics.RecordJob(c.e.opts.Backend, string(r.Status), time.Now().Add(-r.Duration))

	var merged *game.Record
	switch r.Status {
	case StatusFound:
		merged = c.e.opts.Cache.Merge(key, r.Record, c.policy, c.media)
		c.summary.Stats.AddFound(merged)
	default:
		if r.Status == StatusExhausted {
			c.summary.Exhausted = true
		}
		c.summary.Stats.AddNotFound()
		// Not found this run; earlier cached data is still exported.
		if cached, ok := c.e.opts.Cache.Get(key); ok {
			merged = cached
		}
	}
	if merged != nil {
		c.summary.Entries = append(c.summary.Entries, frontend.Entry{Path: r.Job.Path, Record: merged})
	}

	c.log(r, merged)
	if c.e.opts.OnResult != nil {
		c.e.opts.OnResult(r, merged)
	}
}

func (c *collector) log(r Result, merged *game.Record) {
	log := logging.ForJob(r.Job.Name, c.e.opts.Backend)

	if c.summary.Mode == config.ModeSingle {
		for _, line := range r.Job.Trace() {
			log.Info(line)
		}
	} else {
		log.Debug("job trace", "trace", r.Job.TraceText())
	}

	switch r.Status {
	case StatusFound:
		log.Info("Scraped",
			"title", r.Record.Title,
			"search_match", r.Record.SearchMatch,
			"completeness", merged.Completeness(),
			"duration", r.Duration.Round(time.Millisecond))
	case StatusExhausted:
		log.Warn("Source exhausted, job skipped")
	default:
		if r.Err != nil {
			log.Warn("Not found", "error", r.Err)
		} else {
			log.Info("Not found")
		}
	}
}
