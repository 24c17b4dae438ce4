// Package engine runs a scrape: it fills the job queue, drives the workers
// and merges their results into the cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/frontend"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/matcher"
	"github.com/ryanm101/romscraper/internal/metrics"
	"github.com/ryanm101/romscraper/internal/platform"
	"github.com/ryanm101/romscraper/internal/queue"
	"github.com/ryanm101/romscraper/internal/scraper"
	"github.com/ryanm101/romscraper/internal/tracing"
)

// Status is the outcome of one job. Values double as metric labels.
type Status string

const (
	StatusFound     Status = "found"
	StatusNotFound  Status = "not_found"
	StatusExhausted Status = "exhausted"
)

// Result is what a worker reports for a job.
type Result struct {
	Job      *game.Job
	Record   *game.Record // nil unless found
	Status   Status
	Err      error
	Duration time.Duration
}

// Options configure a run.
type Options struct {
	Config   *config.Config // already resolved for the platform
	Platform *platform.Platform
	Cache    *cache.Cache
	Backend  string
	Factory  scraper.Factory

	// Files are explicit input files. Empty means every matching file in
	// the input folder.
	Files []string
	Edits []Edit

	// OnQueued receives the number of jobs once the queue is filled.
	OnQueued func(total int)
	// OnResult is called by the collector for every finished job, after
	// the merge.
	OnResult func(Result, *game.Record)
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Mode      string
	Backend   string
	Stats     game.Stats
	Entries   []frontend.Entry
	Exhausted bool
	// Remaining counts jobs left in the queue after a stop signal.
	Remaining int
}

// Engine owns the queue and the worker pool for one run.
type Engine struct {
	opts Options

	mu   sync.Mutex
	done int
}

// New checks opts and creates an engine.
func New(opts Options) (*Engine, error) {
	var errs []error
	if opts.Config == nil {
		errs = append(errs, errors.New("no configuration"))
	}
	if opts.Cache == nil {
		errs = append(errs, errors.New("no cache"))
	}
	if opts.Factory == nil && len(opts.Edits) == 0 {
		errs = append(errs, errors.New("no scraper backend"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, errors.Join(errs...))
	}
	return &Engine{opts: opts}, nil
}

// Run executes the run in the mode SelectMode picks. The cache is flushed
// before Run returns, also when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	cfg := e.opts.Config
	summary := &Summary{
		RunID:   uuid.NewString(),
		Mode:    SelectMode(cfg, len(e.opts.Files), len(e.opts.Edits)),
		Backend: e.opts.Backend,
	}
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "engine.run", tracing.WithAttributes(
		attribute.String("run_id", summary.RunID),
		attribute.String("mode", summary.Mode),
		attribute.String("platform", cfg.Platform),
		attribute.String("backend", e.opts.Backend),
	))
	defer span.End()

	log := logging.ForRun(summary.RunID, cfg.Platform)
	log.Info("Starting run", "mode", summary.Mode, "backend", e.opts.Backend)

	var runErr error
	if summary.Mode == config.ModeCacheEdit {
		runErr = e.runCacheEdit(summary)
	} else {
		runErr = e.runScrape(ctx, summary)
	}

	// Flush whatever was merged, even after a stop signal.
	if err := e.opts.Cache.Flush(context.WithoutCancel(ctx)); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("flush cache: %w", err))
	}
	summary.Stats.Elapsed = time.Since(start)

	if runErr != nil {
		tracing.RecordError(span, runErr)
		return summary, runErr
	}
	tracing.AddSpanAttributes(span,
		attribute.Int("found", summary.Stats.Found),
		attribute.Int("not_found", summary.Stats.NotFound))
	tracing.SetSpanOK(span)

	log.Info("Run finished",
		"found", summary.Stats.Found,
		"not_found", summary.Stats.NotFound,
		"avg_search_match", summary.Stats.AvgSearchMatch(),
		"avg_completeness", summary.Stats.AvgCompleteness(),
		"elapsed", summary.Stats.Elapsed.Round(time.Millisecond))
	return summary, nil
}

func (e *Engine) jobs() ([]*game.Job, error) {
	if len(e.opts.Files) > 0 {
		jobs := make([]*game.Job, 0, len(e.opts.Files))
		for _, f := range e.opts.Files {
			jobs = append(jobs, game.NewJob(f))
		}
		return jobs, nil
	}
	return CollectJobs(e.opts.Config.GetInputFolder(), e.opts.Platform)
}

func (e *Engine) runScrape(ctx context.Context, summary *Summary) error {
	jobs, err := e.jobs()
	if err != nil {
		return err
	}
	summary.Stats.Total = len(jobs)
	if len(jobs) == 0 {
		logging.Warn("No input files found", "folder", e.opts.Config.GetInputFolder())
		return nil
	}

	q := queue.New(jobs...)
	metrics.QueueDepth.Set(float64(q.Len()))
	if e.opts.OnQueued != nil {
		e.opts.OnQueued(len(jobs))
	}
	col := e.newCollector(summary)

	workers := 1
	if summary.Mode == config.ModeThreaded {
		workers = min(max(e.opts.Config.Threads, 1), len(jobs))
	}

	if workers == 1 && summary.Mode != config.ModeThreaded {
		err = e.runInline(ctx, q, col)
	} else {
		err = e.runPool(ctx, q, workers, col)
	}

	summary.Remaining = q.Len()
	if !e.finished(workers, q) {
		logging.Warn("Run interrupted", "jobs_left", summary.Remaining)
	}
	return err
}

// runInline processes every job on the calling goroutine.
func (e *Engine) runInline(ctx context.Context, q *queue.Queue, col *collector) error {
	defer e.workerDone()
	b, err := e.opts.Factory()
	if err != nil {
		return fmt.Errorf("create %s backend: %w", e.opts.Backend, err)
	}
	e.work(ctx, b, q, col.handle)
	return nil
}

// runPool starts workers that report over a channel to a single collector.
func (e *Engine) runPool(ctx context.Context, q *queue.Queue, workers int, col *collector) error {
	results := make(chan Result, workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := range workers {
		g.Go(func() error {
			defer e.workerDone()
			b, err := e.opts.Factory()
			if err != nil {
				return fmt.Errorf("create %s backend for worker %d: %w", e.opts.Backend, i, err)
			}
			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()
			e.work(gctx, b, q, func(r Result) { results <- r })
			return nil
		})
	}

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	for r := range results {
		col.handle(r)
	}
	return waitErr
}

// work is the worker loop. ctx is checked before every pop; a job already
// popped runs to completion on a detached context.
func (e *Engine) work(ctx context.Context, b scraper.Backend, q *queue.Queue, emit func(Result)) {
	for ctx.Err() == nil {
		job, ok := q.Pop()
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(q.Len()))
		emit(e.process(context.WithoutCancel(ctx), b, job))
	}
}

// process runs search and fetch for one job.
func (e *Engine) process(ctx context.Context, b scraper.Backend, job *game.Job) Result {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "engine.job", tracing.WithAttributes(
		attribute.String("file", job.Name),
		attribute.String("backend", b.Name()),
	))
	defer span.End()

	result := func(rec *game.Record, status Status, err error) Result {
		tracing.AddSpanAttributes(span, attribute.String("status", string(status)))
		if err != nil {
			tracing.RecordError(span, err)
		}
		return Result{Job: job, Record: rec, Status: status, Err: err, Duration: time.Since(start)}
	}

	if b.Remaining() <= 0 {
		job.Tracef("source %s exhausted, not searching", b.Name())
		return result(nil, StatusExhausted, nil)
	}

	cfg := e.opts.Config
	m := matcher.New(cfg.GetMinMatch(), e.opts.Platform)
	m.Stop = matcher.IsStop(scraper.ErrExhausted)
	search := func(ctx context.Context, name string) ([]*game.Record, error) {
		return b.Search(ctx, name, cfg.Platform)
	}

	rec, err := m.Find(ctx, job, b.SearchNames(job), b.MatchMode() == scraper.MatchOne, search)
	switch {
	case errors.Is(err, scraper.ErrExhausted):
		return result(nil, StatusExhausted, err)
	case err != nil:
		job.Tracef("search failed: %v", err)
		return result(nil, StatusNotFound, err)
	case rec == nil:
		return result(nil, StatusNotFound, nil)
	}

	if err := b.FetchDetails(ctx, rec); err != nil {
		if errors.Is(err, scraper.ErrExhausted) {
			job.Tracef("source exhausted while fetching details: %v", err)
			return result(nil, StatusExhausted, err)
		}
		job.Tracef("details incomplete: %v", err)
	}
	if rec.Source == "" {
		rec.Source = b.Name()
	}
	return result(rec, StatusFound, nil)
}

func (e *Engine) workerDone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done++
}

// finished reports whether every worker exited and no job is left.
func (e *Engine) finished(workers int, q *queue.Queue) bool {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	return done == workers && q.IsEmpty()
}

// runCacheEdit applies field edits to cached entries without any network
// access.
func (e *Engine) runCacheEdit(summary *Summary) error {
	platformID := e.opts.Config.Platform
	summary.Stats.Total = len(e.opts.Edits)

	var errs []error
	for _, edit := range e.opts.Edits {
		key := cache.Key{Platform: platformID, Name: edit.Name}
		if err := e.opts.Cache.Edit(key, edit.Field, edit.Value); err != nil {
			summary.Stats.AddNotFound()
			errs = append(errs, err)
			logging.Warn("Cache edit skipped", "file", edit.Name, "field", edit.Field, "error", err)
			continue
		}
		rec, _ := e.opts.Cache.Get(key)
		summary.Stats.AddFound(rec)
		path := filepath.Join(e.opts.Config.GetInputFolder(), edit.Name)
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		summary.Entries = append(summary.Entries, frontend.Entry{Path: path, Record: rec})
		logging.Info("Cache entry edited", "file", edit.Name, "field", edit.Field)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d edits failed: %w", len(errs), len(e.opts.Edits), errors.Join(errs...))
	}
	return nil
}
