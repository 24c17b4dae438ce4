package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run gauges
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "romscraper_queue_depth",
		Help: "Number of jobs waiting in the scrape queue.",
	})
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "romscraper_active_workers",
		Help: "Number of scrape workers currently running.",
	})
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "romscraper_cache_entries",
		Help: "Number of records held by the cache.",
	})

	// Job outcomes
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "romscraper_jobs_total",
		Help: "Total number of scrape jobs processed.",
	}, []string{"backend", "status"}) // status: found, not_found, exhausted

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "romscraper_job_duration_seconds",
		Help:    "Duration of a single scrape job in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	// Network access
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "romscraper_requests_total",
		Help: "Total number of outbound source requests.",
	}, []string{"backend", "outcome"}) // outcome: ok, error, quota

	RateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "romscraper_ratelimit_wait_seconds",
		Help:    "Time spent waiting on a source rate limiter.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"backend"})

	// Cache
	CacheFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "romscraper_cache_flush_duration_seconds",
		Help:    "Duration of cache flushes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	CacheMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "romscraper_cache_merges_total",
		Help: "Total number of records merged into the cache.",
	}, []string{"policy"})
)

// RecordJob counts a finished job and its duration.
func RecordJob(backend, status string, start time.Time) {
	JobsProcessed.WithLabelValues(backend, status).Inc()
	JobDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// RecordFlush records the time taken for a cache flush.
func RecordFlush(start time.Time) {
	CacheFlushDuration.Observe(time.Since(start).Seconds())
}
