// Package ratelimit gates outbound requests to a source at a fixed minimum interval.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ryanm101/romscraper/internal/metrics"
)

// Limiter allows at most one request per Interval. It is safe for concurrent
// use; every worker talking to the same source must share one Limiter.
type Limiter struct {
	name     string
	interval time.Duration
	limiter  *rate.Limiter

	mu   sync.Mutex
	last time.Time

	// observe, when set, receives every release time. Used by tests.
	observe func(time.Time)
}

// New creates a limiter for the named source.
func New(name string, interval time.Duration) *Limiter {
	lim := rate.Inf
	if interval > 0 {
		lim = rate.Every(interval)
	}
	return &Limiter{
		name:     name,
		interval: interval,
		limiter:  rate.NewLimiter(lim, 1),
	}
}

// Interval returns the minimum spacing between two requests.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may issue its request or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	// rate.Limiter accounts from reservation time; the floor on the last
	// release keeps actual releases at least interval apart.
	if !l.last.IsZero() {
		if remaining := l.interval - time.Since(l.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	l.last = time.Now()
	if l.observe != nil {
		l.observe(l.last)
	}
	metrics.RateLimitWait.WithLabelValues(l.name).Observe(l.last.Sub(start).Seconds())
	return nil
}

// Registry hands out one shared Limiter per source name.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter for name, creating it with interval on first use.
// Later calls ignore interval and return the existing limiter.
func (r *Registry) Get(name string, interval time.Duration) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}
	l := New(name, interval)
	r.limiters[name] = l
	return l
}
