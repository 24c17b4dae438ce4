// Package scraper implements the metadata sources a run can scrape from.
package scraper

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ryanm101/romscraper/internal/cache"
	"github.com/ryanm101/romscraper/internal/config"
	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/netcomm"
	"github.com/ryanm101/romscraper/internal/platform"
	"github.com/ryanm101/romscraper/internal/ratelimit"
)

// Kind enumerates the source variants.
type Kind int

const (
	// Networked sources query a remote API.
	Networked Kind = iota
	// LocalExport sources read a frontend's existing gamelist.
	LocalExport
	// Offline sources read hand-made import folders.
	Offline
	// CacheSource reads back the local cache.
	CacheSource
)

func (k Kind) String() string {
	switch k {
	case Networked:
		return "networked"
	case LocalExport:
		return "local-export"
	case Offline:
		return "offline"
	case CacheSource:
		return "cache"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MatchMode tells whether search results need scoring.
type MatchMode int

const (
	// MatchOne sources return the right record or nothing.
	MatchOne MatchMode = iota
	// MatchMany sources return candidates that must be scored.
	MatchMany
)

// Backend is a metadata source. Each worker owns its own instance.
type Backend interface {
	Name() string
	Kind() Kind
	MatchMode() MatchMode
	// SearchNames turns the job's filename into ordered queries.
	SearchNames(job *game.Job) []string
	// Search returns zero or more partial records for a query.
	Search(ctx context.Context, name, platform string) ([]*game.Record, error)
	// FetchDetails fills the remaining fields and enabled assets of rec.
	// Fields that could not be fetched stay empty.
	FetchDetails(ctx context.Context, rec *game.Record) error
	// Remaining is the number of requests the source will still serve.
	Remaining() int
}

// Backend names.
const (
	NameIGDB       = "igdb"
	NameESGamelist = "esgamelist"
	NameImport     = "import"
	NameCache      = "cache"
)

// Names lists every backend name.
var Names = []string{NameIGDB, NameESGamelist, NameImport, NameCache}

// Unlimited is the Remaining value of sources without a request quota.
const Unlimited = math.MaxInt32

// Quota is shared by every instance a factory builds, so exhaustion seen by
// one worker stops the others.
type Quota struct {
	remaining atomic.Int64
}

// NewQuota creates a quota with n requests left.
func NewQuota(n int) *Quota {
	q := &Quota{}
	q.remaining.Store(int64(n))
	return q
}

// Remaining returns the requests left.
func (q *Quota) Remaining() int {
	return int(q.remaining.Load())
}

// Exhaust drops the quota to zero.
func (q *Quota) Exhaust() {
	q.remaining.Store(0)
}

// Options carry what a backend needs to be built.
type Options struct {
	Config    *config.Config
	Platform  *platform.Platform
	Transport netcomm.Transport
	Limiters  *ratelimit.Registry
	Cache     *cache.Cache

	// IGDB endpoints, overridable for tests.
	IGDBBaseURL   string
	TwitchAuthURL string
	// SkipPreflight disables the IGDB credential check.
	SkipPreflight bool
	// PreflightClient replaces the HTTP client of the credential check.
	PreflightClient *http.Client
}

func (o Options) media(kind game.AssetKind) bool {
	return o.Config != nil && o.Config.Media.Enabled(kind)
}

// Factory builds one backend instance per worker.
type Factory func() (Backend, error)

// NewFactory prepares the named backend for a run. Setup that may abort the
// run, such as fetching an API token, happens here once.
func NewFactory(ctx context.Context, name string, opts Options) (Factory, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: no configuration", config.ErrInvalid)
	}
	if opts.Limiters == nil {
		opts.Limiters = ratelimit.NewRegistry()
	}

	switch strings.ToLower(name) {
	case NameIGDB:
		return newIGDBFactory(ctx, opts)
	case NameESGamelist:
		return newESGamelistFactory(opts)
	case NameImport:
		return newImportFactory(opts)
	case NameCache:
		if opts.Cache == nil {
			return nil, fmt.Errorf("cache scraper needs an open cache")
		}
		return func() (Backend, error) { return NewCacheBackend(opts.Cache, opts.Config.Platform), nil }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
