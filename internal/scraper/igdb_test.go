package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/ratelimit"
)

const igdbSearchReply = `[
  {"game": {"id": 1, "name": "Super Game",
    "platforms": [{"id": 18, "name": "Nintendo Entertainment System"}, {"id": 6, "name": "PC (Microsoft Windows)"}],
    "release_dates": [{"date": 663206400, "platform": 18}]}},
  {"game": null}
]`

const igdbGameReply = `[{
  "total_rating": 85.5,
  "summary": "<p>Jump &amp; run</p>",
  "genres": [{"id": 8, "name": "Platform"}, {"id": 31, "name": "Adventure"}],
  "game_modes": [{"id": 1}, {"id": 2}],
  "age_ratings": [{"rating": 8, "category": 1}],
  "involved_companies": [
    {"company": {"id": 1, "name": "Pub Co"}, "developer": false, "publisher": true},
    {"company": {"id": 2, "name": "Dev Co"}, "developer": true, "publisher": false}
  ],
  "release_dates": [
    {"date": 0, "platform": 18, "region": 1},
    {"date": 663206400, "platform": 18, "region": 2}
  ],
  "cover": {"url": "%s/igdb/image/t_thumb/abc.jpg"}
}]`

type igdbServer struct {
	*httptest.Server
	requests atomic.Int32
	status   int
	reply    string
}

func newIGDBServer(t *testing.T) *igdbServer {
	t.Helper()
	s := &igdbServer{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		assert.Equal(t, "test-id", r.Header.Get("Client-ID"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `search "Super Game"`)
		if s.status != http.StatusOK {
			w.WriteHeader(s.status)
			return
		}
		if s.reply != "" {
			_, _ = io.WriteString(w, s.reply)
			return
		}
		_, _ = io.WriteString(w, igdbSearchReply)
	})
	mux.HandleFunc("/games/", func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "where id = 1;")
		_, _ = fmt.Fprintf(w, igdbGameReply, s.URL)
	})
	mux.HandleFunc("/igdb/image/t_cover_big/abc.jpg", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "jpeg-bytes")
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestIGDB(t *testing.T, srv *igdbServer) Factory {
	t.Helper()
	return newTestIGDBInterval(t, srv, time.Millisecond)
}

func newTestIGDBInterval(t *testing.T, srv *igdbServer, interval time.Duration) Factory {
	t.Helper()
	cfg := testConfig(t)
	cfg.IGDB.ClientID = "test-id"
	cfg.IGDB.Token = "test-token"

	limiters := ratelimit.NewRegistry()
	limiters.Get(NameIGDB, interval)

	factory, err := NewFactory(context.Background(), NameIGDB, Options{
		Config:        cfg,
		Platform:      testPlatform(t),
		Limiters:      limiters,
		IGDBBaseURL:   srv.URL,
		SkipPreflight: true,
	})
	require.NoError(t, err)
	return factory
}

func TestIGDB_SearchAndFetch(t *testing.T) {
	srv := newIGDBServer(t)
	b, err := newTestIGDB(t, srv)()
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, Networked, b.Kind())
	assert.Equal(t, MatchMany, b.MatchMode())

	results, err := b.Search(ctx, "Super Game", "nes")
	require.NoError(t, err)
	require.Len(t, results, 1, "PC release is filtered out")

	rec := results[0]
	assert.Equal(t, "1;18", rec.ID)
	assert.Equal(t, "Super Game", rec.Title)
	assert.Equal(t, "Nintendo Entertainment System", rec.Platform)
	assert.Equal(t, "1991-01-07", rec.ReleaseDate)

	require.NoError(t, b.FetchDetails(ctx, rec))
	assert.Equal(t, "1991-01-07", rec.ReleaseDate)
	assert.Equal(t, "0.855", rec.Rating)
	assert.Equal(t, "Pub Co", rec.Publisher)
	assert.Equal(t, "Dev Co", rec.Developer)
	assert.Equal(t, "Jump & run", rec.Description)
	assert.Equal(t, "2", rec.Players)
	assert.Equal(t, "Platform, Adventure", rec.Tags)
	assert.Equal(t, "E", rec.Ages)

	cover, ok := rec.Asset(game.Cover)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-bytes"), cover.Data)
}

func TestIGDB_FetchDetailsInvalidID(t *testing.T) {
	srv := newIGDBServer(t)
	b, err := newTestIGDB(t, srv)()
	require.NoError(t, err)

	err = b.FetchDetails(context.Background(), &game.Record{ID: "abc"})
	assert.Error(t, err)
	assert.Zero(t, srv.requests.Load())
}

func TestIGDB_QuotaSharedAcrossInstances(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"rate limited", http.StatusTooManyRequests},
		{"credentials rejected", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newIGDBServer(t)
			srv.status = tt.status
			factory := newTestIGDB(t, srv)

			first, err := factory()
			require.NoError(t, err)
			second, err := factory()
			require.NoError(t, err)

			_, err = first.Search(context.Background(), "Super Game", "nes")
			require.ErrorIs(t, err, ErrExhausted)
			assert.Equal(t, 0, first.Remaining())
			assert.Equal(t, 0, second.Remaining())

			_, err = second.Search(context.Background(), "Super Game", "nes")
			require.ErrorIs(t, err, ErrExhausted)
			assert.Equal(t, int32(1), srv.requests.Load(), "exhausted source must not send")
		})
	}
}

func TestIGDB_InBandLimitStopsConcurrentWorkers(t *testing.T) {
	srv := newIGDBServer(t)
	srv.reply = `{"message":"Too Many Requests"}`
	factory := newTestIGDBInterval(t, srv, 200*time.Millisecond)

	const workers = 4
	backends := make([]Backend, workers)
	for i := range backends {
		b, err := factory()
		require.NoError(t, err)
		backends[i] = b
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i, b := range backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = b.Search(context.Background(), "Super Game", "nes")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.ErrorIs(t, err, ErrExhausted, "worker %d", i)
		assert.Equal(t, 0, backends[i].Remaining())
	}
	assert.Equal(t, int32(1), srv.requests.Load(), "workers queued on the limiter must not send")
}

func TestIGDB_SearchEscapesQuery(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	b, err := newTestIGDB(t, &igdbServer{Server: srv})()
	require.NoError(t, err)

	_, err = b.Search(context.Background(), `Dir\ "Quoted"`, "nes")
	require.NoError(t, err)
	assert.Contains(t, <-bodies, `search "Dir\\ \"Quoted\"";`)
}

func TestQuoteEscaper(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain", "Plain"},
		{`Say "Hi"`, `Say \"Hi\"`},
		{`Back\slash`, `Back\\slash`},
		{`End\`, `End\\`},
		{`\"`, `\\\"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quoteEscaper.Replace(tt.in), tt.in)
	}
}

// rewriteTransport sends every request to target instead of its own host.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestNewFactory_IGDBPreflightWaitsOnLimiter(t *testing.T) {
	const interval = 200 * time.Millisecond

	var mu sync.Mutex
	var preflightAt, searchAt time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/v4/games"):
			preflightAt = time.Now()
			_, _ = io.WriteString(w, `[{"id": 1}]`)
		case strings.HasPrefix(r.URL.Path, "/search/"):
			searchAt = time.Now()
			_, _ = io.WriteString(w, `[]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.IGDB.ClientID = "test-id"
	cfg.IGDB.Token = "test-token"
	limiters := ratelimit.NewRegistry()
	limiters.Get(NameIGDB, interval)

	factory, err := NewFactory(context.Background(), NameIGDB, Options{
		Config:          cfg,
		Platform:        testPlatform(t),
		Limiters:        limiters,
		IGDBBaseURL:     srv.URL,
		PreflightClient: &http.Client{Transport: rewriteTransport{target: target}},
	})
	require.NoError(t, err)

	b, err := factory()
	require.NoError(t, err)
	_, err = b.Search(context.Background(), "Super Game", "nes")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, preflightAt.IsZero(), "credential check was not sent")
	require.False(t, searchAt.IsZero(), "search was not sent")
	assert.GreaterOrEqual(t, searchAt.Sub(preflightAt), interval-50*time.Millisecond)
}

func TestNewFactory_IGDBPreflightHonoursContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.IGDB.ClientID = "test-id"
	cfg.IGDB.Token = "test-token"

	limiters := ratelimit.NewRegistry()
	require.NoError(t, limiters.Get(NameIGDB, time.Hour).Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFactory(ctx, NameIGDB, Options{
		Config:   cfg,
		Platform: testPlatform(t),
		Limiters: limiters,
		PreflightClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Error("credential check sent before the limiter released")
			return nil, context.Canceled
		})},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestIGDB_TwitchToken(t *testing.T) {
	var gotForm string
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotForm = r.PostForm.Encode()
		_, _ = io.WriteString(w, `{"access_token": "test-token", "expires_in": 3600}`)
	}))
	t.Cleanup(auth.Close)
	srv := newIGDBServer(t)

	cfg := testConfig(t)
	cfg.IGDB.ClientID = "test-id"
	cfg.IGDB.ClientSecret = "secret"

	factory, err := NewFactory(context.Background(), NameIGDB, Options{
		Config:        cfg,
		Platform:      testPlatform(t),
		IGDBBaseURL:   srv.URL,
		TwitchAuthURL: auth.URL,
		SkipPreflight: true,
	})
	require.NoError(t, err)
	assert.Contains(t, gotForm, "grant_type=client_credentials")

	b, err := factory()
	require.NoError(t, err)
	_, err = b.Search(context.Background(), "Super Game", "nes")
	require.NoError(t, err)
}

func TestIGDB_TwitchTokenRejected(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(auth.Close)

	cfg := testConfig(t)
	cfg.IGDB.ClientID = "test-id"
	cfg.IGDB.ClientSecret = "bad"

	_, err := NewFactory(context.Background(), NameIGDB, Options{
		Config:        cfg,
		Platform:      testPlatform(t),
		TwitchAuthURL: auth.URL,
		SkipPreflight: true,
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Twitch"))
}

func TestTooManyRequests(t *testing.T) {
	assert.True(t, tooManyRequests([]byte(`{"message":"Too Many Requests"}`)))
	assert.False(t, tooManyRequests([]byte(`[]`)))
	assert.False(t, tooManyRequests(nil))
}

func TestImageURL(t *testing.T) {
	assert.Equal(t, "https://images.igdb.com/t_cover_big/x.jpg", imageURL("//images.igdb.com/t_thumb/x.jpg", "t_cover_big"))
}

func TestPlayersFromModes(t *testing.T) {
	assert.Equal(t, "1", playersFromModes(nil))
	assert.Equal(t, "1", playersFromModes([]int{1}))
	assert.Equal(t, "2", playersFromModes([]int{1, 3}))
}
