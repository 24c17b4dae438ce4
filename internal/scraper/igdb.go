package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/matcher"
	"github.com/ryanm101/romscraper/internal/metrics"
	"github.com/ryanm101/romscraper/internal/netcomm"
	"github.com/ryanm101/romscraper/internal/platform"
	"github.com/ryanm101/romscraper/internal/ratelimit"
	"github.com/ryanm101/romscraper/internal/tracing"
)

const (
	igdbBaseURL   = "https://api.igdb.com/v4"
	twitchAuthURL = "https://id.twitch.tv/oauth2/token"

	// IGDB allows four requests per second; stay a little above one second
	// between requests per source.
	igdbInterval = 1100 * time.Millisecond

	igdbSearchFields = "game.name,game.platforms.name,game.release_dates.date,game.release_dates.platform"
	igdbGameFields   = "age_ratings.rating,age_ratings.category,total_rating,cover.url,game_modes.slug," +
		"genres.name,screenshots.url,summary,release_dates.date,release_dates.region," +
		"release_dates.platform,involved_companies.company.name,involved_companies.developer," +
		"involved_companies.publisher"
)

type igdbNamed struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type igdbReleaseDate struct {
	Date     int64 `json:"date"`
	Platform int   `json:"platform"`
	Region   int   `json:"region"`
}

type igdbImage struct {
	URL string `json:"url"`
}

type igdbSearchResult struct {
	Game *struct {
		ID           int               `json:"id"`
		Name         string            `json:"name"`
		Platforms    []igdbNamed       `json:"platforms"`
		ReleaseDates []igdbReleaseDate `json:"release_dates"`
	} `json:"game"`
}

type igdbGame struct {
	AgeRatings []struct {
		Rating   int `json:"rating"`
		Category int `json:"category"`
	} `json:"age_ratings"`
	TotalRating       float64           `json:"total_rating"`
	Cover             *igdbImage        `json:"cover"`
	GameModes         []igdbNamed       `json:"game_modes"`
	Genres            []igdbNamed       `json:"genres"`
	Screenshots       []igdbImage       `json:"screenshots"`
	Summary           string            `json:"summary"`
	ReleaseDates      []igdbReleaseDate `json:"release_dates"`
	InvolvedCompanies []struct {
		Company   igdbNamed `json:"company"`
		Developer bool      `json:"developer"`
		Publisher bool      `json:"publisher"`
	} `json:"involved_companies"`
}

// IGDB is the networked source backed by the IGDB v4 API.
type IGDB struct {
	baseURL   string
	clientID  string
	token     string
	transport netcomm.Transport
	limiter   *ratelimit.Limiter
	quota     *Quota
	platform  *platform.Platform
	opts      Options
}

func newIGDBFactory(ctx context.Context, opts Options) (Factory, error) {
	creds := opts.Config.IGDB
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: igdb client_id is required", ErrCredentials)
	}
	if opts.Platform == nil {
		return nil, fmt.Errorf("igdb needs a platform")
	}

	timeout := opts.Config.Transport.TimeoutDuration()
	if opts.Transport == nil {
		opts.Transport = netcomm.NewResty(timeout)
	}

	token := creds.Token
	if token == "" {
		if creds.ClientSecret == "" {
			return nil, fmt.Errorf("%w: igdb client_secret is required", ErrCredentials)
		}
		authURL := opts.TwitchAuthURL
		if authURL == "" {
			authURL = twitchAuthURL
		}
		rt, ok := opts.Transport.(*netcomm.RestyTransport)
		if !ok {
			rt = netcomm.NewResty(timeout)
		}
		var err error
		token, err = getTwitchToken(ctx, rt.Client(), authURL, creds.ClientID, creds.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate with Twitch: %w", err)
		}
		logging.Debug("fetched twitch token", "backend", NameIGDB)
	}

	quota := NewQuota(Unlimited)
	limiter := opts.Limiters.Get(NameIGDB, igdbInterval)

	if !opts.SkipPreflight {
		// The credential check counts against the same request interval.
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		client := opts.PreflightClient
		if client == nil {
			client = &http.Client{Timeout: timeout}
		}
		if err := preflightIGDB(creds.ClientID, token, client); err != nil {
			return nil, fmt.Errorf("igdb credential check failed: %w", err)
		}
	}

	baseURL := opts.IGDBBaseURL
	if baseURL == "" {
		baseURL = igdbBaseURL
	}

	return func() (Backend, error) {
		return &IGDB{
			baseURL:   strings.TrimSuffix(baseURL, "/"),
			clientID:  creds.ClientID,
			token:     token,
			transport: opts.Transport,
			limiter:   limiter,
			quota:     quota,
			platform:  opts.Platform,
			opts:      opts,
		}, nil
	}, nil
}

func (b *IGDB) Name() string         { return NameIGDB }
func (b *IGDB) Kind() Kind           { return Networked }
func (b *IGDB) MatchMode() MatchMode { return MatchMany }
func (b *IGDB) Remaining() int       { return b.quota.Remaining() }

func (b *IGDB) SearchNames(job *game.Job) []string {
	return matcher.SearchNames(job.Name, b.opts.Config.Aliases)
}

func (b *IGDB) Search(ctx context.Context, name, platformID string) ([]*game.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "igdb.search", tracing.WithAttributes(attribute.String("query", name)))
	defer span.End()

	payload := fmt.Sprintf(`fields %s; search "%s"; where game != null & game.version_parent = null;`,
		igdbSearchFields, quoteEscaper.Replace(name))
	body, err := b.send(ctx, "search", "/search/", payload)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var results []igdbSearchResult
	if len(body) == 0 || json.Unmarshal(body, &results) != nil {
		return nil, nil
	}

	var records []*game.Record
	for _, res := range results {
		if res.Game == nil {
			continue
		}
		for _, p := range res.Game.Platforms {
			matched := b.platform.Matches(p.Name)
			if !matched && !b.platform.IGDBPlatform(p.ID) {
				continue
			}
			rec := &game.Record{
				ID:       fmt.Sprintf("%d;%d", res.Game.ID, p.ID),
				Source:   NameIGDB,
				Title:    res.Game.Name,
				Platform: p.Name,
			}
			if !matched {
				rec.Platform = platformID
			}
			for _, d := range res.Game.ReleaseDates {
				if d.Platform == p.ID && d.Date != 0 {
					rec.ReleaseDate = formatUnixDate(d.Date)
				}
			}
			records = append(records, rec)
		}
	}
	tracing.AddSpanAttributes(span, attribute.Int("results", len(records)))
	return records, nil
}

func (b *IGDB) FetchDetails(ctx context.Context, rec *game.Record) error {
	ctx, span := tracing.StartSpan(ctx, "igdb.fetch", tracing.WithAttributes(attribute.String("id", rec.ID)))
	defer span.End()

	gameID, platformID, _ := strings.Cut(rec.ID, ";")
	if _, err := strconv.Atoi(gameID); err != nil {
		return sourceErr(NameIGDB, "fetch", fmt.Errorf("invalid IGDB ID: %s", rec.ID))
	}

	body, err := b.send(ctx, "fetch", "/games/", fmt.Sprintf("fields %s; where id = %s;", igdbGameFields, gameID))
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	var games []igdbGame
	if len(body) == 0 || json.Unmarshal(body, &games) != nil || len(games) == 0 {
		return nil
	}
	g := games[0]

	if date := b.releaseDate(g.ReleaseDates, platformID); date != "" {
		rec.ReleaseDate = date
	}
	if g.TotalRating != 0 {
		rec.Rating = strconv.FormatFloat(g.TotalRating/100, 'g', 6, 64)
	}
	for _, c := range g.InvolvedCompanies {
		if c.Publisher && rec.Publisher == "" {
			rec.Publisher = c.Company.Name
		}
		if c.Developer && rec.Developer == "" {
			rec.Developer = c.Company.Name
		}
	}
	rec.Description = stripHTML(g.Summary)

	modes := make([]int, 0, len(g.GameModes))
	for _, m := range g.GameModes {
		modes = append(modes, m.ID)
	}
	rec.Players = playersFromModes(modes)

	genres := make([]string, 0, len(g.Genres))
	for _, genre := range g.Genres {
		genres = append(genres, genre.Name)
	}
	rec.Tags = strings.Join(genres, ", ")

	if len(g.AgeRatings) > 0 {
		rec.Ages = igdbAgeRatings[g.AgeRatings[0].Rating]
	}

	var errs []error
	if b.opts.media(game.Cover) && g.Cover != nil && g.Cover.URL != "" {
		if err := b.download(ctx, rec, game.Cover, imageURL(g.Cover.URL, "t_cover_big")); err != nil {
			errs = append(errs, err)
		}
	}
	if b.opts.media(game.Screenshot) && len(g.Screenshots) > 0 && g.Screenshots[0].URL != "" {
		if err := b.download(ctx, rec, game.Screenshot, imageURL(g.Screenshots[0].URL, "t_screenshot_big")); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// releaseDate picks the date for platformID in the first region of the
// configured priorities that has one.
func (b *IGDB) releaseDate(dates []igdbReleaseDate, platformID string) string {
	for _, region := range b.opts.Config.RegionPrios {
		for _, d := range dates {
			if strconv.Itoa(d.Platform) == platformID && igdbRegions[d.Region] == region && d.Date != 0 {
				return formatUnixDate(d.Date)
			}
		}
	}
	return ""
}

func (b *IGDB) headers() map[string]string {
	return map[string]string{
		"Client-ID":     b.clientID,
		"Authorization": "Bearer " + b.token,
		"Accept":        "application/json",
	}
}

// send waits on the shared limiter and posts an apicalypse query. Credential
// rejections and rate limit replies exhaust the source for the whole run.
func (b *IGDB) send(ctx context.Context, op, path, payload string) ([]byte, error) {
	if b.quota.Remaining() <= 0 {
		return nil, sourceErr(NameIGDB, op, ErrExhausted)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, sourceErr(NameIGDB, op, err)
	}
	// Another worker may have exhausted the quota while this one waited.
	if b.quota.Remaining() <= 0 {
		return nil, sourceErr(NameIGDB, op, ErrExhausted)
	}

	body, err := b.transport.Send(ctx, netcomm.Request{
		Target:  b.baseURL + path,
		Payload: []byte(payload),
		Headers: b.headers(),
	})

	var se *netcomm.StatusError
	switch {
	case errors.As(err, &se) && se.Unauthorized():
		return nil, b.exhaust(op, fmt.Errorf("credentials rejected (status %d)", se.Code))
	case errors.As(err, &se) && (se.Code == http.StatusTooManyRequests || tooManyRequests(se.Body)):
		return nil, b.exhaust(op, errors.New("requests per second limit exceeded"))
	case err != nil:
		metrics.Requests.WithLabelValues(NameIGDB, "error").Inc()
		return nil, sourceErr(NameIGDB, op, err)
	case tooManyRequests(body):
		return nil, b.exhaust(op, errors.New("requests per second limit exceeded"))
	}

	metrics.Requests.WithLabelValues(NameIGDB, "ok").Inc()
	return body, nil
}

func (b *IGDB) exhaust(op string, reason error) error {
	b.quota.Exhaust()
	metrics.Requests.WithLabelValues(NameIGDB, "quota").Inc()
	logging.Error("igdb can't continue", "reason", reason)
	return sourceErr(NameIGDB, op, fmt.Errorf("%w: %v", ErrExhausted, reason))
}

func (b *IGDB) download(ctx context.Context, rec *game.Record, kind game.AssetKind, url string) error {
	data, err := b.transport.Send(ctx, netcomm.Request{Target: url})
	if err != nil {
		return sourceErr(NameIGDB, "download "+string(kind), err)
	}
	rec.SetAsset(kind, data, "")
	return nil
}

// quoteEscaper escapes a search term for an apicalypse string literal.
var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// tooManyRequests detects IGDB's in-band rate limit reply.
func tooManyRequests(body []byte) bool {
	if len(body) == 0 || body[0] != '{' {
		return false
	}
	var msg struct {
		Message string `json:"message"`
	}
	return json.Unmarshal(body, &msg) == nil && msg.Message == "Too Many Requests"
}

// imageURL turns IGDB's protocol-relative thumbnail URL into the given size.
func imageURL(raw, size string) string {
	u := strings.Replace(raw, "t_thumb", size, 1)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	return u
}

func formatUnixDate(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02")
}
