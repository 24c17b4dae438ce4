// Package matcher derives search names from ROM filenames and picks the best
// scoring candidate out of a source's search results.
package matcher

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/platform"
)

// DefaultMinMatch is the lowest score accepted when none is configured.
const DefaultMinMatch = 65

var (
	bracketed  = regexp.MustCompile(`\s*[\(\[\{][^\)\]\}]*[\)\]\}]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// SearchFunc runs one query against a source.
type SearchFunc func(ctx context.Context, name string) ([]*game.Record, error)

// Matcher picks search results for a platform.
type Matcher struct {
	MinMatch int
	Platform *platform.Platform

	// Stop reports errors that must end the search instead of moving on to
	// the next name, such as an exhausted source.
	Stop func(error) bool
}

// New creates a matcher. A minMatch of zero selects DefaultMinMatch.
func New(minMatch int, p *platform.Platform) *Matcher {
	if minMatch <= 0 {
		minMatch = DefaultMinMatch
	}
	return &Matcher{MinMatch: minMatch, Platform: p}
}

// Find issues names in order until one yields an acceptable candidate.
// With matchOne set the first record returned is taken as an exact match.
// The chosen record gets its SearchMatch set; nil means not found.
func (m *Matcher) Find(ctx context.Context, job *game.Job, names []string, matchOne bool, search SearchFunc) (*game.Record, error) {
	if len(names) == 0 {
		job.Tracef("no search names derived from %q", job.Name)
		return nil, nil
	}

	for _, name := range names {
		results, err := search(ctx, name)
		if err != nil {
			if m.Stop != nil && m.Stop(err) {
				job.Tracef("search %q aborted: %v", name, err)
				return nil, err
			}
			job.Tracef("search %q failed: %v", name, err)
			continue
		}
		job.Tracef("search %q returned %d result(s)", name, len(results))
		if len(results) == 0 {
			continue
		}

		if matchOne {
			rec := results[0]
			rec.SearchMatch = 100
			job.Tracef("accepted %q as exact match", rec.Title)
			return rec, nil
		}

		if rec := m.Best(job, results); rec != nil {
			return rec, nil
		}
	}

	job.Tracef("no acceptable candidate for %q", job.Name)
	return nil, nil
}

// Best scores every result against the job's filename and returns the
// highest scoring one on an equivalent platform. Ties keep the earlier result.
// It returns nil when the best score is below MinMatch.
func (m *Matcher) Best(job *game.Job, results []*game.Record) *game.Record {
	var best *game.Record
	bestScore := -1

	for _, rec := range results {
		if rec == nil {
			continue
		}
		if !m.samePlatform(rec.Platform) {
			job.Tracef("candidate %q discarded: platform %q", rec.Title, rec.Platform)
			continue
		}
		score := Score(job.Name, rec.Title)
		job.Tracef("candidate %q (%s) scored %d", rec.Title, rec.Platform, score)
		if score > bestScore {
			best, bestScore = rec, score
		}
	}

	if best == nil {
		return nil
	}
	minScore := m.MinMatch
	if minScore <= 0 {
		minScore = DefaultMinMatch
	}
	if bestScore < minScore {
		job.Tracef("best candidate %q rejected: score %d below %d", best.Title, bestScore, minScore)
		return nil
	}

	best.SearchMatch = bestScore
	job.Tracef("selected %q with score %d", best.Title, bestScore)
	return best
}

// samePlatform treats an unreported platform as equivalent.
func (m *Matcher) samePlatform(name string) bool {
	if m.Platform == nil || name == "" {
		return true
	}
	return m.Platform.Matches(name)
}

// Score returns the Jaro-Winkler similarity of the normalized filename and
// title, scaled to 0-100.
func Score(filename, title string) int {
	a, b := Normalize(stripExt(filename)), Normalize(title)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	return int(math.Round(matchr.JaroWinkler(a, b, false) * 100))
}

// Normalize prepares a title for comparison: bracketed tags, case and
// punctuation are removed and a trailing ", The" is moved to the front.
func Normalize(s string) string {
	s = bracketed.ReplaceAllString(s, "")
	s = strings.ToLower(strings.TrimSpace(s))
	s = moveArticle(s)
	s = strings.ReplaceAll(s, "&", "and")

	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SearchNames derives the ordered queries a networked source is asked for:
// an alias configured for the file, the filename with tags stripped, and the
// same without its subtitle.
func SearchNames(filename string, aliases map[string]string) []string {
	var names []string
	add := func(n string) {
		n = strings.TrimSpace(n)
		if n == "" {
			return
		}
		for _, existing := range names {
			if strings.EqualFold(existing, n) {
				return
			}
		}
		names = append(names, n)
	}

	if alias, ok := lookupAlias(filename, aliases); ok {
		add(alias)
	}

	title := CleanTitle(filename)
	add(title)

	for _, sep := range []string{" - ", ": "} {
		if i := strings.Index(title, sep); i > 0 {
			add(title[:i])
			break
		}
	}
	return names
}

// CleanTitle strips extension and bracketed tags and restores a trailing
// article, keeping case and punctuation.
func CleanTitle(filename string) string {
	s := stripExt(filename)
	s = bracketed.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.ReplaceAll(s, "_", " ")
	return moveArticle(s)
}

func lookupAlias(filename string, aliases map[string]string) (string, bool) {
	if len(aliases) == 0 {
		return "", false
	}
	if a, ok := aliases[filename]; ok {
		return a, true
	}
	if a, ok := aliases[stripExt(filename)]; ok {
		return a, true
	}
	return "", false
}

func stripExt(s string) string {
	ext := filepath.Ext(s)
	// keep titles like "Dr. Mario" intact
	if ext == "" || strings.ContainsAny(ext, " ") || len(ext) > 5 {
		return s
	}
	return strings.TrimSuffix(s, ext)
}

func moveArticle(s string) string {
	for _, article := range []string{"The", "A", "An"} {
		for _, suffix := range []string{", " + article, ", " + strings.ToLower(article)} {
			if base, rest, ok := strings.Cut(s, suffix); ok {
				if rest == "" || strings.HasPrefix(rest, " - ") || strings.HasPrefix(rest, ":") {
					prefix := article
					if suffix[2] >= 'a' {
						prefix = strings.ToLower(article)
					}
					return prefix + " " + base + rest
				}
			}
		}
	}
	return s
}

// IsStop builds a Matcher.Stop func matching any of targets.
func IsStop(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}
