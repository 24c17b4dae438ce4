package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"

	"github.com/ryanm101/romscraper/internal/game"
	"github.com/ryanm101/romscraper/internal/logging"
	"github.com/ryanm101/romscraper/internal/metrics"
	"github.com/ryanm101/romscraper/internal/tracing"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func openDB(path string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", path,
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// a single connection keeps pragmas applied and serialises writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", p, err)
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run cache migrations: %w", err)
	}
	return nil
}

func (c *Cache) load(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `
		SELECT platform, name, source_id, source, title, record_platform, release_date,
		       developer, publisher, players, rating, ages, tags, description,
		       search_match, updated_at
		FROM records`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key     Key
			rec     game.Record
			cols    [12]sql.NullString
			updated time.Time
		)
		if err := rows.Scan(&key.Platform, &key.Name,
			&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6],
			&cols[7], &cols[8], &cols[9], &cols[10], &cols[11],
			&rec.SearchMatch, &updated); err != nil {
			return err
		}
		rec.ID, rec.Source, rec.Title, rec.Platform = cols[0].String, cols[1].String, cols[2].String, cols[3].String
		rec.ReleaseDate, rec.Developer, rec.Publisher = cols[4].String, cols[5].String, cols[6].String
		rec.Players, rec.Rating, rec.Ages = cols[7].String, cols[8].String, cols[9].String
		rec.Tags, rec.Description = cols[10].String, cols[11].String

		c.entries[key] = &rec
		c.updated[key] = updated
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return c.loadAssets(ctx)
}

func (c *Cache) loadAssets(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, `SELECT platform, name, kind, sha1, format FROM assets`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key          Key
			kind, hash   string
			formatColumn sql.NullString
		)
		if err := rows.Scan(&key.Platform, &key.Name, &kind, &hash, &formatColumn); err != nil {
			return err
		}
		rec, ok := c.entries[key]
		if !ok {
			continue
		}
		data, err := c.readAsset(hash)
		if err != nil {
			logging.Warn("cached asset missing", "key", key.String(), "kind", kind, "error", err)
			continue
		}
		rec.SetAsset(game.AssetKind(kind), data, formatColumn.String)
	}
	return rows.Err()
}

// Flush persists every changed entry in one transaction. Asset files are
// written before the commit, so a failed flush leaves the previous state.
func (c *Cache) Flush(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "cache.flush")
	defer func() {
		if err != nil {
			tracing.RecordError(span, err)
		}
		span.End()
	}()
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.dirty) == 0 && len(c.deleted) == 0 {
		return nil
	}

	type pendingAsset struct {
		kind   game.AssetKind
		hash   string
		format string
		size   int
	}
	assets := make(map[Key][]pendingAsset, len(c.dirty))
	for key := range c.dirty {
		rec := c.entries[key]
		for _, kind := range game.AssetKinds {
			a, ok := rec.Asset(kind)
			if !ok {
				continue
			}
			hash, err := c.writeAsset(a.Data)
			if err != nil {
				return fmt.Errorf("flush %s: %w", key, err)
			}
			assets[key] = append(assets[key], pendingAsset{kind: kind, hash: hash, format: a.Format, size: len(a.Data)})
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for key := range c.deleted {
		if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE platform = ? AND name = ?`, key.Platform, key.Name); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	for key := range c.dirty {
		rec := c.entries[key]
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO records (platform, name, source_id, source, title, record_platform, release_date,
			                     developer, publisher, players, rating, ages, tags, description,
			                     search_match, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (platform, name) DO UPDATE SET
				source_id = excluded.source_id, source = excluded.source, title = excluded.title,
				record_platform = excluded.record_platform, release_date = excluded.release_date,
				developer = excluded.developer, publisher = excluded.publisher, players = excluded.players,
				rating = excluded.rating, ages = excluded.ages, tags = excluded.tags,
				description = excluded.description, search_match = excluded.search_match,
				updated_at = excluded.updated_at`,
			key.Platform, key.Name, rec.ID, rec.Source, rec.Title, rec.Platform, rec.ReleaseDate,
			rec.Developer, rec.Publisher, rec.Players, rec.Rating, rec.Ages, rec.Tags, rec.Description,
			rec.SearchMatch, c.updated[key]); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM assets WHERE platform = ? AND name = ?`, key.Platform, key.Name); err != nil {
			return fmt.Errorf("clear assets %s: %w", key, err)
		}
		for _, a := range assets[key] {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO assets (platform, name, kind, sha1, format, size) VALUES (?, ?, ?, ?, ?, ?)`,
				key.Platform, key.Name, string(a.kind), a.hash, a.format, a.size); err != nil {
				return fmt.Errorf("write asset %s/%s: %w", key, a.kind, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}

	logging.Debug("cache flushed", "written", len(c.dirty), "deleted", len(c.deleted))
	c.dirty = make(map[Key]struct{})
	c.deleted = make(map[Key]struct{})
	metrics.RecordFlush(start)
	return nil
}
