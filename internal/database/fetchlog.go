// Package database provides SQLite-based storage for the crawl's fetch
// history.
//
// The fetch log records one row per fetch-or-reuse decision: which entity,
// which URL, whether the archive satisfied it, and whether it succeeded.
// It answers the operational questions a multi-day crawl raises -- how far
// did the last run get, what is the cache-hit ratio, which URLs keep
// failing -- without grepping log output.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
//  1. No external dependencies - the database is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. Sufficient performance for a crawler writing one row per page
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FetchLog stores fetch-history rows in a SQLite database.
// It is safe for use from concurrent crawl workers: SQLite serializes the
// writes and the connection pool is capped at a single writer.
type FetchLog struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the fetch log under dbDir.
func Open(dbDir string) (*FetchLog, error) {
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dbPath := filepath.Join(dbDir, "lmscrawl.db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer; a larger pool just queues.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	fl := &FetchLog{db: db, dbPath: dbPath}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := fl.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return fl, nil
}

// Close closes the database connection.
func (fl *FetchLog) Close() error {
	return fl.db.Close()
}

// Path returns the database file path.
func (fl *FetchLog) Path() string {
	return fl.dbPath
}

// createTables creates the schema if it doesn't exist.
func (fl *FetchLog) createTables() error {
	schema := `
	-- One row per fetch-or-reuse decision.
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		url TEXT NOT NULL,
		cached INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_category ON fetches(category);
	CREATE INDEX IF NOT EXISTS idx_fetches_entity ON fetches(category, entity_id);
	CREATE INDEX IF NOT EXISTS idx_fetches_time ON fetches(fetched_at);
	`
	_, err := fl.db.ExecContext(context.Background(), schema)
	return err
}

// Record inserts one fetch-history row. Implements crawler.FetchRecorder.
func (fl *FetchLog) Record(ctx context.Context, category, entityID, url string, cached, ok bool) error {
	_, err := fl.db.ExecContext(ctx,
		`INSERT INTO fetches (category, entity_id, url, cached, ok) VALUES (?, ?, ?, ?, ?)`,
		category, entityID, url, boolToInt(cached), boolToInt(ok),
	)
	if err != nil {
		return fmt.Errorf("insert fetch record: %w", err)
	}
	return nil
}

// CategorySummary aggregates fetch history for one entity category.
type CategorySummary struct {
	Category  string
	Total     int
	Cached    int
	Succeeded int
	Failed    int
}

// Summarize aggregates the fetch history per category since the given time.
// Pass the zero time for an all-time summary.
func (fl *FetchLog) Summarize(ctx context.Context, since time.Time) ([]CategorySummary, error) {
	rows, err := fl.db.QueryContext(ctx, `
		SELECT category,
		       COUNT(*),
		       SUM(cached),
		       SUM(ok),
		       SUM(1 - ok)
		FROM fetches
		WHERE fetched_at >= ?
		GROUP BY category
		ORDER BY category`,
		since.UTC().Format(time.DateTime),
	)
	if err != nil {
		return nil, fmt.Errorf("query fetch summary: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var summaries []CategorySummary
	for rows.Next() {
		var s CategorySummary
		if err := rows.Scan(&s.Category, &s.Total, &s.Cached, &s.Succeeded, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan fetch summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch summary: %w", err)
	}
	return summaries, nil
}

// RecentFailures returns the most recent failed fetch URLs, newest first,
// capped at limit.
func (fl *FetchLog) RecentFailures(ctx context.Context, limit int) ([]string, error) {
	rows, err := fl.db.QueryContext(ctx, `
		SELECT url FROM fetches
		WHERE ok = 0
		ORDER BY fetched_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure rows: %w", err)
	}
	return urls, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
