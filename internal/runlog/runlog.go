// Package runlog keeps a SQLite history of pipeline runs: what was fetched,
// what survived each stage, and which sources or oracle batches failed.
package runlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the run history database.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the run log at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Run is one recorded pipeline run.
type Run struct {
	ID            int64
	StartedAt     time.Time
	Fetched       int
	AfterDedup    int
	NewArticles   int
	OracleScored  int
	CacheHits     int
	FailedSources []string
	FailedBatches int
	Admitted      map[string]int
}

// InsertRun records a completed run.
func (db *DB) InsertRun(r Run) (int64, error) {
	failedSources, err := json.Marshal(r.FailedSources)
	if err != nil {
		return 0, fmt.Errorf("encoding failed sources: %w", err)
	}
	admitted, err := json.Marshal(r.Admitted)
	if err != nil {
		return 0, fmt.Errorf("encoding admitted counts: %w", err)
	}

	result, err := db.conn.Exec(
		`INSERT INTO runs (started_at, fetched, after_dedup, new_articles, oracle_scored,
			cache_hits, failed_sources, failed_batches, admitted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UTC().Format(time.RFC3339), r.Fetched, r.AfterDedup, r.NewArticles,
		r.OracleScored, r.CacheHits, string(failedSources), r.FailedBatches, string(admitted),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return result.LastInsertId()
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, started_at, fetched, after_dedup, new_articles, oracle_scored,
			cache_hits, failed_sources, failed_batches, admitted
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt, failedSources, admitted string
		if err := rows.Scan(&r.ID, &startedAt, &r.Fetched, &r.AfterDedup, &r.NewArticles,
			&r.OracleScored, &r.CacheHits, &failedSources, &r.FailedBatches, &admitted); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		json.Unmarshal([]byte(failedSources), &r.FailedSources)
		json.Unmarshal([]byte(admitted), &r.Admitted)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats summarizes the run history.
type Stats struct {
	TotalRuns    int
	LastRun      time.Time
	TotalFetched int
	TotalScored  int
}

// GetStats returns aggregate run history statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	var lastRun sql.NullString
	err := db.conn.QueryRow(
		`SELECT COUNT(*), MAX(started_at), COALESCE(SUM(fetched), 0), COALESCE(SUM(oracle_scored), 0) FROM runs`,
	).Scan(&s.TotalRuns, &lastRun, &s.TotalFetched, &s.TotalScored)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		s.LastRun, _ = time.Parse(time.RFC3339, lastRun.String)
	}
	return s, nil
}
