package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corvusflow/rescache/internal/domain"
)

// Catalog is the GC ledger: a small sqlite-backed table of tombstoned
// artifact paths, swept by an out-of-process-lifetime pass that
// actually removes the bytes. The connect and download phases only
// ever mark-for-delete; nothing in the hot path unlinks a file.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if absent) the catalog database at
// dbPath and brings its schema up to date.
func OpenCatalog(dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create catalog directory: %v", domain.ErrIOFailure, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open catalog: %v", domain.ErrIOFailure, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: connect to catalog: %v", domain.ErrIOFailure, err)
	}

	c := &Catalog{db: db}
	if err := c.runMigrations(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error { return c.db.Close() }

// RecordTombstone notes that artifactPath (and its sidecar and lock
// file) are eligible for removal by the next Sweep, the persisted
// half of Entry.MarkForDelete.
func (c *Catalog) RecordTombstone(artifactPath string, markedAt time.Time) error {
	_, err := c.db.Exec(
		`INSERT INTO tombstones (artifact_path, marked_at) VALUES (?, ?)
		 ON CONFLICT(artifact_path) DO UPDATE SET marked_at = excluded.marked_at`,
		artifactPath, markedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: record tombstone: %v", domain.ErrIOFailure, err)
	}
	return nil
}

// Sweep removes every tombstoned artifact (and its sidecar and lock
// file) marked at least grace before now, and returns how many
// artifacts were removed. This is the "external GC pass" the core
// engine only ever schedules work for, never runs itself.
func (c *Catalog) Sweep(now time.Time, grace time.Duration) (int, error) {
	cutoff := now.Add(-grace).Unix()

	rows, err := c.db.Query(`SELECT artifact_path FROM tombstones WHERE marked_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: query tombstones: %v", domain.ErrIOFailure, err)
	}
	defer rows.Close()

	var swept []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return 0, fmt.Errorf("%w: scan tombstone: %v", domain.ErrIOFailure, err)
		}
		swept = append(swept, path)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: iterate tombstones: %v", domain.ErrIOFailure, err)
	}

	removed := 0
	for _, path := range swept {
		os.Remove(path)
		os.Remove(sidecarPath(path))
		os.Remove(lockPath(path))
		if _, err := c.db.Exec(`DELETE FROM tombstones WHERE artifact_path = ?`, path); err != nil {
			return removed, fmt.Errorf("%w: delete tombstone row: %v", domain.ErrIOFailure, err)
		}
		removed++
	}
	return removed, nil
}
