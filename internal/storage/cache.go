/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage keeps fetched story documents in a local SQLite cache so
// repeated loads of the same scenario or master file skip the network.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "storyreader/internal/log"
	"storyreader/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	CacheFileName = "cache.sqlite"

	// schemaVersion tracks the cache schema. Bump it together with a new
	// step in runMigrations.
	schemaVersion = 2

	// fixed width so that fetched_at compares correctly as text
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Entry is one cached document.
type Entry struct {
	Key         string
	Data        []byte
	ContentType string
	ETag        string
	FetchedAt   time.Time
	Hits        int
}

// Cache is a SQLite backed document cache. It is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	now  func() time.Time
	log  *slog.Logger
}

// ErrNoDir is returned by OpenCache when no directory is given.
var ErrNoDir = errors.New("cache directory is required")

// OpenCache creates or opens dir/cache.sqlite, enables WAL and brings the
// schema up to date.
func OpenCache(dir string) (*Cache, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "cache_open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, ErrNoDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create cache dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(dir, CacheFileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure cache schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("cache ready", slog.String("path", path))
	return &Cache{db: db, path: path, now: time.Now, log: applog.WithComponent("storage")}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

func (c *Cache) Close() error { return c.db.Close() }

// SchemaVersion reports the schema recorded in the database.
func (c *Cache) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := c.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

// Get returns the entry for key if it is younger than maxAge. A maxAge of
// zero accepts entries of any age.
func (c *Cache) Get(ctx context.Context, key string, maxAge time.Duration) (Entry, bool, error) {
	var e Entry
	var fetched string
	err := c.db.QueryRowContext(ctx,
		`SELECT key, data, content_type, etag, fetched_at, hits FROM documents WHERE key=?`, key,
	).Scan(&e.Key, &e.Data, &e.ContentType, &e.ETag, &fetched, &e.Hits)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	e.FetchedAt, err = time.Parse(time.RFC3339Nano, fetched)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get %q: bad timestamp: %w", key, err)
	}
	if maxAge > 0 && c.now().Sub(e.FetchedAt) > maxAge {
		return e, false, nil
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE documents SET hits = hits + 1 WHERE key=?`, key); err != nil {
		c.log.Warn("cache hit counter update failed", slog.String("key", key), slog.Any("err", err))
	}
	e.Hits++
	return e, true, nil
}

// Put stores or replaces an entry. A zero FetchedAt is set to now.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	if e.Key == "" {
		return errors.New("cache put: empty key")
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = c.now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (key, data, content_type, etag, fetched_at, hits) VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT(key) DO UPDATE SET data=excluded.data, content_type=excluded.content_type,
		 etag=excluded.etag, fetched_at=excluded.fetched_at`,
		e.Key, e.Data, e.ContentType, e.ETag, e.FetchedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("cache put %q: %w", e.Key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE key=?`, key); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// Prune deletes entries fetched more than olderThan ago and returns how many
// were removed.
func (c *Cache) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := c.now().Add(-olderThan).UTC().Format(timeLayout)
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats reports the number of entries and their total payload size.
func (c *Cache) Stats(ctx context.Context) (count int, size int64, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM documents`).Scan(&count, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("cache stats: %w", err)
	}
	return count, size, nil
}

// Healthy runs SQLite's quick_check.
func (c *Cache) Healthy(ctx context.Context) error {
	var chk string
	if err := c.db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(chk), "ok") {
		return fmt.Errorf("quick_check: %s", chk)
	}
	return nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureSchema creates the schema of version 1. Later versions are reached
// through runMigrations so that old databases and fresh ones converge.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			key          TEXT PRIMARY KEY,
			data         BLOB NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			etag         TEXT NOT NULL DEFAULT '',
			fetched_at   TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure cache schema: %w", err)
		}
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// runMigrations applies incremental schema migrations up to schemaVersion.
// Fresh databases are stamped with schemaVersion but still walk every step,
// so each step must be idempotent.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		return nil
	}
	// hits arrived with version 2; make sure it exists whatever the stamp says.
	has, err := hasColumn(ctx, db, "documents", "hits")
	if err != nil {
		return fmt.Errorf("inspect documents: %w", err)
	}
	if !has && cur >= 2 {
		cur = 1
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`ALTER TABLE documents ADD COLUMN hits INTEGER NOT NULL DEFAULT 0;`,
				`CREATE INDEX IF NOT EXISTS idx_documents_fetched_at ON documents(fetched_at);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
		}
		cur = next
	}
	return nil
}
