/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenCacheRequiresDir(t *testing.T) {
	if _, err := OpenCache("  "); !errors.Is(err, ErrNoDir) {
		t.Fatalf("expected ErrNoDir, got %v", err)
	}
}

func TestCachePutGetAndHits(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing", 0); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, Entry{Key: "scenario/a", Data: []byte(`{"ScenarioId":"a"}`), ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, ok, err := c.Get(ctx, "scenario/a", time.Hour)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(e.Data) != `{"ScenarioId":"a"}` || e.ContentType != "application/json" || e.Hits != 1 {
		t.Fatalf("entry mismatch: %+v", e)
	}
	e, _, _ = c.Get(ctx, "scenario/a", 0)
	if e.Hits != 2 {
		t.Fatalf("hits should accumulate, got %d", e.Hits)
	}

	if err := c.Put(ctx, Entry{Key: "scenario/a", Data: []byte("v2")}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	e, _, _ = c.Get(ctx, "scenario/a", 0)
	if string(e.Data) != "v2" {
		t.Fatalf("replace did not overwrite: %q", e.Data)
	}
	if err := c.Put(ctx, Entry{}); err == nil {
		t.Fatalf("empty key should fail")
	}
}

func TestCacheExpiryAndPrune(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i, age := range []time.Duration{time.Minute, 2 * time.Hour, 48 * time.Hour} {
		if err := c.Put(ctx, Entry{Key: fmt.Sprintf("k%d", i), Data: []byte("x"), FetchedAt: now.Add(-age)}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if _, ok, _ := c.Get(ctx, "k1", time.Hour); ok {
		t.Fatalf("stale entry should miss")
	}
	if _, ok, _ := c.Get(ctx, "k1", 0); !ok {
		t.Fatalf("zero max age should accept stale entries")
	}
	n, err := c.Prune(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	count, size, err := c.Stats(ctx)
	if err != nil || count != 2 || size != 2 {
		t.Fatalf("stats: %d %d %v", count, size, err)
	}
	if err := c.Delete(ctx, "k0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(ctx, "k0"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if err := c.Healthy(ctx); err != nil {
		t.Fatalf("healthy: %v", err)
	}
}

func TestCacheReopenKeepsDataAndSchema(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	c, err := OpenCache(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Put(ctx, Entry{Key: "k", Data: []byte("v")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = c.Close()

	c, err = OpenCache(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	if v, err := c.SchemaVersion(ctx); err != nil || v != schemaVersion {
		t.Fatalf("schema version %d err %v", v, err)
	}
	if _, ok, _ := c.Get(ctx, "k", 0); !ok {
		t.Fatalf("data lost across reopen")
	}
	if c.Path() != filepath.Join(dir, CacheFileName) {
		t.Fatalf("unexpected path %q", c.Path())
	}
}

func TestCacheMigratesVersionOneDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CacheFileName)
	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path))
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version VALUES (1, 1, 'old', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z');`,
		`CREATE TABLE documents (key TEXT PRIMARY KEY, data BLOB NOT NULL, content_type TEXT NOT NULL DEFAULT '', etag TEXT NOT NULL DEFAULT '', fetched_at TEXT NOT NULL);`,
		`INSERT INTO documents (key, data, fetched_at) VALUES ('legacy', 'x', '2024-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = db.Close()

	c, err := OpenCache(dir)
	if err != nil {
		t.Fatalf("open migrated: %v", err)
	}
	defer c.Close()
	if v, _ := c.SchemaVersion(ctx); v != 2 {
		t.Fatalf("expected schema 2 after migration, got %d", v)
	}
	e, ok, err := c.Get(ctx, "legacy", 0)
	if err != nil || !ok || e.Hits != 1 {
		t.Fatalf("legacy entry after migration: %+v ok=%v err=%v", e, ok, err)
	}
}
