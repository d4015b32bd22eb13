/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"storyreader/internal/character"
	"storyreader/internal/loader"
	applog "storyreader/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB connects to Postgres, verifies the connection and applies the
// embedded migrations.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty database url")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// applyMigrations applies embedded SQL migrations in filename order.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`, version, fname); err != nil {
			return fmt.Errorf("record %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// CharacterStore keeps directory entries in Postgres so that operators can
// add display names and aliases without a release.
type CharacterStore struct {
	db *sql.DB
}

func NewCharacterStore(db *sql.DB) *CharacterStore { return &CharacterStore{db: db} }

// List returns all stored characters ordered by id.
func (s *CharacterStore) List(ctx context.Context) ([]character.Character, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, short_name, aliases::text, numeric_voice_id, unit_id FROM characters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select characters: %w", err)
	}
	defer rows.Close()
	var out []character.Character
	for rows.Next() {
		var (
			c       character.Character
			aliases string
		)
		if err := rows.Scan(&c.ID, &c.ShortName, &aliases, &c.NumericVoiceID, &c.UnitID); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aliases), &c.Aliases); err != nil {
			return nil, fmt.Errorf("character %d aliases: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert stores the given characters in one transaction.
func (s *CharacterStore) Upsert(ctx context.Context, chars ...character.Character) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range chars {
		aliases := c.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		b, err := json.Marshal(aliases)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO characters(id, short_name, aliases, numeric_voice_id, unit_id, updated_at)
			VALUES($1, $2, $3::jsonb, $4, $5, now())
			ON CONFLICT (id) DO UPDATE SET short_name=excluded.short_name, aliases=excluded.aliases,
			numeric_voice_id=excluded.numeric_voice_id, unit_id=excluded.unit_id, updated_at=now()`,
			c.ID, c.ShortName, string(b), c.NumericVoiceID, c.UnitID); err != nil {
			return fmt.Errorf("upsert character %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Directory overlays the stored characters on base.
func (s *CharacterStore) Directory(ctx context.Context, base *character.Directory) (*character.Directory, error) {
	chars, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return base.Merge(chars), nil
}

// LoadRecord is one row of the load history.
type LoadRecord struct {
	LoadID      string    `json:"loadId"`
	Kind        string    `json:"kind"`
	Ref         string    `json:"ref"`
	ScenarioID  string    `json:"scenarioId,omitempty"`
	Actions     int       `json:"actions"`
	Diagnostics int       `json:"diagnostics"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LoadLog records completed loads.
type LoadLog struct {
	db *sql.DB
}

func NewLoadLog(db *sql.DB) *LoadLog { return &LoadLog{db: db} }

func (l *LoadLog) Record(ctx context.Context, sc *loader.Scenario) error {
	id, err := uuid.Parse(sc.LoadID)
	if err != nil {
		return fmt.Errorf("load id: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `INSERT INTO loads(load_id, kind, ref, scenario_id, actions, diagnostics) VALUES($1, $2, $3, $4, $5, $6)`,
		id.String(), string(sc.Kind), sc.Ref, sc.ScenarioID, len(sc.Actions), len(sc.Diagnostics))
	if err != nil {
		return fmt.Errorf("record load: %w", err)
	}
	return nil
}

// Recent returns the latest loads, newest first.
func (l *LoadLog) Recent(ctx context.Context, limit int) ([]LoadRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT load_id::text, kind, ref, scenario_id, actions, diagnostics, created_at FROM loads ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select loads: %w", err)
	}
	defer rows.Close()
	var out []LoadRecord
	for rows.Next() {
		var r LoadRecord
		if err := rows.Scan(&r.LoadID, &r.Kind, &r.Ref, &r.ScenarioID, &r.Actions, &r.Diagnostics, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
