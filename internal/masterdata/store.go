/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"storyreader/internal/assets"
	"storyreader/internal/character"
	applog "storyreader/internal/log"
)

var (
	// ErrNotFound is returned when a master record does not exist.
	ErrNotFound = errors.New("master record not found")
	// ErrNoSource is returned when neither a local directory nor a base URL is configured.
	ErrNoSource = errors.New("no master data source configured")
)

type Options struct {
	// LocalDir is searched first for <table>.json.
	LocalDir string
	// BaseURL serves <table>.json when the local copy is missing.
	BaseURL string
	Fetcher assets.Fetcher
	// Region of the mirrored server; "en" switches card stories to member_scenario.
	Region string
	Logger *slog.Logger
}

// Store reads master tables lazily and keeps decoded tables in memory.
// It is safe for concurrent use.
type Store struct {
	localDir string
	baseURL  string
	fetcher  assets.Fetcher
	region   string
	log      *slog.Logger

	mu     sync.Mutex
	tables map[string]any
}

func NewStore(opts Options) *Store {
	s := &Store{
		localDir: opts.LocalDir,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		fetcher:  opts.Fetcher,
		region:   opts.Region,
		log:      opts.Logger,
		tables:   map[string]any{},
	}
	if s.fetcher == nil {
		s.fetcher = assets.NewHTTPFetcher(assets.FetcherOptions{})
	}
	if s.log == nil {
		s.log = applog.WithComponent("masterdata")
	}
	return s
}

// Invalidate drops all decoded tables. When the fetcher keeps local copies
// the remote tables are forgotten too, so the next access reads the mirror.
func (s *Store) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.tables = map[string]any{}
	s.mu.Unlock()
	f, ok := s.fetcher.(assets.Forgetter)
	if !ok || s.baseURL == "" {
		return nil
	}
	for _, name := range allTables {
		if err := f.Forget(ctx, s.tableURL(name)); err != nil {
			return fmt.Errorf("forget master %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) tableURL(name string) string { return s.baseURL + "/" + name + ".json" }

// Raw returns the bytes of a master table.
func (s *Store) Raw(ctx context.Context, name string) ([]byte, error) {
	l := applog.WithOperation(s.log, "read_table").With(slog.String("table", name))
	if s.localDir != "" {
		b, err := os.ReadFile(filepath.Join(s.localDir, name+".json"))
		if err == nil {
			l.DebugContext(ctx, "local table", slog.Int("bytes", len(b)))
			return b, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read master %s: %w", name, err)
		}
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: table %s", ErrNoSource, name)
	}
	b, err := s.fetcher.Fetch(ctx, s.tableURL(name))
	if err != nil {
		return nil, fmt.Errorf("fetch master %s: %w", name, err)
	}
	return b, nil
}

func table[T any](ctx context.Context, s *Store, name string) ([]T, error) {
	s.mu.Lock()
	v, ok := s.tables[name]
	s.mu.Unlock()
	if ok {
		return v.([]T), nil
	}
	data, err := s.Raw(ctx, name)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode master %s: %w", name, err)
	}
	s.mu.Lock()
	s.tables[name] = rows
	s.mu.Unlock()
	s.log.Debug("table loaded", slog.String("table", name), slog.Int("rows", len(rows)))
	return rows, nil
}

func find[T any](rows []T, match func(T) bool) (T, bool) {
	for _, r := range rows {
		if match(r) {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Character2D looks up a 2D model record.
func (s *Store) Character2D(ctx context.Context, id int) (Character2D, bool, error) {
	rows, err := table[Character2D](ctx, s, TableCharacter2Ds)
	if err != nil {
		return Character2D{}, false, err
	}
	c, ok := find(rows, func(c Character2D) bool { return c.ID == id })
	return c, ok, nil
}

// MobName returns the display name of a mob character.
func (s *Store) MobName(ctx context.Context, id int) (string, bool, error) {
	rows, err := table[MobCharacter](ctx, s, TableMobCharacters)
	if err != nil {
		return "", false, err
	}
	m, ok := find(rows, func(m MobCharacter) bool { return m.ID == id })
	return m.Name, ok, nil
}

// Characters converts the game character table into directory entries.
// The Japanese given name and full name become aliases; ShortName is left
// empty so that merging keeps existing display names.
func (s *Store) Characters(ctx context.Context) ([]character.Character, error) {
	rows, err := table[GameCharacter](ctx, s, TableGameCharacters)
	if err != nil {
		return nil, err
	}
	out := make([]character.Character, 0, len(rows))
	for _, g := range rows {
		var aliases []string
		if g.GivenName != "" {
			aliases = append(aliases, g.GivenName)
		}
		if full := g.FirstName + g.GivenName; full != "" && full != g.GivenName {
			aliases = append(aliases, full)
		}
		out = append(out, character.Character{ID: g.ID, Aliases: aliases, UnitID: g.Unit})
	}
	return out, nil
}
