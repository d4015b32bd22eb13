/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"storyreader/internal/assets"
	"storyreader/internal/backend"
	"storyreader/internal/character"
	"storyreader/internal/config"
	"storyreader/internal/loader"
	applog "storyreader/internal/log"
	"storyreader/internal/masterdata"
	"storyreader/internal/storage"
	"storyreader/internal/story"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg   config.AppConfig
	dsn   string
	log   *slog.Logger
	cache *storage.Cache
	db    *sql.DB

	fetcher *assets.HTTPFetcher
	store   *masterdata.Store
	dir     *character.Directory
	interp  *story.Interpreter
	loader  *loader.Loader
}

// newApp wires the loader stack. Master data and database problems are
// logged and degrade to the built-in character directory.
func newApp(ctx context.Context, cfg config.AppConfig, dsn string, useDB bool) (*app, error) {
	a := &app{cfg: cfg, dsn: dsn, log: applog.WithComponent("cli")}

	src, err := assets.LookupSource(cfg.Assets.Source)
	if err != nil {
		return nil, err
	}
	a.cache, err = storage.OpenCache(cfg.CacheDir())
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	a.fetcher = assets.NewHTTPFetcher(assets.FetcherOptions{Client: httpClient, Cache: a.cache})
	masterFetcher := assets.NewHTTPFetcher(assets.FetcherOptions{Client: httpClient, Cache: a.cache, MaxAge: cfg.MasterData.TTL()})
	a.store = masterdata.NewStore(masterdata.Options{
		LocalDir: cfg.MasterData.LocalDir,
		BaseURL:  cfg.MasterData.BaseURL,
		Fetcher:  masterFetcher,
		Region:   src.Region,
	})

	a.dir = character.Default()
	if chars, err := a.store.Characters(ctx); err != nil {
		a.log.Warn("master characters unavailable, using built-in directory", slog.Any("err", err))
	} else {
		a.dir = a.dir.Merge(chars)
	}
	if useDB && dsn != "" {
		db, err := backend.OpenDB(ctx, dsn)
		if err != nil {
			a.log.Warn("database unavailable", slog.Any("err", err))
		} else {
			a.db = db
			if dir, err := backend.NewCharacterStore(db).Directory(ctx, a.dir); err != nil {
				a.log.Warn("database characters unavailable", slog.Any("err", err))
			} else {
				a.dir = dir
			}
		}
	}

	prober := assets.NewCachingProber(assets.NewHTTPProber(assets.ProberOptions{
		Timeout:       cfg.Assets.ProbeTimeout(),
		RatePerSecond: cfg.Assets.ProbeRate,
		Burst:         cfg.Assets.ProbeBurst,
	}))
	a.interp = story.NewInterpreter(story.Options{
		Directory:   a.dir,
		Builder:     assets.NewBuilder(src),
		Prober:      prober,
		Concurrency: cfg.Assets.Concurrency,
	})
	a.loader = loader.New(loader.Options{Provider: a.store, Fetcher: a.fetcher, Interpreter: a.interp})
	a.log.Debug("wired", slog.String("source", string(src.Name)), slog.Int("characters", a.dir.Len()))
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// readInput reads a local file, stdin for "-", or fetches an http(s) URL.
func (a *app) readInput(ctx context.Context, arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return readAllLimited(os.Stdin)
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		return a.fetcher.Fetch(ctx, arg)
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAllLimited(f)
}
