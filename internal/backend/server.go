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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"storyreader/internal/assets"
	"storyreader/internal/character"
	"storyreader/internal/loader"
	applog "storyreader/internal/log"
	"storyreader/internal/masterdata"
	"storyreader/internal/storage"
	"storyreader/internal/story"
	"storyreader/internal/version"
)

// LoadIDHeader lets a client choose the load id (a UUID) of a story request.
const LoadIDHeader = "X-Load-ID"

// StoryLoader is the part of *loader.Loader the API needs.
type StoryLoader interface {
	Load(ctx context.Context, kind masterdata.StoryKind, parts []string) (*loader.Scenario, error)
	InterpretDocument(ctx context.Context, data []byte, vs story.VoiceSet) (*loader.Scenario, error)
	InterpretTalk(ctx context.Context, text string, handles []int) *loader.Scenario
}

type ServerOptions struct {
	Loader    StoryLoader
	Directory *character.Directory
	// DB enables the load history and database readiness checks.
	DB *sql.DB
	// Cache is checked by /readyz when set.
	Cache *storage.Cache
	// RateLimit in requests per second per client; zero disables limiting.
	RateLimit float64
	Burst     int
	Logger    *slog.Logger
}

// Server serves the story API.
type Server struct {
	router chi.Router
	loader StoryLoader
	dir    *character.Directory
	db     *sql.DB
	loads  *LoadLog
	cache  *storage.Cache
	log    *slog.Logger
}

var errRateLimited = errors.New("rate limit exceeded")

// maxBodySize bounds documents posted for interpretation.
const maxBodySize = assets.MaxDocumentSize

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router: chi.NewRouter(),
		loader: opts.Loader,
		dir:    opts.Directory,
		db:     opts.DB,
		cache:  opts.Cache,
		log:    opts.Logger,
	}
	if s.log == nil {
		s.log = applog.WithComponent("backend")
	}
	if s.dir == nil {
		s.dir = character.Default()
	}
	if s.db != nil {
		s.loads = NewLoadLog(s.db)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	if opts.RateLimit > 0 {
		s.router.Use(NewRateLimiter(opts.RateLimit, opts.Burst).Middleware)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Get("/readyz", s.ready)
	s.router.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/characters", s.characters)
		r.Get("/stories/{kind}/*", s.story)
		r.Get("/loads", s.recentLoads)
		r.Post("/interpret/scenario", s.interpretScenario)
		r.Post("/interpret/talk", s.interpretTalk)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", slog.String("addr", addr))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(applog.ContextWithAttrs(r.Context(), slog.String("request_id", id)))
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.LogAttrs(r.Context(), slog.LevelDebug, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)))
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.cache != nil {
		if err := s.cache.Healthy(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("cache not ready"))
			return
		}
	}
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) characters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.All())
}

func (s *Server) story(w http.ResponseWriter, r *http.Request) {
	kind, err := masterdata.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()
	if h := r.Header.Get(LoadIDHeader); h != "" {
		id, err := uuid.Parse(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", LoadIDHeader, err))
			return
		}
		ctx = applog.ContextWithLoadID(ctx, id.String())
	}
	sc, err := s.loader.Load(ctx, kind, loader.SplitRef(chi.URLParam(r, "*")))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if s.loads != nil {
		if err := s.loads.Record(ctx, sc); err != nil {
			s.log.WarnContext(ctx, "load not recorded", slog.Any("err", err))
		}
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) recentLoads(w http.ResponseWriter, r *http.Request) {
	if s.loads == nil {
		writeError(w, http.StatusNotImplemented, errors.New("load history needs a database"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.loads.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ParseVoiceSet maps the voiceSet query value onto a story.VoiceSet.
func ParseVoiceSet(v string) (story.VoiceSet, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "scenario":
		return story.VoiceScenario, nil
	case "card":
		return story.VoiceCard, nil
	case "actionset":
		return story.VoiceActionSet, nil
	}
	return 0, errors.New("voiceSet must be scenario, card or actionset")
}

// ParseHandles reads a comma separated handle list such as "1,27".
func ParseHandles(v string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.New("handles must be comma separated integers")
		}
		out = append(out, n)
	}
	return out, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return nil, false
	}
	return b, true
}

func (s *Server) interpretScenario(w http.ResponseWriter, r *http.Request) {
	vs, err := ParseVoiceSet(r.URL.Query().Get("voiceSet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sc, err := s.loader.InterpretDocument(r.Context(), body, vs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) interpretTalk(w http.ResponseWriter, r *http.Request) {
	handles, err := ParseHandles(r.URL.Query().Get("handles"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.loader.InterpretTalk(r.Context(), string(body), handles))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, loader.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrBadRef):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrInvalidDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loader.ErrFetch):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
