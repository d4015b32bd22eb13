/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	applog "storyreader/internal/log"
	"storyreader/internal/storage"
)

// Fetcher downloads a document. Unlike Prober it reports failures.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// Forgetter is implemented by fetchers that keep local copies.
type Forgetter interface {
	Forget(ctx context.Context, url string) error
}

// ErrNotFound is returned when the mirror answers 404.
var ErrNotFound = errors.New("asset not found")

// StatusError is returned for any other non-2xx answer.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code) }

// MaxDocumentSize caps a single fetched document.
const MaxDocumentSize = 32 << 20

type FetcherOptions struct {
	Client *http.Client
	// Cache is optional. Without it every call goes to the network.
	Cache *storage.Cache
	// MaxAge after which cached documents are revalidated; zero keeps them forever.
	MaxAge time.Duration
	Logger *slog.Logger
}

// HTTPFetcher GETs documents and keeps them in a SQLite cache. Stale
// entries are revalidated with If-None-Match and served as a last resort
// when the mirror cannot be reached.
type HTTPFetcher struct {
	client *http.Client
	cache  *storage.Cache
	maxAge time.Duration
	log    *slog.Logger
}

func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	f := &HTTPFetcher{client: opts.Client, cache: opts.Cache, maxAge: opts.MaxAge, log: opts.Logger}
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}
	if f.log == nil {
		f.log = applog.WithComponent("assets")
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	l := applog.WithOperation(f.log, "fetch").With(slog.String("url", url))
	var stale *storage.Entry
	if f.cache != nil {
		e, fresh, err := f.cache.Get(ctx, url, f.maxAge)
		switch {
		case err != nil:
			l.WarnContext(ctx, "cache read failed", slog.Any("err", err))
		case fresh:
			l.DebugContext(ctx, "cache hit", slog.Int("hits", e.Hits))
			return e.Data, nil
		case e.Key != "":
			stale = &e
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if stale != nil && stale.ETag != "" {
		req.Header.Set("If-None-Match", stale.ETag)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if stale != nil {
			l.WarnContext(ctx, "fetch failed, serving stale copy", slog.Any("err", err))
			return stale.Data, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && stale != nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		stale.FetchedAt = time.Time{}
		f.store(ctx, l, *stale)
		l.DebugContext(ctx, "revalidated")
		return stale.Data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode >= 500 && stale != nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		l.WarnContext(ctx, "mirror error, serving stale copy", slog.Int("status", resp.StatusCode))
		return stale.Data, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("read %s: document exceeds %d bytes", url, MaxDocumentSize)
	}
	f.store(ctx, l, storage.Entry{
		Key:         url,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	})
	l.DebugContext(ctx, "fetched", slog.Int("bytes", len(data)))
	return data, nil
}

// Forget drops the cached copy of url so the next Fetch goes to the mirror.
func (f *HTTPFetcher) Forget(ctx context.Context, url string) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Delete(ctx, url)
}

func (f *HTTPFetcher) store(ctx context.Context, l *slog.Logger, e storage.Entry) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Put(ctx, e); err != nil {
		l.WarnContext(ctx, "cache write failed", slog.Any("err", err))
	}
}
