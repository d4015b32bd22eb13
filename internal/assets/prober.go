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
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	applog "storyreader/internal/log"
)

// Prober answers whether a remote asset exists. Implementations never
// return errors: any failure reads as "does not exist".
type Prober interface {
	Exists(ctx context.Context, url string) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, url string) bool

func (f ProberFunc) Exists(ctx context.Context, url string) bool { return f(ctx, url) }

// ProberOptions configures NewHTTPProber.
type ProberOptions struct {
	Client  *http.Client
	Timeout time.Duration
	// RatePerSecond caps outgoing probes; zero disables limiting.
	RatePerSecond float64
	Burst         int
	Logger        *slog.Logger
}

// DefaultProbeTimeout bounds a single probe when none is configured.
const DefaultProbeTimeout = 5 * time.Second

// HTTPProber issues HEAD requests and treats any 2xx status as existing.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewHTTPProber(opts ProberOptions) *HTTPProber {
	p := &HTTPProber{client: opts.Client, timeout: opts.Timeout, log: opts.Logger}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.timeout <= 0 {
		p.timeout = DefaultProbeTimeout
	}
	if p.log == nil {
		p.log = applog.WithComponent("assets")
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return p
}

func (p *HTTPProber) Exists(ctx context.Context, url string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	l := applog.WithOperation(p.log, "probe")

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			l.DebugContext(ctx, "probe not attempted", slog.String("url", url), slog.Any("err", err))
			return false
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		l.DebugContext(ctx, "bad probe url", slog.String("url", url), slog.Any("err", err))
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		l.DebugContext(ctx, "probe failed", slog.String("url", url), slog.Any("err", err))
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	l.DebugContext(ctx, "probe", slog.String("url", url), slog.Int("status", resp.StatusCode), slog.Bool("exists", ok))
	return ok
}

// CachingProber remembers positive answers of the wrapped prober. Negative
// answers are not cached since they may stem from transient failures.
type CachingProber struct {
	next Prober
	hits sync.Map
}

func NewCachingProber(next Prober) *CachingProber { return &CachingProber{next: next} }

func (c *CachingProber) Exists(ctx context.Context, url string) bool {
	if _, ok := c.hits.Load(url); ok {
		return true
	}
	if !c.next.Exists(ctx, url) {
		return false
	}
	c.hits.Store(url, struct{}{})
	return true
}
