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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPProberStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/ok.mp3":
			w.WriteHeader(http.StatusOK)
		case "/redirect-target.mp3":
			w.WriteHeader(http.StatusNoContent)
		case "/forbidden.mp3":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHTTPProber(ProberOptions{Client: srv.Client(), Timeout: time.Second})
	ctx := context.Background()
	if !p.Exists(ctx, srv.URL+"/ok.mp3") {
		t.Fatalf("200 should exist")
	}
	if !p.Exists(ctx, srv.URL+"/redirect-target.mp3") {
		t.Fatalf("204 should exist")
	}
	if p.Exists(ctx, srv.URL+"/forbidden.mp3") {
		t.Fatalf("403 should not exist")
	}
	if p.Exists(ctx, srv.URL+"/missing.mp3") {
		t.Fatalf("404 should not exist")
	}
}

func TestHTTPProberFailuresReadAsMissing(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	p := NewHTTPProber(ProberOptions{Client: slow.Client(), Timeout: 50 * time.Millisecond})
	start := time.Now()
	if p.Exists(context.Background(), slow.URL+"/late.mp3") {
		t.Fatalf("timed out probe should read as missing")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("probe exceeded its timeout")
	}
	if p.Exists(context.Background(), "http://[::1]:namedport/x") {
		t.Fatalf("malformed url should read as missing")
	}
	if p.Exists(context.Background(), "http://127.0.0.1:1/unreachable.mp3") {
		t.Fatalf("unreachable host should read as missing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if p.Exists(ctx, slow.URL+"/ok.mp3") {
		t.Fatalf("cancelled context should read as missing")
	}
}

func TestHTTPProberRateLimitHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(ProberOptions{Client: srv.Client(), Timeout: 100 * time.Millisecond, RatePerSecond: 0.1, Burst: 1})
	if !p.Exists(context.Background(), srv.URL+"/a.mp3") {
		t.Fatalf("first probe should pass the limiter")
	}
	if p.Exists(context.Background(), srv.URL+"/b.mp3") {
		t.Fatalf("second probe should be refused by the limiter within the timeout")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}
}

func TestCachingProberCachesOnlyHits(t *testing.T) {
	var calls atomic.Int32
	answer := map[string]bool{"yes": true, "no": false}
	c := NewCachingProber(ProberFunc(func(_ context.Context, url string) bool {
		calls.Add(1)
		return answer[url]
	}))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !c.Exists(ctx, "yes") {
			t.Fatalf("yes should exist")
		}
		if c.Exists(ctx, "no") {
			t.Fatalf("no should not exist")
		}
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 1 call for yes and 3 for no, got %d", got)
	}
}
