/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type collector struct {
	mu      sync.Mutex
	batches []batch
	crashes []string
	srv     *httptest.Server
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var b batch
		_ = json.NewDecoder(r.Body).Decode(&b)
		c.mu.Lock()
		c.batches = append(c.batches, b)
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, string(b))
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	c.srv = httptest.NewServer(mux)
	t.Cleanup(c.srv.Close)
	return c
}

func (c *collector) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, b := range c.batches {
		out = append(out, b.Events...)
	}
	return out
}

func TestClient_FlushSendsOneBatch(t *testing.T) {
	col := newCollector(t)
	c := New(Config{OptIn: true, EventsURL: col.srv.URL + "/events", Timeout: 2 * time.Second})
	defer c.Close()

	c.Event("started", map[string]any{"k": "v"})
	c.ScenarioLoaded(LoadStats{
		Kind:        "eventStory",
		Actions:     map[string]int{"talk": 10, "sound": 2},
		Diagnostics: 1,
		Took:        40 * time.Millisecond,
	})
	c.Flush(context.Background())

	col.mu.Lock()
	nBatches := len(col.batches)
	col.mu.Unlock()
	if nBatches != 1 {
		t.Fatalf("batches = %d, want 1", nBatches)
	}
	ev := col.events()
	if len(ev) != 2 || ev[0].Name != "started" || ev[1].Name != EventScenarioLoaded {
		t.Fatalf("events = %+v", ev)
	}
	p := ev[1].Props
	if p["kind"] != "eventStory" || p["actions"] != float64(12) || p["actions_talk"] != float64(10) || p["actions_sound"] != float64(2) || p["diagnostics"] != float64(1) || p["ms"] != float64(40) {
		t.Fatalf("scenario props = %v", p)
	}
	if ev[0].Version == "" || ev[0].Platform == "" || ev[0].At.IsZero() {
		t.Fatalf("envelope fields missing: %+v", ev[0])
	}
}

func TestClient_BatchSizeTriggersSend(t *testing.T) {
	col := newCollector(t)
	c := New(Config{OptIn: true, EventsURL: col.srv.URL + "/events", BatchSize: 2, FlushInterval: time.Hour})
	defer c.Close()

	c.Event("a", nil)
	c.Event("b", nil)
	deadline := time.Now().Add(2 * time.Second)
	for len(col.events()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("batch not sent without flush")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_CloseSendsPending(t *testing.T) {
	col := newCollector(t)
	c := New(Config{OptIn: true, EventsURL: col.srv.URL + "/events", FlushInterval: time.Hour})
	c.Event("last", nil)
	c.Close()
	c.Close()
	if ev := col.events(); len(ev) != 1 || ev[0].Name != "last" {
		t.Fatalf("events after close = %+v", ev)
	}
}

func TestClient_DisabledSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))
	c.Close()

	c2 := New(Config{OptIn: true, EventsURL: srv.URL})
	c2.Event("", nil)
	c2.Close()

	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("requests = %d, want 0", n)
	}
}

func TestClient_UploadCrashIsSynchronous(t *testing.T) {
	col := newCollector(t)
	c := New(Config{OptIn: true, CrashURL: col.srv.URL + "/crash"})
	defer c.Close()

	c.UploadCrash([]byte("STACKTRACE"))
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.crashes) != 1 || col.crashes[0] != "STACKTRACE" {
		t.Fatalf("crashes = %v", col.crashes)
	}
}

func TestClient_QueueFullDrops(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(Config{OptIn: true, EventsURL: srv.URL, BatchSize: 1, Timeout: 5 * time.Second})
	for i := 0; i < 200; i++ {
		c.Event("burst", nil)
	}
	if c.Dropped() == 0 {
		t.Fatalf("expected dropped events while the sender is stuck")
	}
}

// Unroutable address exercises the failure paths.
func TestClient_SendFailuresAreSilent(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	c.ScenarioLoaded(LoadStats{Kind: "areaTalk"})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
	c.Close()
}

func TestFromEnvAndDefaultClient(t *testing.T) {
	t.Setenv(EnvOptIn, "yes")
	t.Setenv(EnvEventsURL, " http://127.0.0.1:0 ")
	t.Setenv(EnvCrashURL, "")
	t.Setenv(EnvTimeoutMs, "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:0" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv = %+v", cfg)
	}

	NewDefault(cfg)
	t.Cleanup(Shutdown)
	if !Enabled() {
		t.Fatalf("default client should be enabled")
	}
}

func TestTrackUsesDefaultClient(t *testing.T) {
	col := newCollector(t)
	NewDefault(Config{OptIn: true, EventsURL: col.srv.URL + "/events", Timeout: time.Second})
	Track("characters_imported", map[string]any{"count": 3})
	ScenarioLoaded(LoadStats{Kind: "cardStory", Actions: map[string]int{"talk": 1}})
	Shutdown()

	ev := col.events()
	if len(ev) != 2 || ev[0].Name != "characters_imported" || ev[0].Props["count"] != float64(3) {
		t.Fatalf("events = %+v", ev)
	}
	if ev[1].Props["actions"] != float64(1) || ev[1].Props["actions_talk"] != float64(1) {
		t.Fatalf("scenario props = %v", ev[1].Props)
	}
}
