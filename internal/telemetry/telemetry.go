/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous load statistics and crash
// reports. Nothing is sent unless the user opted in and an endpoint is set.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "storyreader/internal/log"
	"storyreader/internal/version"
)

const (
	EnvOptIn     = "SR_TELEMETRY_OPT_IN"
	EnvEventsURL = "SR_TELEMETRY_URL"
	EnvCrashURL  = "SR_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "SR_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "SR_TELEMETRY_DEBUG"
)

// Config controls where events go. Events are batched: a batch is posted
// when it reaches BatchSize or FlushInterval elapses.
type Config struct {
	OptIn         bool
	EventsURL     string
	CrashURL      string
	Timeout       time.Duration
	BatchSize     int
	FlushInterval time.Duration
	DebugLogging  bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(EnvOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvTimeoutMs))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Event is one anonymous record. Props must not carry story text or
// anything that identifies the user.
type Event struct {
	Name     string         `json:"name"`
	At       time.Time      `json:"at"`
	Version  string         `json:"version"`
	Platform string         `json:"platform"`
	Props    map[string]any `json:"props,omitempty"`
}

type batch struct {
	Events []Event `json:"events"`
}

// Client queues events and posts them from a single goroutine. Event never
// blocks: when the queue is full the event is counted as dropped.
type Client struct {
	cfg     Config
	log     *slog.Logger
	hc      *http.Client
	queue   chan Event
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func defaultC() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// NewDefault replaces the package client used by the top-level helpers.
func NewDefault(cfg Config) {
	c := New(cfg)
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		hc:      &http.Client{Timeout: cfg.Timeout},
		queue:   make(chan Event, 64),
		flushCh: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the package client sends events.
func Enabled() bool { return defaultC().Enabled() }

// Dropped returns how many events were discarded because the queue was full.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	e := Event{
		Name:     name,
		At:       time.Now().UTC(),
		Version:  version.String(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if len(props) > 0 {
		e.Props = make(map[string]any, len(props))
		for k, v := range props {
			e.Props[k] = v
		}
	}
	select {
	case c.queue <- e:
	default:
		c.dropped.Add(1)
	}
}

// Track queues an event on the package client.
func Track(name string, props map[string]any) { defaultC().Event(name, props) }

// Flush posts everything queued so far and waits for it, or for ctx.
func (c *Client) Flush(ctx context.Context) {
	ack := make(chan struct{})
	select {
	case c.flushCh <- ack:
	case <-c.done:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Close sends pending events and stops the client.
func (c *Client) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Client) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	var pending []Event
	send := func() {
		if len(pending) > 0 {
			c.post(pending)
			pending = nil
		}
	}
	drain := func() {
		for {
			select {
			case e := <-c.queue:
				pending = append(pending, e)
			default:
				return
			}
		}
	}
	for {
		select {
		case e := <-c.queue:
			pending = append(pending, e)
			if len(pending) >= c.cfg.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case ack := <-c.flushCh:
			drain()
			send()
			close(ack)
		case <-c.stop:
			drain()
			send()
			return
		}
	}
}

func (c *Client) post(events []Event) {
	body, err := json.Marshal(batch{Events: events})
	if err != nil {
		return
	}
	if err := c.postBody(c.cfg.EventsURL, "application/json", body); err != nil {
		c.debug("telemetry send failed", slog.Int("events", len(events)), slog.Any("err", err))
		return
	}
	c.debug("telemetry sent", slog.Int("events", len(events)))
}

func (c *Client) postBody(url, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "storyreader/"+version.String())
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) debug(msg string, attrs ...any) {
	if c.cfg.DebugLogging {
		c.log.Debug(msg, attrs...)
	}
}

// UploadCrash posts a crash report and waits for the reply, since the
// process exits right after.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	if err := c.postBody(c.cfg.CrashURL, "text/plain; charset=utf-8", report); err != nil {
		c.debug("crash upload failed", slog.Any("err", err))
	}
}

func UploadCrash(report []byte) { defaultC().UploadCrash(report) }

const EventScenarioLoaded = "scenario_loaded"

// LoadStats summarizes one load. The story is only identified by its kind.
type LoadStats struct {
	Kind        string
	Actions     map[string]int
	Diagnostics int
	Took        time.Duration
}

// ScenarioLoaded reports counts and timing of one load. Per-variant action
// counts are sent as actions_<variant>.
func (c *Client) ScenarioLoaded(st LoadStats) {
	props := map[string]any{
		"kind":        st.Kind,
		"diagnostics": st.Diagnostics,
		"ms":          st.Took.Milliseconds(),
	}
	total := 0
	for k, n := range st.Actions {
		props["actions_"+k] = n
		total += n
	}
	props["actions"] = total
	c.Event(EventScenarioLoaded, props)
}

func ScenarioLoaded(st LoadStats) { defaultC().ScenarioLoaded(st) }

// Shutdown flushes and stops the package client, if one was created.
func Shutdown() {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()
	if c != nil {
		c.Close()
	}
}
