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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storyreader/internal/loader"
	applog "storyreader/internal/log"
	"storyreader/internal/masterdata"
	"storyreader/internal/story"
	"storyreader/internal/version"
)

type fakeLoader struct {
	err error

	gotKind    masterdata.StoryKind
	gotParts   []string
	gotVS      story.VoiceSet
	gotBody    string
	gotHandles []int
	gotLoadID  string
}

func (f *fakeLoader) Load(ctx context.Context, kind masterdata.StoryKind, parts []string) (*loader.Scenario, error) {
	f.gotKind, f.gotParts = kind, parts
	f.gotLoadID, _ = applog.LoadIDFrom(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &loader.Scenario{
		LoadID:  "00000000-0000-0000-0000-000000000001",
		Kind:    kind,
		Ref:     strings.Join(parts, "/"),
		Actions: []story.Action{&story.TalkAction{CharacterName: "Ichika", Text: "hello"}},
	}, nil
}

func (f *fakeLoader) InterpretDocument(_ context.Context, data []byte, vs story.VoiceSet) (*loader.Scenario, error) {
	f.gotBody, f.gotVS = string(data), vs
	if f.err != nil {
		return nil, f.err
	}
	return &loader.Scenario{Actions: []story.Action{&story.SoundAction{HasBGM: true}}}, nil
}

func (f *fakeLoader) InterpretTalk(_ context.Context, text string, handles []int) *loader.Scenario {
	f.gotBody, f.gotHandles = text, handles
	return &loader.Scenario{Kind: masterdata.KindMysekaiTalk}
}

func newTestServer(t *testing.T, fl *fakeLoader, rate float64) *httptest.Server {
	t.Helper()
	srv := NewServer(ServerOptions{Loader: fl, RateLimit: rate, Burst: 1, Logger: applog.Discard()})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_StoryRoute(t *testing.T) {
	fl := &fakeLoader{}
	ts := newTestServer(t, fl, 0)

	resp, err := http.Get(ts.URL + "/api/stories/EVENTSTORY/12/3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fl.gotKind != masterdata.KindEventStory || strings.Join(fl.gotParts, ",") != "12,3" {
		t.Fatalf("loader got kind=%q parts=%v", fl.gotKind, fl.gotParts)
	}
	var sc loader.Scenario
	if err := json.NewDecoder(resp.Body).Decode(&sc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sc.Actions) != 1 {
		t.Fatalf("actions = %d", len(sc.Actions))
	}
	talk, ok := sc.Actions[0].(*story.TalkAction)
	if !ok || talk.Text != "hello" {
		t.Fatalf("action = %#v", sc.Actions[0])
	}
}

func TestServer_StoryLoadIDHeader(t *testing.T) {
	fl := &fakeLoader{}
	ts := newTestServer(t, fl, 0)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/stories/eventStory/12/3", nil)
	req.Header.Set(LoadIDHeader, "0B6F8F2E-3F7C-4D39-9D1E-6A1F3C2B9E10")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || fl.gotLoadID != "0b6f8f2e-3f7c-4d39-9d1e-6a1f3c2b9e10" {
		t.Fatalf("status = %d, load id = %q", resp.StatusCode, fl.gotLoadID)
	}

	fl.gotKind = ""
	req.Header.Set(LoadIDHeader, "not-a-uuid")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || fl.gotKind != "" {
		t.Fatalf("bad header: status = %d, loader called = %v", resp.StatusCode, fl.gotKind != "")
	}
}

func TestServer_StoryErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: no episode", loader.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: need two parts", loader.ErrBadRef), http.StatusBadRequest},
		{fmt.Errorf("%w: bad json", loader.ErrInvalidDocument), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: timeout", loader.ErrFetch), http.StatusBadGateway},
	}
	for _, c := range cases {
		ts := newTestServer(t, &fakeLoader{err: c.err}, 0)
		resp, err := http.Get(ts.URL + "/api/stories/unitStory/1/1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Errorf("%v: status = %d, want %d", c.err, resp.StatusCode, c.want)
		}
		if body["error"] != c.err.Error() {
			t.Errorf("error body = %q", body["error"])
		}
	}
}

func TestServer_UnknownKind(t *testing.T) {
	ts := newTestServer(t, &fakeLoader{}, 0)
	resp, err := http.Get(ts.URL + "/api/stories/novel/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_InterpretScenario(t *testing.T) {
	fl := &fakeLoader{}
	ts := newTestServer(t, fl, 0)

	resp, err := http.Post(ts.URL+"/api/interpret/scenario?voiceSet=card", "application/json", strings.NewReader(`{"ScenarioId":"x"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fl.gotVS != story.VoiceCard || fl.gotBody != `{"ScenarioId":"x"}` {
		t.Fatalf("loader got vs=%v body=%q", fl.gotVS, fl.gotBody)
	}

	resp, err = http.Post(ts.URL+"/api/interpret/scenario?voiceSet=radio", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad voiceSet status = %d", resp.StatusCode)
	}
}

func TestServer_InterpretTalk(t *testing.T) {
	fl := &fakeLoader{}
	ts := newTestServer(t, fl, 0)

	resp, err := http.Post(ts.URL+"/api/interpret/talk?handles=1,%2027", "text/plain", strings.NewReader("wait_click()"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(fl.gotHandles) != 2 || fl.gotHandles[0] != 1 || fl.gotHandles[1] != 27 {
		t.Fatalf("handles = %v", fl.gotHandles)
	}

	resp, err = http.Post(ts.URL+"/api/interpret/talk?handles=a", "text/plain", strings.NewReader(""))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad handles status = %d", resp.StatusCode)
	}
}

func TestServer_HealthVersionAndCharacters(t *testing.T) {
	ts := newTestServer(t, &fakeLoader{}, 0)

	for _, p := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + p)
		if err != nil {
			t.Fatalf("get %s: %v", p, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", p, resp.StatusCode)
		}
	}

	c := NewClient(ts.URL+"/", 0)
	v, err := c.Version(context.Background())
	if err != nil || v != version.String() {
		t.Fatalf("version = %q, %v", v, err)
	}
	chars, err := c.Characters(context.Background())
	if err != nil || len(chars) == 0 {
		t.Fatalf("characters = %d, %v", len(chars), err)
	}
}

func TestServer_LoadsNeedDatabase(t *testing.T) {
	ts := newTestServer(t, &fakeLoader{}, 0)
	resp, err := http.Get(ts.URL + "/api/loads")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_RateLimited(t *testing.T) {
	ts := newTestServer(t, &fakeLoader{}, 0.001)
	first, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Body.Close()
	second, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second.Body.Close()
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("statuses = %d, %d", first.StatusCode, second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestParseHandles(t *testing.T) {
	got, err := ParseHandles(" 3,, 7 ")
	if err != nil || len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("ParseHandles = %v, %v", got, err)
	}
	if got, err := ParseHandles(""); err != nil || got != nil {
		t.Fatalf("empty = %v, %v", got, err)
	}
}
