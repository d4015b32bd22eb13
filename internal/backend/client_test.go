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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyreader/internal/loader"
	"storyreader/internal/masterdata"
	"storyreader/internal/story"
)

func TestClient_Story(t *testing.T) {
	fl := &fakeLoader{}
	ts := newTestServer(t, fl, 0)

	sc, err := NewClient(ts.URL, time.Second).Story(context.Background(), masterdata.KindCardStory, "/1033/ 2/")
	if err != nil {
		t.Fatalf("story: %v", err)
	}
	if sc.Kind != masterdata.KindCardStory || sc.Ref != "1033/2" {
		t.Fatalf("scenario kind=%q ref=%q", sc.Kind, sc.Ref)
	}
	if _, ok := sc.Actions[0].(*story.TalkAction); !ok {
		t.Fatalf("action = %T", sc.Actions[0])
	}
}

func TestClient_APIError(t *testing.T) {
	ts := newTestServer(t, &fakeLoader{err: fmt.Errorf("%w: episode 9", loader.ErrNotFound)}, 0)

	_, err := NewClient(ts.URL, time.Second).Story(context.Background(), masterdata.KindUnitStory, "1/9")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message == "" {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestClient_HealthyPlainTextError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db not ready"))
	}))
	defer ts.Close()

	err := NewClient(ts.URL, time.Second).Healthy(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "db not ready" {
		t.Fatalf("err = %v", err)
	}
}
