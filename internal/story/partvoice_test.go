/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"storyreader/internal/assets"
)

func TestParsePartVoice(t *testing.T) {
	cases := []struct {
		in      string
		ok      bool
		number  int
		part    string
		variant string
		clip    string
	}{
		{"partvoice_talk_21_3_happy", true, 21, "3", "happy", "partvoice_mysekai_21_3_happy"},
		{"partvoice_021_3_happy_02", true, 21, "3", "happy_02", "partvoice_mysekai_021_3_happy_02"},
		{"partvoice_mysekai_07_12_a", true, 7, "12", "a", "partvoice_mysekai_07_12_a"},
		{"partvoice_talk_x_3_happy", false, 0, "", "", ""},
		{"voice_0001", false, 0, "", "", ""},
	}
	for _, tc := range cases {
		pv, ok := ParsePartVoice(tc.in)
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v", tc.in, ok)
		}
		if !ok {
			continue
		}
		if pv.CharacterNumber != tc.number || pv.Part != tc.part || pv.Variant != tc.variant || pv.ClipName() != tc.clip {
			t.Fatalf("%s: got %+v clip %q", tc.in, pv, pv.ClipName())
		}
	}
}

func TestPartVoiceFolderNames(t *testing.T) {
	pv, _ := ParsePartVoice("partvoice_talk_21_3_happy")
	if got := pv.Folder("light_sound"); got != "mysekai_part_voice_v2_21miku_light_sound" {
		t.Fatalf("virtual singer folder %q", got)
	}
	pv, _ = ParsePartVoice("partvoice_talk_05_3_happy")
	if got := pv.Folder("idol"); got != "mysekai_part_voice_v2_55_idol" {
		t.Fatalf("member folder %q", got)
	}
}

func TestPartVoiceResolverProbesPrimaryOnce(t *testing.T) {
	builder := assets.NewBuilder(assets.MustSource(assets.SourceSnowy))
	for _, exists := range []bool{true, false} {
		var calls atomic.Int32
		r := NewPartVoiceResolver(builder, assets.ProberFunc(func(context.Context, string) bool {
			calls.Add(1)
			return exists
		}), nil)
		url, ok := r.Resolve(context.Background(), "partvoice_talk_21_3_happy", 28)
		if !ok {
			t.Fatalf("resolve failed")
		}
		want := "mysekai_part_voice_v2_21miku_idol/"
		if !exists {
			want = "mysekai_part_voice_v2_21miku_piapro/"
		}
		if !strings.Contains(url, want) || !strings.HasSuffix(url, "/partvoice_mysekai_21_3_happy.mp3") {
			t.Fatalf("exists=%v: got %q", exists, url)
		}
		if calls.Load() != 1 {
			t.Fatalf("exists=%v: expected exactly one probe, got %d", exists, calls.Load())
		}
	}
}

func TestPartVoiceResolverUnknownVariantSkipsProbe(t *testing.T) {
	var calls atomic.Int32
	r := NewPartVoiceResolver(assets.NewBuilder(assets.Source{}), assets.ProberFunc(func(context.Context, string) bool {
		calls.Add(1)
		return true
	}), nil)
	url, ok := r.Resolve(context.Background(), "partvoice_talk_22_1_x", 0)
	if !ok || !strings.Contains(url, "22rin_piapro") {
		t.Fatalf("expected piapro fallback, got %q", url)
	}
	if calls.Load() != 0 {
		t.Fatalf("unknown variant should not probe")
	}
	if _, ok := r.Resolve(context.Background(), "voice_1", 27); ok {
		t.Fatalf("plain voice should not resolve")
	}
}

func TestPartVoiceResolverNilProberFallsBack(t *testing.T) {
	r := NewPartVoiceResolver(assets.NewBuilder(assets.Source{}), nil, nil)
	url, ok := r.Resolve(context.Background(), "partvoice_talk_21_3_happy", 27)
	if !ok || !strings.Contains(url, "21miku_piapro") {
		t.Fatalf("nil prober should fall back, got %q", url)
	}
	if !strings.HasPrefix(url, "https://sekai-assets-bdf29c81.seiunx.net/jp-assets/") {
		t.Fatalf("audio on uni should be served by haruki, got %q", url)
	}
}
