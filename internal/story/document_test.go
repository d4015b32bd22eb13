/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeScenarioFixture(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "event_01_01.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	doc, err := DecodeScenario(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ScenarioID != "event_01_01" || doc.FirstBGM != "bgm00012" || doc.FirstBackground != "bg_a000101" {
		t.Fatalf("header mismatch: %+v", doc)
	}
	if len(doc.Cast) != 2 || doc.Cast[0].Handle != "21" {
		t.Fatalf("cast mismatch: %+v", doc.Cast)
	}
	if len(doc.Snippets) != 6 || doc.Snippets[2].Kind != SnippetTalk || !doc.Snippets[2].Wait || doc.Snippets[2].Delay != 0.25 {
		t.Fatalf("snippets mismatch: %+v", doc.Snippets)
	}
	if doc.Talks[1].Characters[0] != "" || len(doc.Talks[1].Voices) != 0 {
		t.Fatalf("narration record mismatch: %+v", doc.Talks[1])
	}

	in := newTestInterpreter(t, nil)
	actions, diags := in.InterpretScenario(doc, []AppearCharacter{{Handle: "21", CharacterID: 21}, {Handle: "5", CharacterID: 5}})
	if len(actions) != 4 || len(diags) != 1 {
		t.Fatalf("expected 4 actions and 1 diagnostic, got %d/%d", len(actions), len(diags))
	}
	talk := actions[1].(*TalkAction)
	if talk.CharacterName != "みのり" || *talk.CharacterID != 5 {
		t.Fatalf("window display name should win: %+v", talk)
	}
	if snd := actions[2].(*SoundAction); snd.HasBGM || !snd.HasSE {
		t.Fatalf("sound mismatch: %+v", snd)
	}
}

func TestDecodeScenarioRejectsGarbage(t *testing.T) {
	if _, err := DecodeScenario([]byte("{")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestActionJSONRoundTrip(t *testing.T) {
	in := []Action{
		&TalkAction{CharacterID: intPtr(22), CharacterName: "Rin", Text: "やあ"},
		&SpecialEffectAction{EffectKind: "Telop", Text: "Morning", Timing: Timing{Wait: true}},
		&SoundAction{HasBGM: true, AudioURL: "u", BGMURL: "u", PlayMode: "CrossFade"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"type":"talk"`) || !strings.Contains(string(data), `"characterId":22`) {
		t.Fatalf("missing tag or fields: %s", data)
	}
	if strings.Contains(string(data), `"voiceUrl"`) {
		t.Fatalf("empty voice url should be omitted: %s", data)
	}
	out, err := DecodeActions(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 || out[0].Kind() != KindTalk || out[1].Kind() != KindSpecialEffect || out[2].Kind() != KindSound {
		t.Fatalf("kinds mismatch: %+v", out)
	}
	if tk := out[0].(*TalkAction); *tk.CharacterID != 22 || tk.Text != "やあ" {
		t.Fatalf("talk mismatch: %+v", tk)
	}
	if !out[1].(*SpecialEffectAction).Wait {
		t.Fatalf("timing lost")
	}
	counts := CountByKind(out)
	if counts[KindTalk] != 1 || counts[KindSound] != 1 {
		t.Fatalf("counts %v", counts)
	}
}

func TestDecodeActionsUnknownKind(t *testing.T) {
	_, err := DecodeActions([]byte(`[{"type":"layout"}]`))
	if !errors.Is(err, ErrUnknownActionKind) {
		t.Fatalf("expected ErrUnknownActionKind, got %v", err)
	}
}
