/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package story interprets the two story script encodings (snippet indexed
// scenario documents and line oriented talk scripts) into one ordered
// timeline of actions.
package story

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionKind tags the variants of Action.
type ActionKind string

const (
	KindTalk          ActionKind = "talk"
	KindSpecialEffect ActionKind = "special_effect"
	KindSound         ActionKind = "sound"
)

// Action is one timeline event. The set of implementations is closed:
// *TalkAction, *SpecialEffectAction and *SoundAction.
type Action interface {
	Kind() ActionKind
	isAction()
}

// Timing carries the playback hints of a snippet. Talk-script actions leave
// it zero.
type Timing struct {
	Delay float64 `json:"delay,omitempty"`
	Wait  bool    `json:"wait,omitempty"`
}

// TalkAction is a line of dialogue. CharacterID is nil when the speaker
// could not be resolved; CharacterName then carries the raw name, if any.
type TalkAction struct {
	CharacterID   *int   `json:"characterId,omitempty"`
	CharacterName string `json:"characterName,omitempty"`
	Text          string `json:"text"`
	VoiceURL      string `json:"voiceUrl,omitempty"`
	Timing
}

// SpecialEffectAction is a visual or textual effect. Resource is the URL of
// the asset the effect refers to, when it has one.
type SpecialEffectAction struct {
	EffectKind string `json:"effectKind"`
	Text       string `json:"text,omitempty"`
	Resource   string `json:"resource,omitempty"`
	Timing
}

// SoundAction starts, stops or changes background music or sound effects.
// AudioURL is the BGM when present, else the sound effect.
type SoundAction struct {
	HasBGM   bool   `json:"hasBgm"`
	HasSE    bool   `json:"hasSe"`
	AudioURL string `json:"audioUrl,omitempty"`
	BGMURL   string `json:"bgmUrl,omitempty"`
	SEURL    string `json:"seUrl,omitempty"`
	PlayMode string `json:"playMode,omitempty"`
	Timing
}

func (*TalkAction) Kind() ActionKind          { return KindTalk }
func (*SpecialEffectAction) Kind() ActionKind { return KindSpecialEffect }
func (*SoundAction) Kind() ActionKind         { return KindSound }

func (*TalkAction) isAction()          {}
func (*SpecialEffectAction) isAction() {}
func (*SoundAction) isAction()         {}

func (a *TalkAction) MarshalJSON() ([]byte, error) {
	type plain TalkAction
	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		*plain
	}{KindTalk, (*plain)(a)})
}

func (a *SpecialEffectAction) MarshalJSON() ([]byte, error) {
	type plain SpecialEffectAction
	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		*plain
	}{KindSpecialEffect, (*plain)(a)})
}

func (a *SoundAction) MarshalJSON() ([]byte, error) {
	type plain SoundAction
	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		*plain
	}{KindSound, (*plain)(a)})
}

// ErrUnknownActionKind is returned by DecodeActions for unrecognized tags.
var ErrUnknownActionKind = errors.New("unknown action kind")

// DecodeActions parses a JSON array of tagged actions as produced by
// marshalling a []Action.
func DecodeActions(data []byte) ([]Action, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	out := make([]Action, 0, len(raws))
	for i, raw := range raws {
		var tag struct {
			Type ActionKind `json:"type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("decode action %d: %w", i, err)
		}
		var a Action
		switch tag.Type {
		case KindTalk:
			a = &TalkAction{}
		case KindSpecialEffect:
			a = &SpecialEffectAction{}
		case KindSound:
			a = &SoundAction{}
		default:
			return nil, fmt.Errorf("decode action %d: %w %q", i, ErrUnknownActionKind, tag.Type)
		}
		if err := json.Unmarshal(raw, a); err != nil {
			return nil, fmt.Errorf("decode action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// CountByKind tallies actions per variant.
func CountByKind(actions []Action) map[ActionKind]int {
	m := make(map[ActionKind]int, 3)
	for _, a := range actions {
		m[a.Kind()]++
	}
	return m
}

func intPtr(v int) *int { return &v }
