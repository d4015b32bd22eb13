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
	"fmt"
	"strconv"
)

// SnippetKind is the action code of a snippet.
type SnippetKind int

const (
	SnippetNone SnippetKind = iota
	SnippetTalk
	SnippetCharacterLayout
	SnippetInputName
	SnippetCharacterMotion
	SnippetSelectable
	SnippetSpecialEffect
	SnippetSound
	SnippetCharacterLayoutMode
)

var snippetKindNames = [...]string{
	"None", "Talk", "CharacterLayout", "InputName", "CharacterMotion",
	"Selectable", "SpecialEffect", "Sound", "CharacterLayoutMode",
}

func (k SnippetKind) String() string {
	if k >= 0 && int(k) < len(snippetKindNames) {
		return snippetKindNames[k]
	}
	return "Snippet(" + strconv.Itoa(int(k)) + ")"
}

// EffectType is the special effect code of an effect record.
type EffectType int

const (
	EffectChangeBackground      EffectType = 7
	EffectTelop                 EffectType = 8
	EffectChangeBackgroundStill EffectType = 17
	EffectPlaceInfo             EffectType = 18
	EffectMovie                 EffectType = 19
	EffectFullScreenText        EffectType = 24
)

var effectTypeNames = map[EffectType]string{
	0: "None", 1: "BlackIn", 2: "BlackOut", 3: "WhiteIn", 4: "WhiteOut",
	5: "ShakeScreen", 6: "ShakeWindow", 7: "ChangeBackground", 8: "Telop",
	9: "FlashbackIn", 10: "FlashbackOut", 11: "ChangeCardStill",
	12: "AmbientColorNormal", 13: "AmbientColorEvening", 14: "AmbientColorNight",
	15: "PlayScenarioEffect", 16: "StopScenarioEffect", 17: "ChangeBackgroundStill",
	18: "PlaceInfo", 19: "Movie", 20: "SekaiIn", 21: "SekaiOut",
	22: "AttachCharacterShader", 23: "SimpleSelectable", 24: "FullScreenText",
	25: "StopShakeScreen", 26: "StopShakeWindow", 27: "MemoryIn", 28: "MemoryOut",
	29: "BlackWipeInLeft", 30: "BlackWipeOutLeft", 31: "BlackWipeInRight",
	32: "BlackWipeOutRight", 33: "BlackWipeInTop", 34: "BlackWipeOutTop",
	35: "BlackWipeInBottom", 36: "BlackWipeOutBottom", 38: "FullScreenTextShow",
	39: "FullScreenTextHide", 40: "SekaiInCenter", 41: "SekaiOutCenter",
	42: "ChangeCameraPosition", 43: "ChangeCameraZoomLevel", 44: "Blur",
}

func (t EffectType) String() string {
	if n, ok := effectTypeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// PlayMode is the sound play mode of a sound record.
type PlayMode int

const (
	PlayCrossFade PlayMode = iota
	PlayStack
	PlayLoopSE
	PlayStopSE
	PlaySetBGMVolume
)

var playModeNames = [...]string{"CrossFade", "Stack", "LoopSe", "StopSe", "SetBgmVolume"}

func (m PlayMode) String() string {
	if m >= 0 && int(m) < len(playModeNames) {
		return playModeNames[m]
	}
	return playModeNames[PlayCrossFade]
}

// VoiceSet selects the voice folder family of a scenario.
type VoiceSet int

const (
	VoiceScenario VoiceSet = iota
	VoiceCard
	VoiceActionSet
)

// Snippet is one entry of the ordered snippet index. ReferenceIndex points
// into the record array selected by Kind.
type Snippet struct {
	Index          int
	Kind           SnippetKind
	ReferenceIndex int
	Delay          float64
	Wait           bool
}

// TalkRecord is a line of dialogue. Characters and Voices reference the
// speaking cast by handle and voice clip id.
type TalkRecord struct {
	Characters  []string
	DisplayName string
	Body        string
	Voices      []string
}

type EffectRecord struct {
	Type     EffectType
	Value    string
	SubValue string
	Duration float64
	IntValue int
}

type SoundRecord struct {
	PlayMode PlayMode
	BGM      string
	SE       string
	Volume   float64
	Duration float64
}

type LayoutRecord struct {
	Type      int
	Character string
	Costume   string
	Motion    string
	Facial    string
}

// CastMember lists a per-scenario character handle.
type CastMember struct {
	Handle  string
	Costume string
}

// AppearCharacter resolves a per-scenario handle to a global character id.
// Name is set for characters outside the directory (mobs).
type AppearCharacter struct {
	Handle      string `json:"handle"`
	CharacterID int    `json:"characterId"`
	Name        string `json:"name,omitempty"`
}

// ScenarioDocument is a snippet indexed scenario.
type ScenarioDocument struct {
	ScenarioID      string
	VoiceSet        VoiceSet
	FirstBackground string
	FirstBGM        string
	Cast            []CastMember
	Snippets        []Snippet
	Talks           []TalkRecord
	Effects         []EffectRecord
	Sounds          []SoundRecord
	Layouts         []LayoutRecord
}

// Handle renders the handle of a numeric 2D character id. Zero means "no
// character" and yields "".
func Handle(character2dID int) string {
	if character2dID == 0 {
		return ""
	}
	return strconv.Itoa(character2dID)
}

type rawScenario struct {
	ScenarioID       string `json:"ScenarioId"`
	FirstBgm         string `json:"FirstBgm"`
	FirstBackground  string `json:"FirstBackground"`
	AppearCharacters []struct {
		Character2dID int    `json:"Character2dId"`
		CostumeType   string `json:"CostumeType"`
	} `json:"AppearCharacters"`
	Snippets []struct {
		Index            int     `json:"Index"`
		Action           int     `json:"Action"`
		ProgressBehavior int     `json:"ProgressBehavior"`
		ReferenceIndex   int     `json:"ReferenceIndex"`
		Delay            float64 `json:"Delay"`
	} `json:"Snippets"`
	TalkData []struct {
		TalkCharacters []struct {
			Character2dID int `json:"Character2dId"`
		} `json:"TalkCharacters"`
		WindowDisplayName string `json:"WindowDisplayName"`
		Body              string `json:"Body"`
		Voices            []struct {
			Character2dID int    `json:"Character2dId"`
			VoiceID       string `json:"VoiceId"`
		} `json:"Voices"`
	} `json:"TalkData"`
	SpecialEffectData []struct {
		EffectType   int     `json:"EffectType"`
		StringVal    string  `json:"StringVal"`
		StringValSub string  `json:"StringValSub"`
		Duration     float64 `json:"Duration"`
		IntVal       int     `json:"IntVal"`
	} `json:"SpecialEffectData"`
	SoundData []struct {
		PlayMode int     `json:"PlayMode"`
		Bgm      string  `json:"Bgm"`
		Se       string  `json:"Se"`
		Volume   float64 `json:"Volume"`
		Duration float64 `json:"Duration"`
	} `json:"SoundData"`
	LayoutData []struct {
		Type          int    `json:"Type"`
		Character2dID int    `json:"Character2dId"`
		CostumeType   string `json:"CostumeType"`
		MotionName    string `json:"MotionName"`
		FacialName    string `json:"FacialName"`
	} `json:"LayoutData"`
}

// DecodeScenario converts a scenario asset in the game's JSON layout.
func DecodeScenario(data []byte) (*ScenarioDocument, error) {
	var raw rawScenario
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	doc := &ScenarioDocument{
		ScenarioID:      raw.ScenarioID,
		FirstBackground: raw.FirstBackground,
		FirstBGM:        raw.FirstBgm,
	}
	for _, a := range raw.AppearCharacters {
		doc.Cast = append(doc.Cast, CastMember{Handle: Handle(a.Character2dID), Costume: a.CostumeType})
	}
	for _, s := range raw.Snippets {
		doc.Snippets = append(doc.Snippets, Snippet{
			Index:          s.Index,
			Kind:           SnippetKind(s.Action),
			ReferenceIndex: s.ReferenceIndex,
			Delay:          s.Delay,
			Wait:           s.ProgressBehavior == 1,
		})
	}
	for _, t := range raw.TalkData {
		rec := TalkRecord{DisplayName: t.WindowDisplayName, Body: t.Body}
		for _, c := range t.TalkCharacters {
			rec.Characters = append(rec.Characters, Handle(c.Character2dID))
		}
		for _, v := range t.Voices {
			if v.VoiceID != "" {
				rec.Voices = append(rec.Voices, v.VoiceID)
			}
		}
		doc.Talks = append(doc.Talks, rec)
	}
	for _, e := range raw.SpecialEffectData {
		doc.Effects = append(doc.Effects, EffectRecord{
			Type:     EffectType(e.EffectType),
			Value:    e.StringVal,
			SubValue: e.StringValSub,
			Duration: e.Duration,
			IntValue: e.IntVal,
		})
	}
	for _, s := range raw.SoundData {
		doc.Sounds = append(doc.Sounds, SoundRecord{
			PlayMode: PlayMode(s.PlayMode),
			BGM:      s.Bgm,
			SE:       s.Se,
			Volume:   s.Volume,
			Duration: s.Duration,
		})
	}
	for _, l := range raw.LayoutData {
		doc.Layouts = append(doc.Layouts, LayoutRecord{
			Type:      l.Type,
			Character: Handle(l.Character2dID),
			Costume:   l.CostumeType,
			Motion:    l.MotionName,
			Facial:    l.FacialName,
		})
	}
	return doc, nil
}
