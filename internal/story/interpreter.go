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
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"storyreader/internal/assets"
	"storyreader/internal/character"
	applog "storyreader/internal/log"
)

// DefaultConcurrency bounds parallel voice resolution per talk script.
const DefaultConcurrency = 8

// Options configures an Interpreter. Zero values select the built-in
// directory, the default asset source and a prober that never finds
// anything.
type Options struct {
	Directory   *character.Directory
	Builder     assets.Builder
	Prober      assets.Prober
	Concurrency int
	Logger      *slog.Logger
}

// Interpreter turns scenario documents and talk scripts into timelines.
// It holds only read-only state and may be shared between goroutines.
type Interpreter struct {
	dir         *character.Directory
	builder     assets.Builder
	partVoice   *PartVoiceResolver
	concurrency int
	log         *slog.Logger
}

func NewInterpreter(opts Options) *Interpreter {
	in := &Interpreter{
		dir:         opts.Directory,
		builder:     opts.Builder,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
	}
	if in.dir == nil {
		in.dir = character.Default()
	}
	if in.builder.Source().BaseURL == "" {
		in.builder = assets.NewBuilder(assets.DefaultSource())
	}
	if in.concurrency <= 0 {
		in.concurrency = DefaultConcurrency
	}
	if in.log == nil {
		in.log = applog.WithComponent("story")
	}
	in.partVoice = NewPartVoiceResolver(in.builder, opts.Prober, in.log)
	return in
}

// Directory returns the character directory in use.
func (in *Interpreter) Directory() *character.Directory { return in.dir }

// Builder returns the asset path builder in use.
func (in *Interpreter) Builder() assets.Builder { return in.builder }

// InterpretScenario emits one action per Talk, SpecialEffect or Sound
// snippet, in snippet order. Snippets of other kinds emit nothing. A snippet
// whose reference index falls outside its record array is skipped and
// reported as a Diagnostic.
func (in *Interpreter) InterpretScenario(doc *ScenarioDocument, appear []AppearCharacter) ([]Action, []Diagnostic) {
	if doc == nil {
		return nil, nil
	}
	l := applog.WithOperation(in.log, "interpret_scenario").With(slog.String("scenario", doc.ScenarioID))
	cast := make(map[string]AppearCharacter, len(appear))
	for _, a := range appear {
		if a.Handle != "" {
			cast[a.Handle] = a
		}
	}
	scenarioID := assets.NormalizeScenarioID(doc.ScenarioID)

	actions := make([]Action, 0, len(doc.Snippets))
	var diags []Diagnostic
	dangling := func(pos int, s Snippet, n int) {
		d := Diagnostic{
			Code:    CodeDanglingReference,
			Snippet: pos,
			Message: fmt.Sprintf("%s reference %d outside %d records", s.Kind, s.ReferenceIndex, n),
		}
		l.Debug("skip snippet", slog.String("diag", d.Error()))
		diags = append(diags, d)
	}

	for pos, s := range doc.Snippets {
		timing := Timing{Delay: s.Delay, Wait: s.Wait}
		switch s.Kind {
		case SnippetTalk:
			if s.ReferenceIndex < 0 || s.ReferenceIndex >= len(doc.Talks) {
				dangling(pos, s, len(doc.Talks))
				continue
			}
			a := in.talkFromRecord(doc.Talks[s.ReferenceIndex], cast, doc.VoiceSet, scenarioID)
			a.Timing = timing
			actions = append(actions, a)
		case SnippetSpecialEffect:
			if s.ReferenceIndex < 0 || s.ReferenceIndex >= len(doc.Effects) {
				dangling(pos, s, len(doc.Effects))
				continue
			}
			a := in.effectFromRecord(doc.Effects[s.ReferenceIndex], doc.VoiceSet, scenarioID)
			a.Timing = timing
			actions = append(actions, a)
		case SnippetSound:
			if s.ReferenceIndex < 0 || s.ReferenceIndex >= len(doc.Sounds) {
				dangling(pos, s, len(doc.Sounds))
				continue
			}
			a := in.soundFromRecord(doc.Sounds[s.ReferenceIndex])
			a.Timing = timing
			actions = append(actions, a)
		}
	}
	l.Debug("interpreted", slog.Int("snippets", len(doc.Snippets)), slog.Int("actions", len(actions)), slog.Int("diagnostics", len(diags)))
	return actions, diags
}

func (in *Interpreter) talkFromRecord(rec TalkRecord, cast map[string]AppearCharacter, vs VoiceSet, scenarioID string) *TalkAction {
	a := &TalkAction{Text: rec.Body, CharacterName: rec.DisplayName}
	if len(rec.Characters) > 0 && rec.Characters[0] != "" {
		if ac, ok := cast[rec.Characters[0]]; ok {
			if ac.CharacterID > 0 {
				a.CharacterID = intPtr(ac.CharacterID)
			}
			if a.CharacterName == "" {
				if c, ok := in.dir.ByID(ac.CharacterID); ok {
					a.CharacterName = c.ShortName
				} else {
					a.CharacterName = ac.Name
				}
			}
		}
	}
	if len(rec.Voices) > 0 {
		a.VoiceURL = in.voiceURL(vs, scenarioID, rec.Voices[0])
	}
	return a
}

func (in *Interpreter) effectFromRecord(rec EffectRecord, vs VoiceSet, scenarioID string) *SpecialEffectAction {
	a := &SpecialEffectAction{EffectKind: rec.Type.String(), Text: rec.Value}
	switch rec.Type {
	case EffectChangeBackground, EffectChangeBackgroundStill:
		bg := rec.SubValue
		if bg == "" {
			bg = rec.Value
		}
		a.Resource = in.builder.URL(assets.CategoryBackground, bg)
	case EffectFullScreenText:
		if rec.SubValue != "" {
			a.Resource = in.voiceURL(vs, scenarioID, rec.SubValue)
		}
	case EffectMovie:
		a.Resource = in.builder.MovieURL(rec.Value)
	}
	return a
}

func (in *Interpreter) soundFromRecord(rec SoundRecord) *SoundAction {
	a := &SoundAction{HasBGM: rec.BGM != "", HasSE: rec.SE != "", PlayMode: rec.PlayMode.String()}
	if a.HasBGM {
		a.BGMURL = in.builder.URL(assets.CategoryBGM, rec.BGM)
	}
	if a.HasSE {
		a.SEURL = in.builder.SoundEffectURL(rec.SE)
	}
	a.AudioURL = a.BGMURL
	if a.AudioURL == "" {
		a.AudioURL = a.SEURL
	}
	return a
}

func (in *Interpreter) voiceURL(vs VoiceSet, scenarioID, voice string) string {
	cat := assets.CategoryScenarioVoice
	switch vs {
	case VoiceCard:
		cat = assets.CategoryCardVoice
	case VoiceActionSet:
		cat = assets.CategoryActionSetVoice
	}
	return in.builder.URL(cat, scenarioID, voice)
}

// BackgroundURL renders the URL of a scenario background.
func (in *Interpreter) BackgroundURL(bg string) string {
	return in.builder.URL(assets.CategoryBackground, bg)
}

// BGMURL renders the URL of a background music track.
func (in *Interpreter) BGMURL(bgm string) string {
	return in.builder.URL(assets.CategoryBGM, bgm)
}

// InterpretTalkScript emits one TalkAction per block that has a text line,
// in block order. handles are the game-character-unit ids of the talk's
// participants; they select the unit folder of part-voice clips. Voice URLs
// of different blocks are resolved in parallel; the call returns once all
// of them are settled.
func (in *Interpreter) InterpretTalkScript(ctx context.Context, text string, handles []int) ([]Action, []Diagnostic) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := applog.WithOperation(in.log, "interpret_talk")
	ts, diags := ParseTalkScript(text)

	type slot struct {
		action *TalkAction
		diag   *Diagnostic
	}
	var blocks []TalkBlock
	for _, b := range ts.Blocks {
		if b.Text != "" {
			blocks = append(blocks, b)
		}
	}
	slots := make([]slot, len(blocks))
	for i, b := range blocks {
		slots[i].action = in.talkFromBlock(b)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, b := range blocks {
		if b.VoiceFile == "" {
			continue
		}
		s := &slots[i]
		g.Go(func() error {
			url, d := in.talkVoiceURL(gctx, ts.ScenarioID, b, handles)
			s.action.VoiceURL = url
			s.diag = d
			return nil
		})
	}
	_ = g.Wait()

	actions := make([]Action, 0, len(slots))
	for _, s := range slots {
		actions = append(actions, s.action)
		if s.diag != nil {
			diags = append(diags, *s.diag)
		}
	}
	l.DebugContext(ctx, "interpreted", slog.Int("blocks", len(ts.Blocks)), slog.Int("actions", len(actions)), slog.Int("diagnostics", len(diags)))
	return actions, diags
}

func (in *Interpreter) talkFromBlock(b TalkBlock) *TalkAction {
	a := &TalkAction{Text: b.Text, CharacterName: b.Speaker()}
	if c, ok := in.dir.ByName(a.CharacterName); ok {
		a.CharacterID = intPtr(c.ID)
	}
	return a
}

func (in *Interpreter) talkVoiceURL(ctx context.Context, scenarioID string, b TalkBlock, handles []int) (string, *Diagnostic) {
	if IsPartVoice(b.VoiceFile) {
		variant := character.DefaultUnitVariant
		if c, ok := in.dir.ByName(b.Speaker()); ok {
			variant = unitVariantFor(c.ID, handles)
		}
		url, ok := in.partVoice.Resolve(ctx, b.VoiceFile, variant)
		if !ok {
			return "", &Diagnostic{Code: CodeUnparsedPartVoice, Snippet: -1, Line: b.Line, Message: b.VoiceFile}
		}
		return url, nil
	}
	if scenarioID == "" {
		return "", &Diagnostic{Code: CodeMissingScenarioID, Snippet: -1, Line: b.Line, Message: "no scenario id for voice " + b.VoiceFile}
	}
	return in.builder.URL(assets.CategoryTalkVoice, scenarioID, b.VoiceFile), nil
}

// unitVariantFor picks the participant handle that stands for character id.
func unitVariantFor(id int, handles []int) int {
	for _, h := range handles {
		if v, ok := character.LookupUnitVariant(h); ok && v.CharacterID == id {
			return h
		}
	}
	return character.DefaultUnitVariant
}
