/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package loader ties master data, document fetching and the interpreters
// together: given a story kind and reference it produces a timeline.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyreader/internal/assets"
	"storyreader/internal/character"
	"storyreader/internal/crash"
	applog "storyreader/internal/log"
	"storyreader/internal/masterdata"
	"storyreader/internal/story"
	"storyreader/internal/telemetry"
)

var (
	ErrNotFound        = errors.New("story not found")
	ErrBadRef          = errors.New("bad story reference")
	ErrFetch           = errors.New("fetch failed")
	ErrInvalidDocument = errors.New("invalid document")
)

// Provider answers master data questions. *masterdata.Store implements it.
type Provider interface {
	Locate(ctx context.Context, kind masterdata.StoryKind, parts []string) (masterdata.Location, error)
	MysekaiTalk(ctx context.Context, id int) (masterdata.TalkLocation, error)
	Cast(ctx context.Context, members []story.CastMember) ([]story.AppearCharacter, error)
}

// Scenario is a loaded and interpreted story.
type Scenario struct {
	LoadID             string                  `json:"loadId"`
	Kind               masterdata.StoryKind    `json:"kind"`
	Ref                string                  `json:"ref,omitempty"`
	Title              string                  `json:"title,omitempty"`
	ScenarioID         string                  `json:"scenarioId,omitempty"`
	SourceURL          string                  `json:"sourceUrl,omitempty"`
	FirstBackgroundURL string                  `json:"firstBackgroundUrl,omitempty"`
	FirstBGMURL        string                  `json:"firstBgmUrl,omitempty"`
	Characters         []story.AppearCharacter `json:"characters"`
	Actions            []story.Action          `json:"actions"`
	Diagnostics        []story.Diagnostic      `json:"diagnostics,omitempty"`
}

// UnmarshalJSON restores the tagged action list.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	type plain Scenario
	var aux struct {
		*plain
		Actions json.RawMessage `json:"actions"`
	}
	aux.plain = (*plain)(s)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Actions = nil
	if len(aux.Actions) == 0 || string(aux.Actions) == "null" {
		return nil
	}
	actions, err := story.DecodeActions(aux.Actions)
	if err != nil {
		return err
	}
	s.Actions = actions
	return nil
}

type Options struct {
	Provider    Provider
	Fetcher     assets.Fetcher
	Interpreter *story.Interpreter
	Logger      *slog.Logger
}

// Loader is safe for concurrent use.
type Loader struct {
	provider Provider
	fetcher  assets.Fetcher
	interp   *story.Interpreter
	log      *slog.Logger
}

func New(opts Options) *Loader {
	ld := &Loader{provider: opts.Provider, fetcher: opts.Fetcher, interp: opts.Interpreter, log: opts.Logger}
	if ld.fetcher == nil {
		ld.fetcher = assets.NewHTTPFetcher(assets.FetcherOptions{})
	}
	if ld.interp == nil {
		ld.interp = story.NewInterpreter(story.Options{})
	}
	if ld.log == nil {
		ld.log = applog.WithComponent("loader")
	}
	return ld
}

// Interpreter returns the interpreter in use.
func (ld *Loader) Interpreter() *story.Interpreter { return ld.interp }

// SplitRef splits "a/b/c" into reference parts, ignoring empty pieces.
func SplitRef(ref string) []string {
	var parts []string
	for _, p := range strings.Split(ref, "/") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Load resolves, fetches and interprets one story. A failure to resolve or
// fetch the document is returned as an error; problems inside the document
// end up in Scenario.Diagnostics. A load id already on ctx is kept.
func (ld *Loader) Load(ctx context.Context, kind masterdata.StoryKind, parts []string) (*Scenario, error) {
	if ld.provider == nil {
		return nil, errors.New("loader has no master data provider")
	}
	start := time.Now()
	id, ok := applog.LoadIDFrom(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = applog.ContextWithLoadID(ctx, id)
	}
	l := applog.WithOperation(ld.log, "load").With(slog.String("kind", string(kind)), slog.String("ref", strings.Join(parts, "/")))
	l.InfoContext(ctx, "load started")
	crash.Breadcrumb("load %s %s (%s)", kind, strings.Join(parts, "/"), id)

	var (
		sc  *Scenario
		err error
	)
	if kind.IsTalkScript() {
		sc, err = ld.loadTalk(ctx, parts)
	} else {
		sc, err = ld.loadSnippets(ctx, kind, parts)
	}
	if err != nil {
		l.WarnContext(ctx, "load failed", slog.Any("err", err))
		return nil, err
	}
	sc.LoadID = id
	sc.Kind = kind
	sc.Ref = strings.Join(parts, "/")
	took := time.Since(start)
	l.InfoContext(ctx, "load finished",
		slog.Int("actions", len(sc.Actions)),
		slog.Int("diagnostics", len(sc.Diagnostics)),
		slog.Duration("took", took))
	counts := make(map[string]int, 3)
	for k, n := range story.CountByKind(sc.Actions) {
		counts[string(k)] = n
	}
	telemetry.ScenarioLoaded(telemetry.LoadStats{
		Kind:        string(kind),
		Actions:     counts,
		Diagnostics: len(sc.Diagnostics),
		Took:        took,
	})
	return sc, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, masterdata.ErrNotFound), errors.Is(err, assets.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, masterdata.ErrBadRef), errors.Is(err, masterdata.ErrUnknownKind):
		return fmt.Errorf("%w: %w", ErrBadRef, err)
	}
	return fmt.Errorf("%w: %w", ErrFetch, err)
}

func (ld *Loader) loadSnippets(ctx context.Context, kind masterdata.StoryKind, parts []string) (*Scenario, error) {
	loc, err := ld.provider.Locate(ctx, kind, parts)
	if err != nil {
		return nil, classify(err)
	}
	url, err := ld.interp.Builder().Resolve(assets.CategoryScenarioJSON, loc.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRef, err)
	}
	data, err := ld.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, classify(err)
	}
	sc, err := ld.InterpretDocument(ctx, data, loc.VoiceSet)
	if err != nil {
		return nil, err
	}
	sc.Title = loc.Title
	sc.SourceURL = url
	return sc, nil
}

// SilentBGM is the placeholder track of scenes without music.
const SilentBGM = "bgm00000"

// InterpretDocument validates, decodes and interprets a raw scenario
// document. The cast is resolved through the provider when one is set.
func (ld *Loader) InterpretDocument(ctx context.Context, data []byte, vs story.VoiceSet) (*Scenario, error) {
	if err := ValidateScenario(data); err != nil {
		return nil, err
	}
	doc, err := story.DecodeScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	doc.VoiceSet = vs

	var appear []story.AppearCharacter
	if ld.provider != nil {
		appear, err = ld.provider.Cast(ctx, doc.Cast)
		if err != nil {
			// without the 2D table every speaker stays unresolved
			ld.log.WarnContext(ctx, "cast lookup failed", slog.Any("err", err))
			appear = nil
		}
	}
	actions, diags := ld.interp.InterpretScenario(doc, appear)
	sc := &Scenario{
		ScenarioID:  doc.ScenarioID,
		Characters:  ld.castListing(appear),
		Actions:     actions,
		Diagnostics: diags,
	}
	if doc.FirstBackground != "" {
		sc.FirstBackgroundURL = ld.interp.BackgroundURL(doc.FirstBackground)
	}
	if doc.FirstBGM != "" && doc.FirstBGM != SilentBGM {
		sc.FirstBGMURL = ld.interp.BGMURL(doc.FirstBGM)
	}
	return sc, nil
}

func (ld *Loader) loadTalk(ctx context.Context, parts []string) (*Scenario, error) {
	if len(parts) != 1 {
		return nil, fmt.Errorf("%w: mysekaiTalk wants 1 part, got %d", ErrBadRef, len(parts))
	}
	talkID, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: talk id %q", ErrBadRef, parts[0])
	}
	loc, err := ld.provider.MysekaiTalk(ctx, talkID)
	if err != nil {
		return nil, classify(err)
	}
	url, err := ld.interp.Builder().Resolve(assets.CategoryTalkScript, loc.AssetBundle, loc.Lua)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRef, err)
	}
	data, err := ld.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, classify(err)
	}
	sc := ld.InterpretTalk(ctx, string(data), loc.Handles)
	sc.SourceURL = url
	return sc, nil
}

// InterpretTalk interprets a talk script whose participants are handles.
func (ld *Loader) InterpretTalk(ctx context.Context, text string, handles []int) *Scenario {
	actions, diags := ld.interp.InterpretTalkScript(ctx, text, handles)
	ts, _ := story.ParseTalkScript(text)
	var appear []story.AppearCharacter
	for _, h := range handles {
		if v, ok := character.LookupUnitVariant(h); ok {
			appear = append(appear, story.AppearCharacter{Handle: strconv.Itoa(h), CharacterID: v.CharacterID})
		}
	}
	return &Scenario{
		ScenarioID:  ts.ScenarioID,
		Characters:  ld.castListing(appear),
		Actions:     actions,
		Diagnostics: diags,
	}
}

// castListing deduplicates the cast by character, filling display names
// from the directory.
func (ld *Loader) castListing(appear []story.AppearCharacter) []story.AppearCharacter {
	dir := ld.interp.Directory()
	seenID := map[int]bool{}
	seenName := map[string]bool{}
	out := make([]story.AppearCharacter, 0, len(appear))
	for _, a := range appear {
		if a.CharacterID > 0 {
			if seenID[a.CharacterID] {
				continue
			}
			seenID[a.CharacterID] = true
			if c, ok := dir.ByID(a.CharacterID); ok {
				a.Name = c.ShortName
			}
		} else {
			if a.Name == "" || seenName[a.Name] {
				continue
			}
			seenName[a.Name] = true
		}
		out = append(out, a)
	}
	return out
}
