/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Category selects a URL template.
type Category int

const (
	CategoryScenarioJSON Category = iota + 1
	CategoryBackground
	CategoryScenarioVoice
	CategoryCardVoice
	CategoryActionSetVoice
	CategoryBGM
	CategorySoundEffect
	CategoryEventSoundEffect
	CategoryMovie
	CategoryTalkScript
	CategoryTalkVoice
	CategoryPartVoice
)

// hosting tells which JP mirrors carry a category. CN mirrors carry all.
type hosting int

const (
	hostAll     hosting = iota
	hostNoUni           // media: uni only mirrors metadata, use haruki
	hostNoHaruki        // documents: haruki does not mirror them, use snowy
)

type template struct {
	name    string
	pattern string // {n} placeholders, n < args
	args    int
	host    hosting
}

var templates = map[Category]template{
	CategoryScenarioJSON:     {"scenario_json", "ondemand/{0}.json", 1, hostNoHaruki},
	CategoryBackground:       {"background", "ondemand/scenario/background/{0}/{0}.png", 1, hostNoUni},
	CategoryScenarioVoice:    {"scenario_voice", "ondemand/sound/scenario/voice/{0}/{1}.mp3", 2, hostNoUni},
	CategoryCardVoice:        {"card_voice", "ondemand/sound/card_scenario/voice/{0}/{1}.mp3", 2, hostNoUni},
	CategoryActionSetVoice:   {"actionset_voice", "ondemand/sound/actionset/voice/{0}/{1}.mp3", 2, hostNoUni},
	CategoryBGM:              {"bgm", "ondemand/sound/scenario/bgm/{0}/{0}.mp3", 1, hostNoUni},
	CategorySoundEffect:      {"se", "ondemand/sound/scenario/se/{0}.mp3", 1, hostNoUni},
	CategoryEventSoundEffect: {"event_se", "ondemand/event_story/{0}/scenario_se/{1}.mp3", 2, hostNoUni},
	CategoryMovie:            {"movie", "ondemand/{0}/{1}/{1}.mp4", 2, hostNoUni},
	CategoryTalkScript:       {"talk_script", "ondemand/{0}/{1}.lua.txt", 2, hostNoHaruki},
	CategoryTalkVoice:        {"talk_voice", "ondemand/mysekai/talk/voice/{0}/{1}.mp3", 2, hostNoUni},
	CategoryPartVoice:        {"part_voice", "ondemand/mysekai/talk/part_voice/{0}/{1}.mp3", 2, hostNoUni},
}

func (c Category) String() string {
	if t, ok := templates[c]; ok {
		return t.name
	}
	return "category(" + strconv.Itoa(int(c)) + ")"
}

var (
	ErrUnknownCategory = errors.New("unknown asset category")
	ErrSegments        = errors.New("invalid path segments")
)

// Builder renders asset URLs for one configured source. It is a value type
// without state beyond the source and safe for concurrent use.
type Builder struct {
	source Source
}

// NewBuilder returns a builder for src. A zero Source selects the default.
func NewBuilder(src Source) Builder {
	if src.BaseURL == "" {
		src = DefaultSource()
	}
	return Builder{source: src}
}

// Source returns the configured mirror.
func (b Builder) Source() Source { return b.source }

// HostFor returns the mirror that actually serves cat for this builder.
func (b Builder) HostFor(cat Category) Source {
	src := b.source
	if src.BaseURL == "" {
		src = DefaultSource()
	}
	if src.IsCN() {
		return src
	}
	switch templates[cat].host {
	case hostNoUni:
		if src.Name == SourceUni {
			return sources[SourceHaruki]
		}
	case hostNoHaruki:
		if src.Name == SourceHaruki {
			return sources[SourceSnowy]
		}
	}
	return src
}

// Resolve renders the URL for cat. Each segment may contain '/' separated
// path pieces; every piece is escaped on its own.
func (b Builder) Resolve(cat Category, segments ...string) (string, error) {
	t, ok := templates[cat]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownCategory, int(cat))
	}
	if len(segments) != t.args {
		return "", fmt.Errorf("%w: %s wants %d, got %d", ErrSegments, t.name, t.args, len(segments))
	}
	pairs := make([]string, 0, 2*len(segments))
	for i, s := range segments {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: %s segment %d is empty", ErrSegments, t.name, i)
		}
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", escapePath(s))
	}
	path := strings.NewReplacer(pairs...).Replace(t.pattern)
	return strings.TrimRight(b.HostFor(cat).BaseURL, "/") + "/" + path, nil
}

// URL is Resolve for callers that treat a missing URL as "no resource".
func (b Builder) URL(cat Category, segments ...string) string {
	u, err := b.Resolve(cat, segments...)
	if err != nil {
		return ""
	}
	return u
}

func escapePath(s string) string {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
