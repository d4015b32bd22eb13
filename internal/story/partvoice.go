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
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"storyreader/internal/assets"
	"storyreader/internal/character"
	applog "storyreader/internal/log"
)

// PartVoicePrefix marks voice clips assembled from per-character parts.
const PartVoicePrefix = "partvoice_"

var partVoicePattern = regexp.MustCompile(`^partvoice_(?:[^_\d]+_)?(\d+)_(\d+)_(.+)$`)

// PartVoice is a parsed part-voice filename:
// partvoice_[<kind>_]<character number>_<part>_<variant>.
type PartVoice struct {
	CharacterNumber int
	characterRaw    string
	Part            string
	Variant         string
}

// ParsePartVoice splits a part-voice filename. Leading zeros of the
// character number are dropped.
func ParsePartVoice(file string) (PartVoice, bool) {
	m := partVoicePattern.FindStringSubmatch(file)
	if m == nil {
		return PartVoice{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return PartVoice{}, false
	}
	return PartVoice{CharacterNumber: n, characterRaw: m[1], Part: m[2], Variant: m[3]}, true
}

// ClipName is the clip's filename inside its folder.
func (p PartVoice) ClipName() string {
	return "partvoice_mysekai_" + p.characterRaw + "_" + p.Part + "_" + p.Variant
}

// Folder names the clip folder for a unit.
func (p PartVoice) Folder(unit string) string {
	n := strconv.Itoa(p.CharacterNumber)
	return "mysekai_part_voice_v2_" + n + character.VoiceFolderName(p.CharacterNumber) + "_" + unit
}

// PartVoiceResolver locates part-voice clips. The clip normally lives in the
// folder of the speaker's unit; virtual singers outside their own unit often
// only ship the piapro folder, so a missing primary falls back to it.
type PartVoiceResolver struct {
	builder assets.Builder
	prober  assets.Prober
	log     *slog.Logger
}

func NewPartVoiceResolver(b assets.Builder, p assets.Prober, l *slog.Logger) *PartVoiceResolver {
	if p == nil {
		p = assets.ProberFunc(func(context.Context, string) bool { return false })
	}
	if l == nil {
		l = applog.WithComponent("story")
	}
	return &PartVoiceResolver{builder: b, prober: p, log: l}
}

// Resolve returns the URL of file for the given unit variant. It probes the
// primary folder once and otherwise returns the piapro folder without
// probing it. ok is false when file is not a part-voice filename.
func (r *PartVoiceResolver) Resolve(ctx context.Context, file string, unitVariant int) (url string, ok bool) {
	pv, ok := ParsePartVoice(file)
	if !ok {
		return "", false
	}
	clip := pv.ClipName()
	l := applog.WithOperation(r.log, "part_voice")
	if v, known := character.LookupUnitVariant(unitVariant); known {
		primary := r.builder.URL(assets.CategoryPartVoice, pv.Folder(v.Unit), clip)
		if primary != "" && r.prober.Exists(ctx, primary) {
			return primary, true
		}
		l.DebugContext(ctx, "primary part voice missing", slog.String("url", primary), slog.Int("variant", unitVariant))
	} else {
		l.DebugContext(ctx, "unknown unit variant", slog.Int("variant", unitVariant))
	}
	return r.builder.URL(assets.CategoryPartVoice, pv.Folder(character.UnitPiapro), clip), true
}

// IsPartVoice reports whether a voice filename takes the part-voice path.
func IsPartVoice(file string) bool { return strings.HasPrefix(file, PartVoicePrefix) }
