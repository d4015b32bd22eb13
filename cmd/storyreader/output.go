/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"storyreader/internal/assets"
	"storyreader/internal/loader"
	"storyreader/internal/story"
)

func readAllLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, assets.MaxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > assets.MaxDocumentSize {
		return nil, fmt.Errorf("input larger than %d bytes", assets.MaxDocumentSize)
	}
	return data, nil
}

func printScenario(w io.Writer, sc *loader.Scenario, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sc)
	case "text", "":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if sc.Title != "" {
		fmt.Fprintf(w, "# %s\n", sc.Title)
	}
	if sc.SourceURL != "" {
		fmt.Fprintf(w, "source: %s\n", sc.SourceURL)
	}
	if sc.FirstBackgroundURL != "" {
		fmt.Fprintf(w, "background: %s\n", sc.FirstBackgroundURL)
	}
	if sc.FirstBGMURL != "" {
		fmt.Fprintf(w, "bgm: %s\n", sc.FirstBGMURL)
	}
	if len(sc.Characters) > 0 {
		names := make([]string, 0, len(sc.Characters))
		for _, c := range sc.Characters {
			names = append(names, c.Name)
		}
		fmt.Fprintf(w, "cast: %s\n", strings.Join(names, ", "))
	}
	for i, a := range sc.Actions {
		fmt.Fprintf(w, "%4d  %s\n", i, describe(a))
	}
	for _, d := range sc.Diagnostics {
		fmt.Fprintf(w, "warning: %s\n", d.Error())
	}
	return nil
}

func describe(a story.Action) string {
	switch v := a.(type) {
	case *story.TalkAction:
		who := v.CharacterName
		if v.CharacterID != nil {
			who = fmt.Sprintf("%s (#%d)", who, *v.CharacterID)
		}
		line := fmt.Sprintf("%s: %s", who, strings.ReplaceAll(v.Text, "\n", " "))
		if v.VoiceURL != "" {
			line += "  [" + v.VoiceURL + "]"
		}
		return line
	case *story.SpecialEffectAction:
		s := "effect " + v.EffectKind
		if v.Text != "" {
			s += " " + v.Text
		}
		if v.Resource != "" {
			s += " [" + v.Resource + "]"
		}
		return s
	case *story.SoundAction:
		switch {
		case v.HasBGM:
			return "bgm " + v.BGMURL
		case v.HasSE:
			return "se " + v.SEURL
		}
		return "sound " + v.PlayMode
	}
	return string(a.Kind())
}
