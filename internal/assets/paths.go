/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"regexp"
	"strconv"
	"strings"
)

var eventNumber = regexp.MustCompile(`event_(\d+)`)

// Scenario ids whose asset bundle was published under a different name.
var scenarioBundleFixups = map[string]string{
	"areatalk03_266(20230607修正)":               "areatalk03_266",
	"★4冬弥・泉_前半":                               "012043_touya01",
	"★4司・千秋_前半":                               "013042_tsukasa01",
	"★4類・夏目_後半":                               "016042_rui02",
	"connect_live_collaboration_ensta_story":    "collaboration_es_prequel_01",
	"ログインストーリー（OP）":                          "collaboration_es_op_01",
	"ログインストーリー（ED）":                          "collaboration_es_ed_01",
	"connect_live_01_band":                      "connect_live_01_lon_01",
	"connect_live_01_idol":                      "connect_live_01_mmj_01",
	"connect_live_01_night":                     "connect_live_01_nig_01",
	"story_connect_live_thanksgiving_4th_anv":   "story_connect_live_4th_anniversary_01",
}

// NormalizeScenarioID maps a scenario id as written in a scenario document
// to the asset bundle name its voice files live under. Events 167 to 176
// were shipped with ids one lower than their bundles.
func NormalizeScenarioID(id string) string {
	out := id
	if loc := eventNumber.FindStringSubmatchIndex(out); loc != nil {
		n, err := strconv.Atoi(out[loc[2]:loc[3]])
		if err == nil && n > 166 && n < 177 {
			out = out[:loc[2]] + strconv.Itoa(n+1) + out[loc[3]:]
		}
	}
	if fixed, ok := scenarioBundleFixups[out]; ok {
		return fixed
	}
	return out
}

// SoundEffectURL picks the sound effect template: event specific effects
// (se_event_<bundle>_<n>) live in the event's bundle.
func (b Builder) SoundEffectURL(se string) string {
	if strings.HasPrefix(se, "se_event") {
		parts := strings.Split(se, "_")
		if len(parts) > 2 {
			return b.URL(CategoryEventSoundEffect, strings.Join(parts[1:len(parts)-1], "_"), se)
		}
	}
	return b.URL(CategorySoundEffect, se)
}

// MovieDir returns the directory a movie asset lives in.
func MovieDir(movie string) string {
	if strings.Contains(movie, "opening") {
		return "movie"
	}
	return "scenario/movie"
}

// MovieURL renders the URL of a scenario movie.
func (b Builder) MovieURL(movie string) string {
	if movie == "" {
		return ""
	}
	return b.URL(CategoryMovie, MovieDir(movie), movie)
}
