/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package masterdata

import (
	"encoding/json"
	"sort"
)

// Master table names, as published by the master data mirrors.
const (
	TableCharacter2Ds                   = "character2ds"
	TableMobCharacters                  = "mobCharacters"
	TableGameCharacters                 = "gameCharacters"
	TableUnitStories                    = "unitStories"
	TableEventStories                   = "eventStories"
	TableCharacterProfiles              = "characterProfiles"
	TableCardEpisodes                   = "cardEpisodes"
	TableCards                          = "cards"
	TableActionSets                     = "actionSets"
	TableSpecialStories                 = "specialStories"
	TableMysekaiCharacterTalks          = "mysekaiCharacterTalks"
	TableMysekaiGameCharacterUnitGroups = "mysekaiGameCharacterUnitGroups"
)

var allTables = []string{
	TableCharacter2Ds, TableMobCharacters, TableGameCharacters, TableUnitStories,
	TableEventStories, TableCharacterProfiles, TableCardEpisodes, TableCards,
	TableActionSets, TableSpecialStories, TableMysekaiCharacterTalks,
	TableMysekaiGameCharacterUnitGroups,
}

// Character2D links a scenario-local 2D model id to a character.
type Character2D struct {
	ID            int    `json:"id"`
	CharacterType string `json:"characterType"` // "game_character" | "mob"
	CharacterID   int    `json:"characterId"`
	Unit          string `json:"unit"`
	AssetName     string `json:"assetName"`
}

const (
	CharacterTypeGame = "game_character"
	CharacterTypeMob  = "mob"
)

type MobCharacter struct {
	ID     int    `json:"id"`
	Seq    int    `json:"seq"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

type GameCharacter struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	GivenName string `json:"givenName"`
	Unit      string `json:"unit"`
}

type UnitStory struct {
	Unit     string             `json:"unit"`
	Chapters []UnitStoryChapter `json:"chapters"`
}

type UnitStoryChapter struct {
	Unit            string             `json:"unit"`
	ChapterNo       int                `json:"chapterNo"`
	Title           string             `json:"title"`
	AssetbundleName string             `json:"assetbundleName"`
	Episodes        []UnitStoryEpisode `json:"episodes"`
}

type UnitStoryEpisode struct {
	EpisodeNo       int    `json:"episodeNo"`
	Title           string `json:"title"`
	AssetbundleName string `json:"assetbundleName"`
	ScenarioID      string `json:"scenarioId"`
}

type EventStory struct {
	ID                 int                 `json:"id"`
	EventID            int                 `json:"eventId"`
	AssetbundleName    string              `json:"assetbundleName"`
	EventStoryEpisodes []EventStoryEpisode `json:"eventStoryEpisodes"`
}

type EventStoryEpisode struct {
	ID              int    `json:"id"`
	EventStoryID    int    `json:"eventStoryId"`
	EpisodeNo       int    `json:"episodeNo"`
	Title           string `json:"title"`
	AssetbundleName string `json:"assetbundleName"`
	ScenarioID      string `json:"scenarioId"`
}

type CharacterProfile struct {
	CharacterID int    `json:"characterId"`
	ScenarioID  string `json:"scenarioId"`
}

type CardEpisode struct {
	ID              int    `json:"id"`
	CardID          int    `json:"cardId"`
	Title           string `json:"title"`
	AssetbundleName string `json:"assetbundleName"`
	ScenarioID      string `json:"scenarioId"`
}

type Card struct {
	ID              int    `json:"id"`
	CharacterID     int    `json:"characterId"`
	AssetbundleName string `json:"assetbundleName"`
}

type ActionSet struct {
	ID         int    `json:"id"`
	AreaID     int    `json:"areaId"`
	ScenarioID string `json:"scenarioId"`
}

type SpecialStory struct {
	ID              int                   `json:"id"`
	Title           string                `json:"title"`
	AssetbundleName string                `json:"assetbundleName"`
	Episodes        []SpecialStoryEpisode `json:"episodes"`
}

type SpecialStoryEpisode struct {
	EpisodeNo       int    `json:"episodeNo"`
	Title           string `json:"title"`
	AssetbundleName string `json:"assetbundleName"`
	ScenarioID      string `json:"scenarioId"`
}

type MysekaiCharacterTalk struct {
	ID                              int    `json:"id"`
	MysekaiGameCharacterUnitGroupID int    `json:"mysekaiGameCharacterUnitGroupId"`
	AssetbundleName                 string `json:"assetbundleName"`
	Lua                             string `json:"lua"`
}

// MysekaiGameCharacterUnitGroup lists the character-unit handles taking
// part in a talk. The table uses numbered columns; Handles collects every
// positive numeric column other than id, in column name order.
type MysekaiGameCharacterUnitGroup struct {
	ID      int
	Handles []int
}

func (g *MysekaiGameCharacterUnitGroup) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	*g = MysekaiGameCharacterUnitGroup{}
	for _, k := range keys {
		var n float64
		if err := json.Unmarshal(raw[k], &n); err != nil {
			continue // non-numeric columns carry no handle
		}
		if k == "id" {
			g.ID = int(n)
			continue
		}
		if n > 0 {
			g.Handles = append(g.Handles, int(n))
		}
	}
	return nil
}
