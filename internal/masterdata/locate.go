/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"storyreader/internal/story"
)

// StoryKind names a family of stories sharing one lookup rule.
type StoryKind string

const (
	KindUnitStory    StoryKind = "unitStory"
	KindEventStory   StoryKind = "eventStory"
	KindCharaStory   StoryKind = "charaStory"
	KindCardStory    StoryKind = "cardStory"
	KindAreaTalk     StoryKind = "areaTalk"
	KindSpecialStory StoryKind = "specialStory"
	KindMysekaiTalk  StoryKind = "mysekaiTalk"
)

var kinds = []StoryKind{KindUnitStory, KindEventStory, KindCharaStory, KindCardStory, KindAreaTalk, KindSpecialStory, KindMysekaiTalk}

var (
	ErrUnknownKind = errors.New("unknown story kind")
	ErrBadRef      = errors.New("malformed story reference")
)

// Kinds lists the supported story kinds.
func Kinds() []StoryKind { return append([]StoryKind(nil), kinds...) }

func ParseKind(s string) (StoryKind, error) {
	for _, k := range kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// IsTalkScript reports whether stories of kind k are talk scripts rather
// than snippet documents.
func (k StoryKind) IsTalkScript() bool { return k == KindMysekaiTalk }

// Location tells where a snippet document lives and which voice folder its
// clips use. ScenarioPath is relative to the asset root, without extension.
type Location struct {
	Kind         StoryKind
	ScenarioPath string
	VoiceSet     story.VoiceSet
	Title        string
}

// TalkLocation points at a talk script. Handles are the participating
// game-character-unit ids.
type TalkLocation struct {
	ID          int
	AssetBundle string
	Lua         string
	Handles     []int
}

func ints(kind StoryKind, parts []string, n int) ([]int, error) {
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %s wants %d parts, got %d", ErrBadRef, kind, n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: %s part %d: %q", ErrBadRef, kind, i, p)
		}
		out[i] = v
	}
	return out, nil
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Locate resolves a snippet-format story reference. The parts are:
//
//	unitStory     <unit> <chapterNo> <episodeNo>
//	eventStory    <eventId> <episodeNo>
//	charaStory    <characterId>
//	cardStory     <cardEpisodeId>
//	areaTalk      <actionSetId>
//	specialStory  <specialStoryId> <episodeNo>
func (s *Store) Locate(ctx context.Context, kind StoryKind, parts []string) (Location, error) {
	loc := Location{Kind: kind}
	switch kind {
	case KindUnitStory:
		if len(parts) != 3 {
			return loc, fmt.Errorf("%w: %s wants 3 parts, got %d", ErrBadRef, kind, len(parts))
		}
		nums, err := ints(kind, parts[1:], 2)
		if err != nil {
			return loc, err
		}
		rows, err := table[UnitStory](ctx, s, TableUnitStories)
		if err != nil {
			return loc, err
		}
		unit, ok := find(rows, func(u UnitStory) bool { return u.Unit == parts[0] })
		if !ok {
			return loc, notFound("unit %s", parts[0])
		}
		ch, ok := find(unit.Chapters, func(c UnitStoryChapter) bool { return c.ChapterNo == nums[0] })
		if !ok {
			return loc, notFound("chapter %d", nums[0])
		}
		ep, ok := find(ch.Episodes, func(e UnitStoryEpisode) bool { return e.EpisodeNo == nums[1] })
		if !ok {
			return loc, notFound("episode %d", nums[1])
		}
		loc.ScenarioPath = "scenario/unitstory/" + ch.AssetbundleName + "/" + ep.ScenarioID
		loc.Title = ep.Title
	case KindEventStory:
		nums, err := ints(kind, parts, 2)
		if err != nil {
			return loc, err
		}
		rows, err := table[EventStory](ctx, s, TableEventStories)
		if err != nil {
			return loc, err
		}
		ch, ok := find(rows, func(e EventStory) bool { return e.EventID == nums[0] })
		if !ok {
			return loc, notFound("event %d", nums[0])
		}
		ep, ok := find(ch.EventStoryEpisodes, func(e EventStoryEpisode) bool { return e.EpisodeNo == nums[1] })
		if !ok {
			return loc, notFound("episode %d", nums[1])
		}
		loc.ScenarioPath = "event_story/" + ch.AssetbundleName + "/scenario/" + ep.ScenarioID
		loc.Title = ep.Title
	case KindCharaStory:
		nums, err := ints(kind, parts, 1)
		if err != nil {
			return loc, err
		}
		rows, err := table[CharacterProfile](ctx, s, TableCharacterProfiles)
		if err != nil {
			return loc, err
		}
		p, ok := find(rows, func(p CharacterProfile) bool { return p.CharacterID == nums[0] })
		if !ok {
			return loc, notFound("character profile %d", nums[0])
		}
		loc.ScenarioPath = "scenario/profile/" + p.ScenarioID
	case KindCardStory:
		return s.locateCard(ctx, parts)
	case KindAreaTalk:
		nums, err := ints(kind, parts, 1)
		if err != nil {
			return loc, err
		}
		rows, err := table[ActionSet](ctx, s, TableActionSets)
		if err != nil {
			return loc, err
		}
		a, ok := find(rows, func(a ActionSet) bool { return a.ID == nums[0] })
		if !ok {
			return loc, notFound("action set %d", nums[0])
		}
		if a.ScenarioID == "" {
			return loc, notFound("action set %d has no scenario", a.ID)
		}
		loc.ScenarioPath = fmt.Sprintf("scenario/actionset/group%d/%s", a.ID/100, a.ScenarioID)
		loc.VoiceSet = story.VoiceActionSet
	case KindSpecialStory:
		nums, err := ints(kind, parts, 2)
		if err != nil {
			return loc, err
		}
		rows, err := table[SpecialStory](ctx, s, TableSpecialStories)
		if err != nil {
			return loc, err
		}
		ch, ok := find(rows, func(sp SpecialStory) bool { return sp.ID == nums[0] })
		if !ok {
			return loc, notFound("special story %d", nums[0])
		}
		ep, ok := find(ch.Episodes, func(e SpecialStoryEpisode) bool { return e.EpisodeNo == nums[1] })
		if !ok {
			return loc, notFound("episode %d", nums[1])
		}
		bundle := ep.AssetbundleName
		if strings.HasPrefix(ep.ScenarioID, "op") {
			bundle = ch.AssetbundleName
		}
		loc.ScenarioPath = "scenario/special/" + bundle + "/" + ep.ScenarioID
		loc.Title = ep.Title
	case KindMysekaiTalk:
		return loc, fmt.Errorf("%w: %s is a talk script", ErrBadRef, kind)
	default:
		return loc, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return loc, nil
}

func (s *Store) locateCard(ctx context.Context, parts []string) (Location, error) {
	loc := Location{Kind: KindCardStory, VoiceSet: story.VoiceCard}
	nums, err := ints(KindCardStory, parts, 1)
	if err != nil {
		return loc, err
	}
	rows, err := table[CardEpisode](ctx, s, TableCardEpisodes)
	if err != nil {
		return loc, err
	}
	ep, ok := find(rows, func(e CardEpisode) bool { return e.ID == nums[0] })
	if !ok {
		return loc, notFound("card episode %d", nums[0])
	}
	bundle := ep.AssetbundleName
	if bundle == "" {
		cards, err := table[Card](ctx, s, TableCards)
		if err != nil {
			return loc, err
		}
		if c, ok := find(cards, func(c Card) bool { return c.ID == ep.CardID }); ok {
			bundle = c.AssetbundleName
		}
	}
	if bundle == "" {
		return loc, notFound("asset bundle of card episode %d", ep.ID)
	}
	dir := "character/member/"
	if s.region == "en" {
		dir = "character/member_scenario/"
	}
	loc.ScenarioPath = dir + bundle + "/" + ep.ScenarioID
	loc.Title = ep.Title
	return loc, nil
}

// MysekaiTalk resolves a talk id to its script and participant handles.
// A talk without a character group has no handles.
func (s *Store) MysekaiTalk(ctx context.Context, id int) (TalkLocation, error) {
	talks, err := table[MysekaiCharacterTalk](ctx, s, TableMysekaiCharacterTalks)
	if err != nil {
		return TalkLocation{}, err
	}
	t, ok := find(talks, func(t MysekaiCharacterTalk) bool { return t.ID == id })
	if !ok {
		return TalkLocation{}, notFound("mysekai talk %d", id)
	}
	loc := TalkLocation{ID: t.ID, AssetBundle: t.AssetbundleName, Lua: t.Lua}
	if t.MysekaiGameCharacterUnitGroupID == 0 {
		return loc, nil
	}
	groups, err := table[MysekaiGameCharacterUnitGroup](ctx, s, TableMysekaiGameCharacterUnitGroups)
	if err != nil {
		return loc, err
	}
	if g, ok := find(groups, func(g MysekaiGameCharacterUnitGroup) bool { return g.ID == t.MysekaiGameCharacterUnitGroupID }); ok {
		loc.Handles = append([]int(nil), g.Handles...)
	}
	return loc, nil
}

// Cast resolves the scenario's cast handles through the 2D model table.
// Game characters carry their global id; mobs carry only a name; unknown
// models fall back to the costume name.
func (s *Store) Cast(ctx context.Context, members []story.CastMember) ([]story.AppearCharacter, error) {
	out := make([]story.AppearCharacter, 0, len(members))
	for _, m := range members {
		ac := story.AppearCharacter{Handle: m.Handle, Name: m.Costume}
		id, err := strconv.Atoi(m.Handle)
		if err != nil {
			out = append(out, ac)
			continue
		}
		c2d, ok, err := s.Character2D(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			switch c2d.CharacterType {
			case CharacterTypeGame:
				ac.CharacterID = c2d.CharacterID
				ac.Name = ""
			case CharacterTypeMob:
				name, _, err := s.MobName(ctx, c2d.CharacterID)
				if err != nil {
					return nil, err
				}
				ac.Name = name
			}
		}
		out = append(out, ac)
	}
	return out, nil
}
