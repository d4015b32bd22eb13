/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package character

import "strconv"

// Unit identifiers as used in asset folder names.
const (
	UnitLightSound    = "light_sound"
	UnitIdol          = "idol"
	UnitStreet        = "street"
	UnitThemePark     = "theme_park"
	UnitSchoolRefusal = "school_refusal"
	UnitPiapro        = "piapro"
)

// DefaultUnitVariant is the variant assumed when a speaker cannot be matched
// to any of a talk's character-unit handles (Miku with Leo/need).
const DefaultUnitVariant = 27

// FirstVirtualSinger and LastVirtualSinger bound the virtual singer ids.
const (
	FirstVirtualSinger = 21
	LastVirtualSinger  = 26
)

var bandUnits = [...]string{UnitLightSound, UnitIdol, UnitStreet, UnitThemePark, UnitSchoolRefusal}

var virtualSingerFolders = map[int]string{
	21: "miku",
	22: "rin",
	23: "len",
	24: "luka",
	25: "meiko",
	26: "kaito",
}

// IsVirtualSinger reports whether id denotes one of the six virtual singers.
func IsVirtualSinger(id int) bool { return id >= FirstVirtualSinger && id <= LastVirtualSinger }

// VoiceFolderName returns the lowercase name used in part-voice folders.
// Non virtual singers are spelled as their number.
func VoiceFolderName(number int) string {
	if n, ok := virtualSingerFolders[number]; ok {
		return n
	}
	return strconv.Itoa(number)
}

// UnitVariant is one row of the game-character-unit table: a character
// appearing as a member of (or guest in) a unit.
type UnitVariant struct {
	ID          int
	CharacterID int
	Unit        string
}

// LookupUnitVariant resolves a game-character-unit id. Ids 1-20 are the unit
// members, 21-26 the virtual singers in their own unit, 27-56 the virtual
// singers visiting each band unit in turn.
func LookupUnitVariant(id int) (UnitVariant, bool) {
	switch {
	case id >= 1 && id <= 20:
		return UnitVariant{ID: id, CharacterID: id, Unit: bandUnits[(id-1)/4]}, true
	case IsVirtualSinger(id):
		return UnitVariant{ID: id, CharacterID: id, Unit: UnitPiapro}, true
	case id >= 27 && id <= 56:
		k := id - 27
		return UnitVariant{ID: id, CharacterID: FirstVirtualSinger + k/len(bandUnits), Unit: bandUnits[k%len(bandUnits)]}, true
	}
	return UnitVariant{}, false
}

// Default returns the built-in directory of the 26 playable characters.
func Default() *Directory { return NewDirectory(builtin) }

var builtin = []Character{
	{ID: 1, ShortName: "Ichika", Aliases: []string{"一歌", "星乃一歌"}, UnitID: UnitLightSound},
	{ID: 2, ShortName: "Saki", Aliases: []string{"咲希", "天馬咲希"}, UnitID: UnitLightSound},
	{ID: 3, ShortName: "Honami", Aliases: []string{"穂波", "望月穂波"}, UnitID: UnitLightSound},
	{ID: 4, ShortName: "Shiho", Aliases: []string{"志歩", "日野森志歩"}, UnitID: UnitLightSound},
	{ID: 5, ShortName: "Minori", Aliases: []string{"みのり", "花里みのり"}, UnitID: UnitIdol},
	{ID: 6, ShortName: "Haruka", Aliases: []string{"遥", "桐谷遥"}, UnitID: UnitIdol},
	{ID: 7, ShortName: "Airi", Aliases: []string{"愛莉", "桃井愛莉"}, UnitID: UnitIdol},
	{ID: 8, ShortName: "Shizuku", Aliases: []string{"雫", "日野森雫"}, UnitID: UnitIdol},
	{ID: 9, ShortName: "Kohane", Aliases: []string{"こはね", "小豆沢こはね"}, UnitID: UnitStreet},
	{ID: 10, ShortName: "An", Aliases: []string{"杏", "白石杏"}, UnitID: UnitStreet},
	{ID: 11, ShortName: "Akito", Aliases: []string{"彰人", "東雲彰人"}, UnitID: UnitStreet},
	{ID: 12, ShortName: "Toya", Aliases: []string{"冬弥", "青柳冬弥"}, UnitID: UnitStreet},
	{ID: 13, ShortName: "Tsukasa", Aliases: []string{"司", "天馬司"}, UnitID: UnitThemePark},
	{ID: 14, ShortName: "Emu", Aliases: []string{"えむ", "鳳えむ"}, UnitID: UnitThemePark},
	{ID: 15, ShortName: "Nene", Aliases: []string{"寧々", "草薙寧々"}, UnitID: UnitThemePark},
	{ID: 16, ShortName: "Rui", Aliases: []string{"類", "神代類"}, UnitID: UnitThemePark},
	{ID: 17, ShortName: "Kanade", Aliases: []string{"奏", "宵崎奏"}, UnitID: UnitSchoolRefusal},
	{ID: 18, ShortName: "Mafuyu", Aliases: []string{"まふゆ", "朝比奈まふゆ"}, UnitID: UnitSchoolRefusal},
	{ID: 19, ShortName: "Ena", Aliases: []string{"絵名", "東雲絵名"}, UnitID: UnitSchoolRefusal},
	{ID: 20, ShortName: "Mizuki", Aliases: []string{"瑞希", "暁山瑞希"}, UnitID: UnitSchoolRefusal},
	{ID: 21, ShortName: "Miku", Aliases: []string{"ミク", "初音ミク"}, UnitID: UnitPiapro},
	{ID: 22, ShortName: "Rin", Aliases: []string{"リン", "鏡音リン"}, UnitID: UnitPiapro},
	{ID: 23, ShortName: "Len", Aliases: []string{"レン", "鏡音レン"}, UnitID: UnitPiapro},
	{ID: 24, ShortName: "Luka", Aliases: []string{"ルカ", "巡音ルカ"}, UnitID: UnitPiapro},
	{ID: 25, ShortName: "MEIKO", UnitID: UnitPiapro},
	{ID: 26, ShortName: "KAITO", UnitID: UnitPiapro},
}
