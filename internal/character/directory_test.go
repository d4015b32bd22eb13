/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package character

import "testing"

func TestDefaultDirectoryLookups(t *testing.T) {
	d := Default()
	if d.Len() != 26 {
		t.Fatalf("expected 26 characters, got %d", d.Len())
	}
	c, ok := d.ByName("Rin")
	if !ok || c.ID != 22 {
		t.Fatalf("Rin lookup: %+v %v", c, ok)
	}
	if c.NumericVoiceID != 22 {
		t.Fatalf("voice id should default to character id, got %d", c.NumericVoiceID)
	}
	if c, ok := d.ByName("リン"); !ok || c.ID != 22 {
		t.Fatalf("alias lookup failed: %+v", c)
	}
	if c, ok := d.ByName("meiko"); !ok || c.ID != 25 {
		t.Fatalf("case-insensitive lookup failed: %+v", c)
	}
	if _, ok := d.ByName("Nobody"); ok {
		t.Fatalf("unknown name should not resolve")
	}
	if _, ok := d.ByName("  "); ok {
		t.Fatalf("blank name should not resolve")
	}
	if c, ok := d.ByID(5); !ok || c.ShortName != "Minori" {
		t.Fatalf("ByID(5): %+v", c)
	}
}

func TestNilDirectoryIsEmpty(t *testing.T) {
	var d *Directory
	if _, ok := d.ByID(1); ok {
		t.Fatalf("nil directory should not resolve ids")
	}
	if _, ok := d.ByName("Miku"); ok {
		t.Fatalf("nil directory should not resolve names")
	}
	if d.Len() != 0 || d.All() != nil {
		t.Fatalf("nil directory should be empty")
	}
}

func TestExactNameBeatsFoldedName(t *testing.T) {
	d := NewDirectory([]Character{
		{ID: 1, ShortName: "an"},
		{ID: 2, ShortName: "An"},
	})
	if c, _ := d.ByName("An"); c.ID != 2 {
		t.Fatalf("exact match should win, got %d", c.ID)
	}
	if c, _ := d.ByName("AN"); c.ID != 1 {
		t.Fatalf("first folded entry should win, got %d", c.ID)
	}
}

func TestMergeOverlaysAndKeepsOldNameAsAlias(t *testing.T) {
	d := Default().Merge([]Character{
		{ID: 21, ShortName: "初音ミク"},
		{ID: 101, ShortName: "Guest"},
	})
	if c, _ := d.ByID(21); c.ShortName != "初音ミク" || c.UnitID != UnitPiapro {
		t.Fatalf("overlay mismatch: %+v", c)
	}
	if c, ok := d.ByName("Miku"); !ok || c.ID != 21 {
		t.Fatalf("previous short name should stay resolvable")
	}
	if _, ok := d.ByID(101); !ok {
		t.Fatalf("new entry missing")
	}
	if all := d.All(); all[0].ID != 1 || all[len(all)-1].ID != 101 {
		t.Fatalf("All should be ordered by id")
	}
}

func TestLookupUnitVariant(t *testing.T) {
	cases := []struct {
		id   int
		char int
		unit string
	}{
		{1, 1, UnitLightSound},
		{8, 8, UnitIdol},
		{12, 12, UnitStreet},
		{16, 16, UnitThemePark},
		{20, 20, UnitSchoolRefusal},
		{22, 22, UnitPiapro},
		{27, 21, UnitLightSound},
		{31, 21, UnitSchoolRefusal},
		{32, 22, UnitLightSound},
		{56, 26, UnitSchoolRefusal},
	}
	for _, tc := range cases {
		v, ok := LookupUnitVariant(tc.id)
		if !ok || v.CharacterID != tc.char || v.Unit != tc.unit {
			t.Fatalf("variant %d: got %+v %v", tc.id, v, ok)
		}
	}
	for _, id := range []int{0, -1, 57} {
		if _, ok := LookupUnitVariant(id); ok {
			t.Fatalf("variant %d should be unknown", id)
		}
	}
}

func TestVoiceFolderName(t *testing.T) {
	if VoiceFolderName(21) != "miku" || VoiceFolderName(26) != "kaito" {
		t.Fatalf("virtual singer folder names mismatch")
	}
	if VoiceFolderName(7) != "7" {
		t.Fatalf("non singer should restate number")
	}
	if !IsVirtualSinger(24) || IsVirtualSinger(20) {
		t.Fatalf("IsVirtualSinger bounds wrong")
	}
}
