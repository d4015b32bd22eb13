/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package character holds the read-only character directory used to resolve
// speaker identities while interpreting story scripts.
package character

import (
	"sort"
	"strings"
)

// Character is a directory entry. ShortName is the display name used in
// timelines; Aliases are alternative names a script may refer to the
// character by (for example the Japanese given name).
type Character struct {
	ID             int      `json:"id" yaml:"id"`
	ShortName      string   `json:"shortName" yaml:"short_name"`
	Aliases        []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	NumericVoiceID int      `json:"numericVoiceId,omitempty" yaml:"numeric_voice_id,omitempty"`
	UnitID         string   `json:"unitId,omitempty" yaml:"unit_id,omitempty"`
}

// Directory maps character ids and names to entries. It is immutable after
// construction and safe for concurrent readers.
type Directory struct {
	byID   map[int]Character
	byName map[string]int
	folded map[string]int
}

// NewDirectory indexes the given characters. Later entries win on id
// collisions; the first entry wins on name collisions.
func NewDirectory(chars []Character) *Directory {
	d := &Directory{
		byID:   make(map[int]Character, len(chars)),
		byName: make(map[string]int, len(chars)*2),
		folded: make(map[string]int, len(chars)*2),
	}
	for _, c := range chars {
		if c.NumericVoiceID == 0 {
			c.NumericVoiceID = c.ID
		}
		c.Aliases = append([]string(nil), c.Aliases...)
		d.byID[c.ID] = c
		for _, n := range append([]string{c.ShortName}, c.Aliases...) {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if _, ok := d.byName[n]; !ok {
				d.byName[n] = c.ID
			}
			f := strings.ToLower(n)
			if _, ok := d.folded[f]; !ok {
				d.folded[f] = c.ID
			}
		}
	}
	return d
}

// ByID looks up a character by its global id.
func (d *Directory) ByID(id int) (Character, bool) {
	if d == nil {
		return Character{}, false
	}
	c, ok := d.byID[id]
	return c, ok
}

// ByName resolves a display name or alias. Exact matches take precedence
// over case-insensitive ones.
func (d *Directory) ByName(name string) (Character, bool) {
	if d == nil {
		return Character{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Character{}, false
	}
	if id, ok := d.byName[name]; ok {
		return d.byID[id], true
	}
	if id, ok := d.folded[strings.ToLower(name)]; ok {
		return d.byID[id], true
	}
	return Character{}, false
}

// Len reports the number of characters.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byID)
}

// All returns the entries ordered by id.
func (d *Directory) All() []Character {
	if d == nil {
		return nil
	}
	out := make([]Character, 0, len(d.byID))
	for _, c := range d.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Merge returns a new directory holding d's entries overlaid by extra.
// Aliases of overlaid entries are united.
func (d *Directory) Merge(extra []Character) *Directory {
	base := d.All()
	idx := make(map[int]int, len(base))
	for i, c := range base {
		idx[c.ID] = i
	}
	for _, c := range extra {
		if i, ok := idx[c.ID]; ok {
			prev := base[i]
			if c.ShortName == "" {
				c.ShortName = prev.ShortName
			}
			if c.UnitID == "" {
				c.UnitID = prev.UnitID
			}
			c.Aliases = unionNames(prev.Aliases, c.Aliases, prev.ShortName)
			base[i] = c
			continue
		}
		if c.ShortName == "" && len(c.Aliases) > 0 {
			c.ShortName = c.Aliases[0]
		}
		idx[c.ID] = len(base)
		base = append(base, c)
	}
	return NewDirectory(base)
}

func unionNames(a, b []string, extra string) []string {
	seen := make(map[string]struct{}, len(a)+len(b)+1)
	var out []string
	for _, n := range append(append(append([]string(nil), a...), b...), extra) {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
