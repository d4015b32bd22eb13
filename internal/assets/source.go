/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package assets builds remote asset URLs for story resources and probes
// whether an asset exists on its host.
package assets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SourceName identifies one of the asset mirrors.
type SourceName string

const (
	SourceSnowy    SourceName = "snowyassets"
	SourceHaruki   SourceName = "haruki"
	SourceUni      SourceName = "uni"
	SourceSnowyCN  SourceName = "snowyassets_cn"
	SourceHarukiCN SourceName = "haruki_cn"
)

// Region of the game server a source mirrors.
const (
	RegionJP = "jp"
	RegionCN = "cn"
)

// Source is an asset mirror.
type Source struct {
	Name    SourceName
	BaseURL string
	Region  string
}

// IsCN reports whether the source mirrors the CN server. CN sources host
// every category themselves.
func (s Source) IsCN() bool { return s.Region == RegionCN }

var sources = map[SourceName]Source{
	SourceSnowy:    {Name: SourceSnowy, BaseURL: "https://snowyassets.exmeaning.com", Region: RegionJP},
	SourceHaruki:   {Name: SourceHaruki, BaseURL: "https://sekai-assets-bdf29c81.seiunx.net/jp-assets", Region: RegionJP},
	SourceUni:      {Name: SourceUni, BaseURL: "https://assets.unipjsk.com", Region: RegionJP},
	SourceSnowyCN:  {Name: SourceSnowyCN, BaseURL: "https://snowyassets.exmeaning.com/cn", Region: RegionCN},
	SourceHarukiCN: {Name: SourceHarukiCN, BaseURL: "https://sekai-assets-bdf29c81.seiunx.net/cn-assets", Region: RegionCN},
}

// ErrUnknownSource is returned by LookupSource for names outside the table.
var ErrUnknownSource = errors.New("unknown asset source")

// LookupSource returns the mirror registered under name. An empty name
// selects the default mirror.
func LookupSource(name string) (Source, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultSource(), nil
	}
	s, ok := sources[SourceName(name)]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return s, nil
}

// MustSource is LookupSource for compile-time constants.
func MustSource(name SourceName) Source {
	s, err := LookupSource(string(name))
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultSource is the mirror used when nothing is configured.
func DefaultSource() Source { return sources[SourceUni] }

// SourceNames lists the known mirror names, sorted.
func SourceNames() []string {
	out := make([]string, 0, len(sources))
	for n := range sources {
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}
