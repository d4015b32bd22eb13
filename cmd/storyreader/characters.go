/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"storyreader/internal/backend"
	"storyreader/internal/character"
	"storyreader/internal/telemetry"
)

var charactersCmd = &cobra.Command{
	Use:     "characters",
	GroupID: "service",
	Short:   "List characters or import overrides into the database",
}

var charactersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the effective character directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), true, func(a *app) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tUNIT\tALIASES")
			for _, c := range a.dir.All() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", c.ID, c.ShortName, c.UnitID, c.Aliases)
			}
			return tw.Flush()
		})
	},
}

var charactersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Upsert display names and aliases from a JSON or YAML list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		chars, err := parseCharacters(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return withApp(cmd.Context(), true, func(a *app) error {
			if a.db == nil {
				return errNoDatabase
			}
			if err := backend.NewCharacterStore(a.db).Upsert(cmd.Context(), chars...); err != nil {
				return err
			}
			telemetry.Track("characters_imported", map[string]any{"count": len(chars)})
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d characters\n", len(chars))
			return nil
		})
	},
}

var errNoDatabase = errors.New("no database available; run `storyreader config set-database-url` first")

// parseCharacters reads a JSON array (camelCase keys) or a YAML list
// (snake_case keys) of characters.
func parseCharacters(data []byte) ([]character.Character, error) {
	var chars []character.Character
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &chars); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(trimmed, &chars); err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, errors.New("no characters")
	}
	for i, c := range chars {
		if c.ID <= 0 {
			return nil, fmt.Errorf("entry %d: id must be positive", i)
		}
	}
	return chars, nil
}
