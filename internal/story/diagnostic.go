/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import "fmt"

// Code classifies a Diagnostic.
type Code string

const (
	CodeDanglingReference Code = "dangling_reference"
	CodeMalformedLine     Code = "malformed_line"
	CodeUnparsedPartVoice Code = "unparsed_part_voice"
	CodeMissingScenarioID Code = "missing_scenario_id"
)

// Diagnostic reports input the interpreters skipped. Snippet is the position
// in the snippet index (-1 for talk scripts); Line is the 1-based source line
// of a talk script (0 for scenario documents).
type Diagnostic struct {
	Code    Code   `json:"code"`
	Snippet int    `json:"snippet"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", d.Line, d.Code, d.Message)
	}
	if d.Snippet >= 0 {
		return fmt.Sprintf("snippet %d: %s: %s", d.Snippet, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}
