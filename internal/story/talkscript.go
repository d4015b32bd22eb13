/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import (
	"bufio"
	"errors"
	"regexp"
	"strings"
)

// BlockSeparator ends a dialogue block in a talk script.
const BlockSeparator = "wait_click()"

// TalkScript is a tokenized talk script.
type TalkScript struct {
	ScenarioID string
	Blocks     []TalkBlock
}

// TalkBlock holds the first label, voice and text forms of one block.
// Line is the 1-based line the block starts on.
type TalkBlock struct {
	Line           int
	Label          string
	VoiceFile      string
	VoiceCharacter string
	Text           string
}

// Speaker returns the name the block is spoken by: the label, else the
// character referenced by the voice form.
func (b TalkBlock) Speaker() string {
	if b.Label != "" {
		return b.Label
	}
	return b.VoiceCharacter
}

var reScenarioID = regexp.MustCompile(`(?m)^\s*--.*(?:シナリオID|ScenarioId)\s*[:：]\s*(.+?)\s*$`)

// ParseTalkScript splits src into blocks at every wait_click() and extracts
// the label("..."), voice("talk", "...", Characters.X) and text("...") forms
// of each block. Lines with other content are ignored. Blocks that carry no
// form at all are dropped.
func ParseTalkScript(src string) (TalkScript, []Diagnostic) {
	var ts TalkScript
	var diags []Diagnostic

	if m := reScenarioID.FindStringSubmatch(src); m != nil {
		ts.ScenarioID = m[1]
	}

	lineBase := 1
	for _, chunk := range strings.Split(src, BlockSeparator) {
		block := TalkBlock{}
		seen := false
		scanner := bufio.NewScanner(strings.NewReader(chunk))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := lineBase - 1
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			if block.Line == 0 {
				block.Line = lineNo
			}
			form, args, err := parseCall(line)
			if form == "" {
				continue
			}
			if err != nil {
				diags = append(diags, Diagnostic{Code: CodeMalformedLine, Snippet: -1, Line: lineNo, Message: form + ": " + err.Error()})
				continue
			}
			switch form {
			case "label":
				if len(args) == 0 || !args[0].quoted {
					diags = append(diags, Diagnostic{Code: CodeMalformedLine, Snippet: -1, Line: lineNo, Message: "label: missing name"})
					continue
				}
				seen = true
				if block.Label == "" {
					block.Label = args[0].value
				}
			case "voice":
				if len(args) < 2 || !args[0].quoted || !args[1].quoted {
					diags = append(diags, Diagnostic{Code: CodeMalformedLine, Snippet: -1, Line: lineNo, Message: "voice: want kind and file"})
					continue
				}
				if args[0].value != "talk" {
					continue
				}
				seen = true
				if block.VoiceFile == "" {
					block.VoiceFile = args[1].value
					if len(args) > 2 && !args[2].quoted {
						block.VoiceCharacter = strings.TrimPrefix(args[2].value, "Characters.")
					}
				}
			case "text":
				if len(args) == 0 || !args[0].quoted {
					diags = append(diags, Diagnostic{Code: CodeMalformedLine, Snippet: -1, Line: lineNo, Message: "text: missing string"})
					continue
				}
				seen = true
				if block.Text == "" {
					block.Text = args[0].value
				}
			}
		}
		if seen {
			ts.Blocks = append(ts.Blocks, block)
		}
		lineBase += strings.Count(chunk, "\n")
	}
	return ts, diags
}

type callArg struct {
	value  string
	quoted bool
}

var (
	errUnterminatedString = errors.New("unterminated string")
	errUnclosedCall       = errors.New("missing closing parenthesis")
)

// parseCall recognizes the label/voice/text forms by their fixed prefix and
// returns their arguments. form is empty for any other line.
func parseCall(line string) (form string, args []callArg, err error) {
	for _, f := range [...]string{"label", "voice", "text"} {
		if strings.HasPrefix(line, f+"(") {
			form = f
			break
		}
	}
	if form == "" {
		return "", nil, nil
	}
	rest := line[len(form)+1:]
	i := 0
	for {
		for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
			i++
		}
		if i >= len(rest) {
			return form, nil, errUnclosedCall
		}
		if rest[i] == ')' {
			return form, args, nil
		}
		if rest[i] == '"' {
			s, n, ok := scanString(rest[i:])
			if !ok {
				return form, nil, errUnterminatedString
			}
			args = append(args, callArg{value: s, quoted: true})
			i += n
		} else {
			j := i
			for j < len(rest) && rest[j] != ',' && rest[j] != ')' {
				j++
			}
			args = append(args, callArg{value: strings.TrimSpace(rest[i:j])})
			i = j
		}
		for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
			i++
		}
		if i < len(rest) && rest[i] == ',' {
			i++
		}
	}
}

// scanString reads a double-quoted literal at the start of s and returns its
// unescaped value and the number of bytes consumed. The two-character
// sequence \n becomes a line break.
func scanString(s string) (string, int, bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			return b.String(), i + 1, true
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"', '\\':
				b.WriteByte(s[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}
