/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package loader

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schema/scenario.schema.json
var scenarioSchemaJSON []byte

var (
	schemaOnce     sync.Once
	scenarioSchema *gojsonschema.Schema
	schemaErr      error
)

// ValidateScenario checks data against the scenario document schema. The
// returned error wraps ErrInvalidDocument and lists every violation.
func ValidateScenario(data []byte) error {
	schemaOnce.Do(func() {
		scenarioSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(scenarioSchemaJSON))
	})
	if schemaErr != nil {
		return fmt.Errorf("compile scenario schema: %w", schemaErr)
	}
	result, err := scenarioSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}
