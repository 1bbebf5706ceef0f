// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tool

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateInput validates tool parameters against the tool's JSON Schema.
// Returns nil when the input is valid or the tool declares no schema.
//
// On failure the returned Error carries the serialized schema and the list of
// required fields in Details, so the caller can hand the model everything it
// needs to correct the call.
func ValidateInput(t Tool, params map[string]interface{}) *Error {
	schema := NormalizeSchema(t.InputSchema())
	if schema == nil {
		return nil // No schema = no validation
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	argsLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return &Error{
			Code:    ErrCodeInvalidInput,
			Message: fmt.Sprintf("schema validation failed: %v", err),
		}
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, len(result.Errors()))
	for i, verr := range result.Errors() {
		issues[i] = verr.String()
	}

	details := map[string]interface{}{
		"issues":   issues,
		"required": schema.Required,
	}
	if raw, jerr := schema.ToJSON(); jerr == nil {
		details["schema"] = string(raw)
	}

	return &Error{
		Code:       ErrCodeInvalidInput,
		Message:    fmt.Sprintf("invalid input for tool %q: %s", t.Name(), strings.Join(issues, "; ")),
		Details:    details,
		Suggestion: "fix the listed fields to match the tool's input schema and call again",
	}
}
