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
	"strings"
	"testing"
)

func searchTool() *MockTool {
	return &MockTool{
		MockName: "search",
		MockSchema: NewObjectSchema("Search input", map[string]*JSONSchema{
			"query": NewStringSchema("Search query"),
			"limit": NewIntegerSchema("Max results"),
		}, []string{"query"}),
	}
}

func TestValidateInputValid(t *testing.T) {
	err := ValidateInput(searchTool(), map[string]interface{}{
		"query": "recent sessions",
		"limit": 5,
	})
	if err != nil {
		t.Errorf("Expected valid input, got error: %v", err)
	}
}

func TestValidateInputMissingRequired(t *testing.T) {
	verr := ValidateInput(searchTool(), map[string]interface{}{
		"limit": 5,
	})
	if verr == nil {
		t.Fatal("Expected validation error for missing required field")
	}
	if verr.Code != ErrCodeInvalidInput {
		t.Errorf("Expected code %q, got %q", ErrCodeInvalidInput, verr.Code)
	}
	if !strings.Contains(verr.Message, "query") {
		t.Errorf("Expected message to mention missing field, got %q", verr.Message)
	}

	// The error must carry enough context for the model to self-correct
	required, ok := verr.Details["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "query" {
		t.Errorf("Expected required=[query] in details, got %v", verr.Details["required"])
	}
	schemaJSON, ok := verr.Details["schema"].(string)
	if !ok || !strings.Contains(schemaJSON, "\"query\"") {
		t.Errorf("Expected serialized schema in details, got %v", verr.Details["schema"])
	}
	if verr.Suggestion == "" {
		t.Error("Expected a suggestion on validation errors")
	}
}

func TestValidateInputWrongType(t *testing.T) {
	verr := ValidateInput(searchTool(), map[string]interface{}{
		"query": 42,
	})
	if verr == nil {
		t.Fatal("Expected validation error for wrong type")
	}
	issues, ok := verr.Details["issues"].([]string)
	if !ok || len(issues) == 0 {
		t.Fatalf("Expected issues list in details, got %v", verr.Details["issues"])
	}
}

func TestValidateInputNoSchema(t *testing.T) {
	tool := &MockTool{MockName: "freeform", MockSchema: &JSONSchema{Type: "object"}}
	if err := ValidateInput(tool, map[string]interface{}{"anything": true}); err != nil {
		t.Errorf("Open object schema should accept any input, got %v", err)
	}
}

func TestValidateInputNumericBounds(t *testing.T) {
	min, max := float64(1), float64(600)
	bounded := &MockTool{
		MockName: "runner",
		MockSchema: NewObjectSchema("Runner input", map[string]*JSONSchema{
			"timeout_seconds": NewNumberSchema("Timeout").WithRange(&min, &max),
		}, nil),
	}

	if err := ValidateInput(bounded, map[string]interface{}{"timeout_seconds": 30}); err != nil {
		t.Errorf("Expected in-range value to pass, got %v", err)
	}

	verr := ValidateInput(bounded, map[string]interface{}{"timeout_seconds": 9000})
	if verr == nil {
		t.Fatal("Expected validation error for out-of-range value")
	}
	if verr.Code != ErrCodeInvalidInput {
		t.Errorf("Expected code %q, got %q", ErrCodeInvalidInput, verr.Code)
	}
}
