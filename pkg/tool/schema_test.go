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
	"encoding/json"
	"testing"
)

func TestNormalizeSchema_NilProperties(t *testing.T) {
	// Object with nil properties violates JSON Schema 2020-12
	schema := &JSONSchema{
		Type:       "object",
		Properties: nil,
	}

	normalized := NormalizeSchema(schema)

	if normalized.Properties == nil {
		t.Error("Expected properties to be non-nil after normalization")
	}
	if len(normalized.Properties) != 0 {
		t.Errorf("Expected empty properties map, got %d properties", len(normalized.Properties))
	}
}

func TestNormalizeSchema_NestedObjects(t *testing.T) {
	schema := &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"metadata": {
				Type:       "object",
				Properties: nil, // This should be normalized
			},
			"config": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"nested": {
						Type:       "object",
						Properties: nil, // This should also be normalized
					},
				},
			},
		},
	}

	normalized := NormalizeSchema(schema)

	if normalized.Properties["metadata"].Properties == nil {
		t.Error("Expected metadata.properties to be non-nil")
	}
	if normalized.Properties["config"].Properties["nested"].Properties == nil {
		t.Error("Expected config.nested.properties to be non-nil")
	}
}

func TestNormalizeSchema_MissingType(t *testing.T) {
	schema := &JSONSchema{
		Properties: map[string]*JSONSchema{
			"name": NewStringSchema("Name field"),
		},
	}

	normalized := NormalizeSchema(schema)

	if normalized.Type != "object" {
		t.Errorf("Expected inferred type 'object', got %q", normalized.Type)
	}
}

func TestNormalizeSchema_Nil(t *testing.T) {
	if got := NormalizeSchema(nil); got != nil {
		t.Errorf("NormalizeSchema(nil) = %v, want nil", got)
	}
}

func TestSchemaConstraintHelpers(t *testing.T) {
	min, max := float64(1), float64(600)
	num := NewNumberSchema("Timeout").WithRange(&min, &max)
	if num.Minimum == nil || *num.Minimum != 1 {
		t.Errorf("Expected minimum 1, got %v", num.Minimum)
	}
	if num.Maximum == nil || *num.Maximum != 600 {
		t.Errorf("Expected maximum 600, got %v", num.Maximum)
	}

	maxLen := 50
	str := NewStringSchema("Content").WithLength(nil, &maxLen)
	if str.MinLength != nil {
		t.Errorf("Expected nil minLength, got %v", str.MinLength)
	}
	if str.MaxLength == nil || *str.MaxLength != 50 {
		t.Errorf("Expected maxLength 50, got %v", str.MaxLength)
	}

	raw, err := num.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Schema JSON not parseable: %v", err)
	}
	if generic["minimum"] != float64(1) || generic["maximum"] != float64(600) {
		t.Errorf("Bounds lost in serialization: %v", generic)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := NewObjectSchema("Search input", map[string]*JSONSchema{
		"query": NewStringSchema("Search query"),
		"limit": NewIntegerSchema("Max results").WithDefault(10),
		"mode":  NewStringSchema("Match mode").WithEnum("exact", "fuzzy"),
	}, []string{"query"})

	raw, err := schema.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	parsed, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}

	if parsed.Type != "object" {
		t.Errorf("Expected type 'object', got %q", parsed.Type)
	}
	if len(parsed.Required) != 1 || parsed.Required[0] != "query" {
		t.Errorf("Required fields lost in round trip: %v", parsed.Required)
	}
	if parsed.Properties["mode"] == nil || len(parsed.Properties["mode"].Enum) != 2 {
		t.Error("Enum values lost in round trip")
	}

	// Serialized schema must be valid JSON with no unexpected envelope
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("Schema JSON not parseable: %v", err)
	}
	if _, ok := generic["properties"]; !ok {
		t.Error("Expected 'properties' key in serialized schema")
	}
}
