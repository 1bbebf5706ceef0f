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
	"fmt"
	"sort"
	"strings"
)

// Signature builds a canonical signature for a tool call. Two calls with the
// same tool name and semantically identical inputs produce the same signature
// regardless of key order, including in nested objects. Array element order is
// preserved because it is meaningful.
//
// The executor compares consecutive signatures to block exact repeat calls.
func Signature(toolName string, params map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString(toolName)
	sb.WriteByte('(')
	writeCanonical(&sb, params)
	sb.WriteByte(')')
	return sb.String()
}

func writeCanonical(sb *strings.Builder, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, k)
			sb.WriteByte(':')
			writeCanonical(sb, v[k])
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	case nil:
		sb.WriteString("null")
	default:
		// Scalars serialize deterministically via encoding/json
		raw, err := json.Marshal(v)
		if err != nil {
			// Unmarshalable values (func, chan) cannot come from parsed JSON;
			// fall back to fmt so the signature stays total.
			fmt.Fprintf(sb, "%q", fmt.Sprintf("%v", v))
			return
		}
		sb.Write(raw)
	}
}

func writeJSONString(sb *strings.Builder, s string) {
	raw, err := json.Marshal(s)
	if err != nil {
		fmt.Fprintf(sb, "%q", s)
		return
	}
	sb.Write(raw)
}
