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
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/treadle/pkg/tool"
)

// DatetimeTool reports the current date and time. Models have no clock;
// anything time-sensitive needs this tool rather than a guess.
type DatetimeTool struct {
	// now is swappable for tests.
	now func() time.Time
}

// NewDatetimeTool creates a datetime tool.
func NewDatetimeTool() *DatetimeTool {
	return &DatetimeTool{now: time.Now}
}

func (t *DatetimeTool) Name() string {
	return "datetime"
}

func (t *DatetimeTool) Description() string {
	return "Returns the current date and time, optionally in a specific timezone. " +
		"Use this whenever the task depends on today's date, the current time, or timestamps."
}

func (t *DatetimeTool) SelectionHints() []string {
	return []string{"time", "date", "now", "today", "clock", "timezone", "timestamp"}
}

func (t *DatetimeTool) InputSchema() *tool.JSONSchema {
	return tool.NewObjectSchema(
		"Parameters for reading the current time",
		map[string]*tool.JSONSchema{
			"timezone": tool.NewStringSchema("IANA timezone name (e.g., 'America/New_York', 'Europe/Berlin'). Default: UTC."),
			"format": tool.NewStringSchema("Output format: 'rfc3339' (default), 'unix', or 'human'").
				WithEnum("rfc3339", "unix", "human").
				WithDefault("rfc3339"),
		},
		nil,
	)
}

func (t *DatetimeTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	loc := time.UTC
	tzName := "UTC"
	if tz, ok := params["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       tool.ErrCodeInvalidInput,
					Message:    fmt.Sprintf("unknown timezone: %q", tz),
					Suggestion: "Use an IANA timezone name like 'America/New_York' or 'UTC'",
				},
			}, start), nil
		}
		loc = parsed
		tzName = tz
	}

	format := "rfc3339"
	if f, ok := params["format"].(string); ok && f != "" {
		format = f
	}

	now := t.now().In(loc)
	var output string
	switch format {
	case "rfc3339":
		output = now.Format(time.RFC3339)
	case "unix":
		output = fmt.Sprintf("%d", now.Unix())
	case "human":
		output = now.Format("Monday, January 2, 2006 at 15:04 MST")
	default:
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    fmt.Sprintf("unknown format: %q", format),
				Suggestion: "Use 'rfc3339', 'unix', or 'human'",
			},
		}, start), nil
	}

	return stamp(&tool.Result{
		OK:     true,
		Output: output,
		Meta: map[string]interface{}{
			"timezone": tzName,
			"format":   format,
			"unix":     now.Unix(),
		},
	}, start), nil
}
