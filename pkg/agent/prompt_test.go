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

package agent

import (
	"strings"
	"testing"

	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/tool"
)

func TestRenderScratchpad(t *testing.T) {
	if got := renderScratchpad(nil); got != "" {
		t.Errorf("Expected empty render for no entries, got %q", got)
	}

	out := renderScratchpad([]ScratchpadEntry{
		{Step: 1, Phase: PhaseReason, Summary: "pick a strategy", Thinking: "two options"},
		{Step: 2, Phase: PhaseAct, ToolName: "shell_execute", ToolResult: "total 4"},
	})
	for _, want := range []string{
		"## Progress log",
		"Step 1 [reason] pick a strategy",
		"thinking: two options",
		"Step 2 [act]",
		"tool: shell_execute",
		"result: total 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Scratchpad missing %q:\n%s", want, out)
		}
	}
}

func TestRenderScratchpad_TruncatesLongResults(t *testing.T) {
	long := strings.Repeat("x", scratchpadResultLimit+200)
	out := renderScratchpad([]ScratchpadEntry{
		{Step: 1, Phase: PhaseAct, ToolName: "t", ToolResult: long},
	})
	if !strings.Contains(out, "[truncated]") {
		t.Error("Expected long result to be truncated")
	}
	if len(out) >= len(long) {
		t.Errorf("Render should be shorter than the raw result: %d vs %d", len(out), len(long))
	}
}

func TestRenderToolResult(t *testing.T) {
	if got := renderToolResult(nil); got != "" {
		t.Errorf("Expected empty render for nil result, got %q", got)
	}
	if got := renderToolResult(&tool.Result{OK: true, Output: "hello"}); got != "hello" {
		t.Errorf("Expected raw output, got %q", got)
	}
	if got := renderToolResult(&tool.Result{OK: true}); got != "ok (no output)" {
		t.Errorf("Expected placeholder for empty output, got %q", got)
	}
	if got := renderToolResult(&tool.Result{OK: false}); got != "ERROR (no details)" {
		t.Errorf("Expected placeholder for missing error, got %q", got)
	}

	got := renderToolResult(&tool.Result{OK: false, Error: &tool.Error{
		Code:       "invalid_input",
		Message:    "path is required",
		Suggestion: "add a path field",
	}})
	if !strings.Contains(got, "ERROR invalid_input: path is required") {
		t.Errorf("Error line malformed: %q", got)
	}
	if !strings.Contains(got, "suggestion: add a path field") {
		t.Errorf("Suggestion missing: %q", got)
	}
}

func TestRenderPromptContext(t *testing.T) {
	if got := renderPromptContext(nil); got != "" {
		t.Errorf("Expected empty render for nil context, got %q", got)
	}

	out := renderPromptContext(&memory.PromptContext{
		PreviousSessionSummary: "user: set up the cluster",
		ConversationTurns: []memory.Turn{
			{Role: "user", Content: "how far did we get?"},
			{Role: "assistant", Content: "nodes are provisioned"},
		},
		ToolEvents: []memory.ToolEvent{
			{Kind: memory.EventToolCall, ToolName: "shell_execute"},
			{Kind: memory.EventToolResult, ToolName: "shell_execute", OK: true},
			{Kind: memory.EventToolResult, ToolName: "file_write", OK: false, Error: "permission denied"},
		},
	})
	for _, want := range []string{
		"## Previous session",
		"set up the cluster",
		"## Conversation so far",
		"user: how far did we get?",
		"assistant: nodes are provisioned",
		"## Recent tool activity",
		"shell_execute -> ok",
		"file_write -> failed: permission denied",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Context missing %q:\n%s", want, out)
		}
	}
	// Call events carry no outcome and are not rendered.
	if strings.Count(out, "shell_execute") != 1 {
		t.Errorf("Call events should be skipped:\n%s", out)
	}
}

func TestBuildBudgetReminder(t *testing.T) {
	cases := []struct {
		step, limit int
		want        bool
	}{
		{14, 20, false},
		{15, 20, true},
		{17, 20, true},
		{18, 20, false}, // past the 90% cutoff
		{7, 8, false},   // below the floor of 8
		{9, 12, true},
	}
	for _, tc := range cases {
		got := buildBudgetReminder(tc.step, tc.limit)
		if (got != "") != tc.want {
			t.Errorf("buildBudgetReminder(%d, %d) fired=%v, want %v",
				tc.step, tc.limit, got != "", tc.want)
		}
	}
}

func TestBuildProgressReminder(t *testing.T) {
	if got := buildProgressReminder(2, 4); got != "" {
		t.Errorf("Expected no reminder below threshold, got %q", got)
	}
	got := buildProgressReminder(3, 4)
	if got == "" {
		t.Fatal("Expected reminder at threshold")
	}
	if !strings.Contains(got, "3 consecutive steps") {
		t.Errorf("Reminder should carry the streak count: %q", got)
	}

	// Floor of 2 applies to small limits.
	if got := buildProgressReminder(1, 2); got != "" {
		t.Errorf("Expected no reminder at 1 with limit 2, got %q", got)
	}
	if got := buildProgressReminder(2, 2); got == "" {
		t.Error("Expected reminder at 2 with limit 2")
	}
}

func TestSelectionQuery(t *testing.T) {
	if got := selectionQuery("find the file", nil); got != "find the file" {
		t.Errorf("Expected bare user content, got %q", got)
	}

	entries := []ScratchpadEntry{
		{Summary: "a"}, {Summary: "b"}, {Summary: "c"}, {Summary: "d"}, {Summary: ""},
	}
	got := selectionQuery("find the file", entries)
	if got != "find the file c d" {
		t.Errorf("Expected last three non-empty summaries, got %q", got)
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Errorf("Short text should pass through, got %q", got)
	}
	if got := truncateText("exact", 5); got != "exact" {
		t.Errorf("Text at the limit should pass through, got %q", got)
	}
	got := truncateText("abcdefgh", 4)
	if !strings.HasPrefix(got, "abcd") || !strings.HasSuffix(got, "[truncated]") {
		t.Errorf("Expected clamped text with marker, got %q", got)
	}
	if got := truncateText("anything", 0); got != "anything" {
		t.Errorf("Zero max disables truncation, got %q", got)
	}
}
