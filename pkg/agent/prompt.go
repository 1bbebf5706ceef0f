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
	"fmt"
	"strings"

	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/tool"
)

// defaultSystemPrompt instructs the model on the step protocol. The phase
// dispatcher only works if the model reports steps against this shape, so
// keep the field names here in sync with the agent_step schema.
const defaultSystemPrompt = `You are an autonomous agent that solves the user's request in explicit steps.

On every turn, either:
- call agent_step to report your next step, or
- reply with plain text to deliver your final answer directly.

agent_step phases:
- reason: plan what to do next (fill thinking and summary)
- act: run a tool (fill tool_name and tool_input)
- verify: check whether the results so far actually answer the request
- reflect: when an approach is not working, record the approaches you have tried (fill approaches)
- feedback: ask the user a clarifying question (fill message); this pauses the run
- end: finish the run (fill end_status solved/partial/stuck and message)

You may also call other tools directly; each direct call counts as an act step.

Prefer acting to circling. Verify before you end. If you are repeating
yourself or out of ideas, end with status stuck instead of burning steps.`

// scratchpad rendering caps. Oversized tool output still reaches memory in
// full; only the re-injected transcript is clamped.
const (
	scratchpadResultLimit   = 4000
	scratchpadThinkingLimit = 600
	promptTurnLimit         = 500
)

// renderScratchpad turns the progress log into the transcript section of
// the system message.
func renderScratchpad(entries []ScratchpadEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n## Progress log\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\nStep %d [%s]", e.Step, e.Phase)
		if e.Summary != "" {
			sb.WriteString(" " + e.Summary)
		}
		if e.Thinking != "" {
			sb.WriteString("\n  thinking: " + truncateText(e.Thinking, scratchpadThinkingLimit))
		}
		if e.ToolName != "" {
			sb.WriteString("\n  tool: " + e.ToolName)
		}
		if e.ToolResult != "" {
			sb.WriteString("\n  result: " + truncateText(e.ToolResult, scratchpadResultLimit))
		}
	}
	return sb.String()
}

// renderToolResult flattens a tool result into the text stored in the
// scratchpad and fed back to the model.
func renderToolResult(res *tool.Result) string {
	if res == nil {
		return ""
	}
	if res.OK {
		if res.Output == "" {
			return "ok (no output)"
		}
		return res.Output
	}
	if res.Error == nil {
		return "ERROR (no details)"
	}
	text := fmt.Sprintf("ERROR %s: %s", res.Error.Code, res.Error.Message)
	if res.Error.Suggestion != "" {
		text += "\n  suggestion: " + res.Error.Suggestion
	}
	return text
}

// renderPromptContext turns the session's memory slice into the context
// section of the system message.
func renderPromptContext(pc *memory.PromptContext) string {
	if pc == nil {
		return ""
	}
	var sb strings.Builder
	if pc.PreviousSessionSummary != "" {
		sb.WriteString("\n\n## Previous session\n")
		sb.WriteString(pc.PreviousSessionSummary)
	}
	if len(pc.ConversationTurns) > 0 {
		sb.WriteString("\n\n## Conversation so far\n")
		for _, turn := range pc.ConversationTurns {
			fmt.Fprintf(&sb, "\n%s: %s", turn.Role, truncateText(turn.Content, promptTurnLimit))
		}
	}
	if len(pc.ToolEvents) > 0 {
		sb.WriteString("\n\n## Recent tool activity\n")
		for _, ev := range pc.ToolEvents {
			if ev.Kind != memory.EventToolResult {
				continue
			}
			outcome := "ok"
			if !ev.OK {
				outcome = "failed: " + ev.Error
			}
			fmt.Fprintf(&sb, "\n%s -> %s", ev.ToolName, outcome)
		}
	}
	return sb.String()
}

// buildBudgetReminder nudges the model toward wrapping up once most of the
// step budget is spent. Active in the 75%-90% window of the limit, with a
// floor of 8 steps so it never fires on tiny budgets.
func buildBudgetReminder(step, limit int) string {
	threshold := int(float64(limit) * 0.75)
	if threshold < 8 {
		threshold = 8
	}
	upper := int(float64(limit) * 0.90)
	if step >= threshold && step < upper {
		return fmt.Sprintf("\n\nNOTICE: you have used %d of %d steps. "+
			"If you have enough information, end the run now; only take more steps if they are essential.",
			step, limit)
	}
	return ""
}

// buildProgressReminder warns the model when it is close to the no-progress
// cutoff.
func buildProgressReminder(consecutiveNonAct, limit int) string {
	threshold := int(float64(limit) * 0.75)
	if threshold < 2 {
		threshold = 2
	}
	if consecutiveNonAct >= threshold {
		return fmt.Sprintf("\n\nNOTICE: %d consecutive steps without an action (limit %d). "+
			"Act on a tool, ask the user for feedback, or end the run.",
			consecutiveNonAct, limit)
	}
	return ""
}

// selectionQuery is what the tool selector ranks against: the user content
// plus the last few scratchpad summaries.
func selectionQuery(userContent string, entries []ScratchpadEntry) string {
	parts := []string{userContent}
	start := len(entries) - 3
	if start < 0 {
		start = 0
	}
	for _, e := range entries[start:] {
		if e.Summary != "" {
			parts = append(parts, e.Summary)
		}
	}
	return strings.Join(parts, " ")
}

// truncateText clamps s to max runes with a marker.
func truncateText(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "… [truncated]"
}
