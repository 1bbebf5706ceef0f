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

// Package memory persists agent conversation history to SQLite.
//
// The store records every user message, assistant reply, agent step, and
// tool call/result as it happens, maintains a rolling summary per session,
// and serves the two read paths the framework depends on: prompt context
// assembly for the control loop and session/turn search for context recall.
//
// Turn content above a size threshold is zstd-compressed at rest. Full-text
// search uses SQLite FTS5 when the driver provides it and degrades to a
// keyword scan when it does not.
package memory

import (
	"time"
)

// Turn roles as stored in the turns table.
const (
	// RoleUser marks a message from the user.
	RoleUser = "user"

	// RoleAssistant marks user-facing assistant output (feedback messages
	// and final replies).
	RoleAssistant = "assistant"

	// RoleStep marks an internal agent step record (phase, thinking,
	// summary). Step turns are searchable by recall but excluded from
	// the conversation turns returned in prompt context.
	RoleStep = "step"
)

// Tool event kinds as stored in the tool_events table.
const (
	EventToolCall   = "call"
	EventToolResult = "result"
)

// Turn is one recorded entry in a session's history.
type Turn struct {
	// SessionID identifies the owning session.
	SessionID string

	// Ref is the stable per-session turn reference ("t0", "t1", ...).
	// Refs are assigned in insertion order and never reused.
	Ref string

	// Role is one of RoleUser, RoleAssistant, RoleStep.
	Role string

	// Content is the turn text, decompressed if it was stored compressed.
	Content string

	// TokenCount is the estimated token count of Content.
	TokenCount int

	// CreatedAt is when the turn was recorded.
	CreatedAt time.Time
}

// ToolEvent is one recorded tool call or tool result.
type ToolEvent struct {
	SessionID string

	// Kind is EventToolCall or EventToolResult.
	Kind string

	ToolName string

	// Input holds the tool parameters (call events only).
	Input map[string]interface{}

	// Output holds the result text (result events only).
	Output string

	// OK reports whether the tool succeeded (result events only).
	OK bool

	// Error holds "code: message" when the tool failed.
	Error string

	// DurationMs is the tool execution time (result events only).
	DurationMs int64

	CreatedAt time.Time
}

// PromptContext is the memory slice injected into the agent's system prompt
// at the start of a run.
type PromptContext struct {
	// ConversationTurns are the most recent user/assistant turns of the
	// session, oldest first. Step records are not included.
	ConversationTurns []Turn

	// PreviousSessionSummary is the rolling summary of the most recently
	// active other session, or empty if there is none.
	PreviousSessionSummary string

	// ToolEvents are the most recent tool events of the session, oldest
	// first.
	ToolEvents []ToolEvent
}

// Note is one named note in the store. Notes are global: any session can
// read a note regardless of which session wrote it.
type Note struct {
	// Name is the unique note identifier.
	Name string

	// Content is the note body.
	Content string

	// SessionID identifies the session that last wrote the note.
	SessionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SummaryHit is one ranked result from SearchSessionSummaries.
type SummaryHit struct {
	SessionID string
	Title     string
	Summary   string
	TurnCount int
	UpdatedAt time.Time

	// Score is the relevance score; higher is more relevant. Scores are
	// only comparable within a single result set.
	Score float64
}

// SessionInfo describes one stored session.
type SessionInfo struct {
	ID          string
	Title       string
	Summary     string
	TurnCount   int
	TotalTokens int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stats holds store-wide counters for monitoring.
type Stats struct {
	SessionCount        int
	TurnCount           int
	CompressedTurnCount int
	ToolEventCount      int
	TotalTokens         int
}
