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

// Package llm defines the provider abstraction for the Treadle agent loop.
// Providers translate between the loop's turn model and each vendor's wire
// format (Anthropic, Bedrock, Ollama). Shared infrastructure such as rate
// limiting and tool name sanitization also lives here.
package llm

import (
	"context"

	"github.com/teradata-labs/treadle/pkg/tool"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string

	// Name is the tool name
	Name string

	// Input contains the tool parameters as JSON
	Input map[string]interface{}
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool)
	Role string

	// Content is the message text
	Content string

	// ToolCalls contains tool invocations (if role is assistant)
	ToolCalls []ToolCall

	// ToolUseID is the ID of the tool_use block this result corresponds to
	// (if role is tool). Providers like Bedrock and Anthropic use it to match
	// tool results to tool requests.
	ToolUseID string
}

// Usage tracks token usage and cost for a single model call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostUSD      float64
}

// TurnKind classifies a model turn.
type TurnKind string

const (
	// TurnAssistant is a plain text reply with no tool calls.
	TurnAssistant TurnKind = "assistant"

	// TurnToolCalls is a turn that requests one or more tool executions.
	TurnToolCalls TurnKind = "tool_calls"
)

// Turn is a single model response, classified by kind.
type Turn struct {
	// Kind is assistant (text only) or tool_calls.
	Kind TurnKind

	// Content is the text portion of the turn. May accompany tool calls.
	Content string

	// ToolCalls contains requested tool executions (kind tool_calls).
	ToolCalls []ToolCall

	// StopReason indicates why the model stopped
	StopReason string

	// Usage tracks token usage
	Usage Usage

	// Metadata contains provider-specific metadata
	Metadata map[string]interface{}
}

// NewTurn builds a Turn and classifies its kind: any tool call makes it a
// tool_calls turn, otherwise it is a plain assistant turn.
func NewTurn(content string, toolCalls []ToolCall, stopReason string, usage Usage) *Turn {
	kind := TurnAssistant
	if len(toolCalls) > 0 {
		kind = TurnToolCalls
	}
	return &Turn{
		Kind:       kind,
		Content:    content,
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// HasToolCalls reports whether the turn requests tool executions.
func (t *Turn) HasToolCalls() bool {
	return t.Kind == TurnToolCalls && len(t.ToolCalls) > 0
}

// Provider defines the interface for LLM providers.
// This allows pluggable model backends (Anthropic, Bedrock, Ollama).
type Provider interface {
	// Chat sends a conversation to the model and returns its turn.
	Chat(ctx context.Context, messages []Message, tools []tool.Tool) (*Turn, error)

	// Name returns the provider name
	Name() string

	// Model returns the model identifier
	Model() string

	// SupportsTools reports whether the model can emit native structured tool
	// calls. The agent loop requires native tool support and refuses to start
	// without it.
	SupportsTools() bool
}
