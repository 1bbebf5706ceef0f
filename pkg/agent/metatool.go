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
	"context"

	"github.com/teradata-labs/treadle/pkg/tool"
)

const (
	// MetaToolName is the step-reporting meta tool every step exposes.
	MetaToolName = "agent_step"

	// RecallToolName is the reserved tool name the executor routes into
	// the context recall service instead of the generic tool path.
	RecallToolName = "context_recall"
)

// metaStepTool carries the agent_step schema to the model. Calls to it are
// intercepted and dispatched by the control loop; Execute exists only to
// satisfy the tool interface.
type metaStepTool struct{}

func (metaStepTool) Name() string { return MetaToolName }

func (metaStepTool) Description() string {
	return "Report your next step. Choose a phase and fill only that phase's fields: " +
		"reason/verify (thinking, summary), act (tool_name, tool_input), " +
		"reflect (approaches), feedback (message), end (end_status, message)."
}

func (metaStepTool) InputSchema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]*tool.JSONSchema{
			"phase": {
				Type:        "string",
				Description: "what kind of step this is",
				Enum: []interface{}{
					string(PhaseReason), string(PhaseAct), string(PhaseVerify),
					string(PhaseReflect), string(PhaseFeedback), string(PhaseEnd),
				},
			},
			"thinking": tool.NewStringSchema("your working reasoning for this step"),
			"summary":  tool.NewStringSchema("one-line summary of this step for the progress log"),
			"tool_name": tool.NewStringSchema(
				"act only: name of the tool to run"),
			"tool_input": {
				Type:        "object",
				Description: "act only: input for the tool, matching its schema",
			},
			"approaches": {
				Type:        "array",
				Description: "reflect only: labels of the approaches tried so far",
				Items:       tool.NewStringSchema("approach label"),
			},
			"message": tool.NewStringSchema(
				"feedback/end: the message shown to the user"),
			"end_status": {
				Type:        "string",
				Description: "end only: how the run concluded",
				Enum: []interface{}{
					string(EndSolved), string(EndPartial), string(EndStuck),
				},
			},
		},
		Required: []string{"phase"},
	}
}

func (metaStepTool) SelectionHints() []string { return nil }

func (metaStepTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	return tool.Failure("not_executable", "agent_step is handled by the control loop"), nil
}

// recallQueryTool exposes the context recall capability to the model. The
// executor intercepts calls by name and runs the recall pipeline; Execute
// exists only to satisfy the tool interface.
type recallQueryTool struct{}

func (recallQueryTool) Name() string { return RecallToolName }

func (recallQueryTool) Description() string {
	return "Search past conversation sessions for context relevant to the current " +
		"request. Use when the user refers to earlier discussions, prior decisions, " +
		"or anything you do not have in the current conversation."
}

func (recallQueryTool) InputSchema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]*tool.JSONSchema{
			"query": tool.NewStringSchema(
				"what you are trying to remember, in the user's terms"),
			"search_query": tool.NewStringSchema(
				"optional refined keyword query for the session search"),
		},
		Required: []string{"query"},
	}
}

func (recallQueryTool) SelectionHints() []string {
	return []string{"remember", "recall", "previous", "earlier", "history", "past", "session"}
}

func (recallQueryTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	return tool.Failure("not_executable", "context_recall is handled by the action executor"), nil
}
