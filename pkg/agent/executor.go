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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/observability"
	"github.com/teradata-labs/treadle/pkg/recall"
	"github.com/teradata-labs/treadle/pkg/tool"
)

// SessionMemory is the slice of the session store the loop writes to and
// reads prompt context from. All writes are best-effort: a failing store
// never fails a run.
type SessionMemory interface {
	RecordUserMessage(ctx context.Context, sessionID, content string) (memory.Turn, error)
	RecordAssistantFeedback(ctx context.Context, sessionID, content string) (memory.Turn, error)
	RecordAgentStep(ctx context.Context, sessionID string, step int, phase, thinking, summary string) (memory.Turn, error)
	RecordToolCall(ctx context.Context, sessionID, toolName string, input map[string]interface{}) error
	RecordToolResult(ctx context.Context, sessionID, toolName string, result *tool.Result, elapsed time.Duration) error
	PromptMemoryContext(ctx context.Context, sessionID string) (*memory.PromptContext, error)
}

// ActionExecutor runs one tool call: repeat blocking, recall routing, input
// validation, execution, and call/result recording. Execute never returns a
// Go error; every failure mode becomes a structured tool result the model
// can read and correct.
type ActionExecutor struct {
	registry            *tool.Registry
	recall              *recall.Service
	memory              SessionMemory
	repeatedActionLimit int
	tracer              observability.Tracer
	logger              *zap.Logger
}

// NewActionExecutor builds an executor. The recall service and memory may
// be nil; a nil recall turns context_recall calls into failures, a nil
// memory skips call/result recording.
func NewActionExecutor(registry *tool.Registry, recallSvc *recall.Service, mem SessionMemory,
	repeatedActionLimit int, tracer observability.Tracer, logger *zap.Logger) *ActionExecutor {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if repeatedActionLimit <= 0 {
		repeatedActionLimit = DefaultLoopConfig().RepeatedActionLimit
	}
	return &ActionExecutor{
		registry:            registry,
		recall:              recallSvc,
		memory:              mem,
		repeatedActionLimit: repeatedActionLimit,
		tracer:              tracer,
		logger:              logger,
	}
}

// Execute runs one action for the given run. It blocks consecutive repeats
// of the same (name, input) pair past the configured limit without touching
// the tool, routes the reserved recall name into the recall pipeline, and
// converts panics into structured failures.
func (e *ActionExecutor) Execute(ctx context.Context, st *RunState, toolName string, input map[string]interface{}) (res *tool.Result) {
	ctx, span := e.tracer.StartSpan(ctx, "agent.tool_execution")
	defer e.tracer.EndSpan(span)
	span.SetAttribute("tool_name", toolName)

	start := time.Now()

	// Recording runs last so it sees the final result, including one
	// substituted by the panic recovery below.
	defer func() {
		if res == nil {
			res = tool.Failure(tool.ErrCodeExecution, "tool returned no result")
		}
		if res.ExecutionTimeMs == 0 {
			res.ExecutionTimeMs = time.Since(start).Milliseconds()
		}
		span.SetAttribute("success", res.OK)
		span.SetAttribute("execution_time_ms", res.ExecutionTimeMs)
		if !res.OK && res.Error != nil {
			span.SetAttribute("error.code", res.Error.Code)
		}
		e.recordResult(ctx, st.ClientID, toolName, res, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked",
				zap.String("tool", toolName),
				zap.Any("panic", r))
			res = &tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       tool.ErrCodePanic,
					Message:    fmt.Sprintf("tool %q panicked: %v", toolName, r),
					Suggestion: "try a different tool or simpler input",
				},
			}
		}
	}()

	if e.memory != nil {
		if err := e.memory.RecordToolCall(ctx, st.ClientID, toolName, input); err != nil {
			e.logger.Warn("failed to record tool call", zap.Error(err))
		}
	}

	if blocked := st.recordAction(toolName, input, e.repeatedActionLimit); blocked {
		st.WidenSelection = true
		span.AddEvent("repeated_action.blocked", map[string]interface{}{
			"tool":        toolName,
			"consecutive": st.ConsecutiveRepeatedActions,
		})
		return &tool.Result{
			OK: false,
			Error: &tool.Error{
				Code: tool.ErrCodeRepeatedCall,
				Message: fmt.Sprintf(
					"call to %q blocked: the same tool with the same input has now been tried %d times in a row (limit %d)",
					toolName, st.ConsecutiveRepeatedActions, e.repeatedActionLimit),
				Suggestion: "change the input, try a different tool, or end the run if no approach is left",
			},
		}
	}

	if toolName == RecallToolName {
		return e.executeRecall(ctx, st, input)
	}

	t, ok := e.registry.Get(toolName)
	if !ok {
		return &tool.Result{
			OK: false,
			Error: &tool.Error{
				Code: tool.ErrCodeNotFound,
				Message: fmt.Sprintf("unknown tool %q; available tools: %s",
					toolName, strings.Join(e.registry.List(), ", ")),
				Suggestion: "call one of the listed tools",
			},
		}
	}

	if verr := tool.ValidateInput(t, input); verr != nil {
		return &tool.Result{OK: false, Error: verr}
	}

	result, err := t.Execute(ctx, input)
	if err != nil {
		return &tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:    tool.ErrCodeExecution,
				Message: fmt.Sprintf("tool %q failed: %v", toolName, err),
			},
		}
	}
	return result
}

// executeRecall runs the reserved context_recall action through the recall
// pipeline in explicit mode and renders the result as the JSON the model
// reads back.
func (e *ActionExecutor) executeRecall(ctx context.Context, st *RunState, input map[string]interface{}) *tool.Result {
	query, _ := input["query"].(string)
	if strings.TrimSpace(query) == "" {
		return &tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    "context_recall requires a non-empty \"query\"",
				Suggestion: "describe what you are trying to remember",
			},
		}
	}
	searchQuery, _ := input["search_query"].(string)
	if strings.TrimSpace(searchQuery) == "" {
		searchQuery = query
	}

	if e.recall == nil {
		return tool.Failure(tool.ErrCodeExecution, "context recall is not configured for this agent")
	}

	result := e.recall.Recall(ctx, searchQuery, nil, st.ClientID, recall.ModeExplicit)

	payload := map[string]interface{}{
		"status":               result.Status,
		"reason":               result.Reason,
		"query":                query,
		"search_query":         searchQuery,
		"searched_session_ids": result.SearchedSessionIDs,
		"evidence":             result.Evidence,
		"evidence_count":       len(result.Evidence),
		"model_calls":          result.ModelCalls,
		"elapsed_ms":           result.ElapsedMs,
		"found_useful_data":    result.Status == recall.StatusFound || result.Status == recall.StatusPartial,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to encode recall result: %v", err))
	}

	return &tool.Result{
		OK:     true,
		Output: string(raw),
		Meta: map[string]interface{}{
			"status":         string(result.Status),
			"evidence_count": len(result.Evidence),
		},
	}
}

func (e *ActionExecutor) recordResult(ctx context.Context, sessionID, toolName string, res *tool.Result, elapsed time.Duration) {
	if e.memory == nil {
		return
	}
	if err := e.memory.RecordToolResult(ctx, sessionID, toolName, res, elapsed); err != nil {
		e.logger.Warn("failed to record tool result", zap.Error(err))
	}
}
