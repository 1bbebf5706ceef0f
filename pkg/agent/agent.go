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
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/treadle/pkg/llm"
	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/observability"
	"github.com/teradata-labs/treadle/pkg/recall"
	"github.com/teradata-labs/treadle/pkg/tokencount"
	"github.com/teradata-labs/treadle/pkg/tool"
)

// Config assembles an Agent.
type Config struct {
	// Provider drives every model turn. Required, and must support
	// native tool calls.
	Provider llm.Provider

	// Tools is the tool catalog. Required (may be empty).
	Tools *tool.Registry

	// Recall enables the context_recall action. Nil leaves the tool
	// unexposed.
	Recall *recall.Service

	// Memory persists turns, steps, and tool events, and supplies prompt
	// context. Nil disables persistence.
	Memory SessionMemory

	// Loop budgets; zero fields take defaults.
	Loop AgentLoopConfig

	// SystemPrompt overrides the default step-protocol prompt. Leave
	// empty unless the replacement also explains agent_step.
	SystemPrompt string

	// Tracer defaults to the no-op tracer.
	Tracer observability.Tracer

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Agent is the phase-driven control loop. One Agent may serve concurrent
// runs; all per-run state lives in a RunState owned by a single Run call.
type Agent struct {
	provider     llm.Provider
	tools        *tool.Registry
	recall       *recall.Service
	memory       SessionMemory
	loop         AgentLoopConfig
	systemPrompt string
	selector     *ToolSelector
	executor     *ActionExecutor
	tracer       observability.Tracer
	logger       *zap.Logger
	counter      *tokencount.Counter
}

// New validates the configuration and builds an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("agent: provider is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("agent: tool registry is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	loop := cfg.Loop.withDefaults()
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Agent{
		provider:     cfg.Provider,
		tools:        cfg.Tools,
		recall:       cfg.Recall,
		memory:       cfg.Memory,
		loop:         loop,
		systemPrompt: prompt,
		selector:     NewToolSelector(loop.Selection, cfg.Logger),
		executor: NewActionExecutor(cfg.Tools, cfg.Recall, cfg.Memory,
			loop.RepeatedActionLimit, cfg.Tracer, cfg.Logger),
		tracer:  cfg.Tracer,
		logger:  cfg.Logger,
		counter: tokencount.GetCounter(),
	}, nil
}

// Run drives one request through the step loop until the model ends the
// run, asks for feedback, a budget stops it, or the escalation heuristic
// hands it off. The only error returned is the fatal precondition: a
// provider without native tool-call support.
func (a *Agent) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if !a.provider.SupportsTools() {
		return nil, fmt.Errorf("agent: provider %s (model %s) lacks native tool-call support",
			a.provider.Name(), a.provider.Model())
	}

	ctx, span := a.tracer.StartSpan(ctx, "agent.run")
	defer a.tracer.EndSpan(span)
	span.SetAttribute("client_id", req.ClientID)
	span.SetAttribute("content.length", len(req.UserContent))
	span.SetAttribute("llm.provider", a.provider.Name())
	span.SetAttribute("llm.model", a.provider.Model())

	st := newRunState(req.ClientID)

	if a.memory != nil {
		if _, err := a.memory.RecordUserMessage(ctx, req.ClientID, req.UserContent); err != nil {
			a.logger.Warn("failed to record user message", zap.Error(err))
		}
	}
	promptCtx := a.loadPromptContext(ctx, req.ClientID)
	candidates := a.candidateTools()

	var result *RunResult
	for {
		limit := a.loop.stepLimit(st.ToolCallsMade)
		if st.Step >= limit {
			span.AddEvent("budget.step_limit", map[string]interface{}{
				"step": st.Step, "limit": limit,
			})
			result = a.stuckResult(ctx, st, fmt.Sprintf(
				"I ran out of steps (%d of %d) before finishing. The progress so far may be incomplete.",
				st.Step, limit))
			break
		}
		if st.ConsecutiveNonActSteps >= a.loop.NoProgressLimit {
			span.AddEvent("budget.no_progress", map[string]interface{}{
				"consecutive_non_act": st.ConsecutiveNonActSteps,
			})
			result = a.stuckResult(ctx, st,
				"I stopped making progress: too many consecutive steps without an action.")
			break
		}

		st.Step++
		stepResult := a.step(ctx, st, req, promptCtx, candidates, limit)
		if stepResult != nil {
			result = stepResult
			break
		}

		if esc := a.loop.Escalation.shouldEscalate(st); esc != nil {
			span.AddEvent("escalation.triggered", map[string]interface{}{
				"tool_calls":   st.ToolCallsMade,
				"failed_calls": st.FailedToolCalls,
			})
			a.logger.Info("escalating run",
				zap.String("client_id", req.ClientID),
				zap.Int("tool_calls", st.ToolCallsMade),
				zap.Int("failed_calls", st.FailedToolCalls),
				zap.Int("reflect_cycles", st.ReflectCycles))
			result = &RunResult{
				Type:          ResultEscalate,
				Content:       esc.Reason,
				TotalSteps:    st.Step,
				ToolCallsMade: st.ToolCallsMade,
				Escalation:    esc,
			}
			break
		}
	}

	span.SetAttribute("result.type", string(result.Type))
	span.SetAttribute("total_steps", result.TotalSteps)
	span.SetAttribute("tool_calls_made", result.ToolCallsMade)
	a.tracer.RecordMetric("agent.run.steps", float64(result.TotalSteps), map[string]string{
		"result_type": string(result.Type),
		"end_status":  string(result.EndStatus),
	})
	a.tracer.RecordMetric("agent.run.tool_calls", float64(result.ToolCallsMade), map[string]string{
		"result_type": string(result.Type),
	})
	return result, nil
}

// step runs one loop iteration: rebuild the system message, select tools,
// request a model turn, and dispatch the response. A non-nil return ends
// the run with that result.
func (a *Agent) step(ctx context.Context, st *RunState, req RunRequest,
	promptCtx *memory.PromptContext, candidates []tool.Tool, limit int) *RunResult {

	ctx, span := a.tracer.StartSpan(ctx, "agent.step")
	defer a.tracer.EndSpan(span)
	span.SetAttribute("step", st.Step)

	system := a.buildSystemMessage(req, promptCtx, st, limit, span)

	topK := a.loop.Selection.TopK
	if st.WidenSelection {
		topK = a.loop.Selection.RetryTopK
		st.WidenSelection = false
		span.AddEvent("selection.widened", map[string]interface{}{"top_k": topK})
	}
	selection := a.selector.Select(selectionQuery(req.UserContent, st.Scratchpad), candidates, topK)

	exposed := make([]tool.Tool, 0, len(selection.Tools)+1)
	exposed = append(exposed, metaStepTool{})
	exposed = append(exposed, selection.Tools...)

	a.emitTokenTelemetry(span, system, req.UserContent, exposed)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: req.UserContent},
	}

	turn, err := a.provider.Chat(ctx, messages, exposed)
	if err != nil {
		a.logger.Error("model turn failed",
			zap.String("client_id", st.ClientID),
			zap.Int("step", st.Step),
			zap.Error(err))
		span.RecordError(err)
		return a.stuckResult(ctx, st, fmt.Sprintf("The model call failed: %v", err))
	}

	if !turn.HasToolCalls() {
		if strings.TrimSpace(turn.Content) == "" {
			span.AddEvent("turn.empty", nil)
			return a.stuckResult(ctx, st, "The model returned an empty response.")
		}
		// Plain assistant text is an implicit solved end.
		span.SetAttribute("phase", "implicit_end")
		return a.replyResult(ctx, st, EndSolved, turn.Content)
	}

	var meta *llm.ToolCall
	var direct []llm.ToolCall
	for i := range turn.ToolCalls {
		call := turn.ToolCalls[i]
		if call.Name == MetaToolName {
			if meta == nil {
				meta = &turn.ToolCalls[i]
			} else {
				a.logger.Warn("ignoring extra agent_step call in the same turn",
					zap.Int("step", st.Step))
			}
			continue
		}
		direct = append(direct, call)
	}

	// The meta call always dispatches before any direct calls; a terminal
	// phase ends the run and the direct calls never execute.
	if meta != nil {
		if result := a.dispatchMeta(ctx, st, selection, *meta, span); result != nil {
			return result
		}
	}
	for _, call := range direct {
		a.dispatchAct(ctx, st, selection, &StepInput{
			Phase:     PhaseAct,
			Summary:   "direct call to " + call.Name,
			ToolName:  call.Name,
			ToolInput: call.Input,
		})
	}
	return nil
}

// dispatchMeta routes one agent_step payload through the phase dispatch
// table. A non-nil return ends the run.
func (a *Agent) dispatchMeta(ctx context.Context, st *RunState, selection Selection,
	call llm.ToolCall, span *observability.Span) *RunResult {

	input, err := parseStepInput(call.Input)
	if err != nil {
		// A malformed step is not a dispatch; the rejection reaches the
		// model through the progress log and the non-act counter keeps
		// climbing toward the no-progress stop.
		st.ConsecutiveNonActSteps++
		st.appendEntry(ScratchpadEntry{
			Step:    st.Step,
			Phase:   "invalid",
			Summary: fmt.Sprintf("step input rejected: %v", err),
		})
		span.AddEvent("step.rejected", map[string]interface{}{"error": err.Error()})
		a.recordStep(ctx, st, "invalid", "", err.Error())
		return nil
	}
	span.SetAttribute("phase", string(input.Phase))

	switch input.Phase {
	case PhaseReason, PhaseVerify:
		st.ConsecutiveNonActSteps++
		st.appendEntry(ScratchpadEntry{
			Step:     st.Step,
			Phase:    input.Phase,
			Thinking: input.Thinking,
			Summary:  input.Summary,
		})
		a.recordStep(ctx, st, string(input.Phase), input.Thinking, input.Summary)

	case PhaseReflect:
		for _, label := range input.Approaches {
			st.Approaches[label] = true
		}
		st.ReflectCycles++
		st.ConsecutiveNonActSteps++
		summary := input.Summary
		if len(input.Approaches) > 0 {
			summary = strings.TrimSpace(summary + " [tried: " + strings.Join(input.Approaches, ", ") + "]")
		}
		st.appendEntry(ScratchpadEntry{
			Step:     st.Step,
			Phase:    PhaseReflect,
			Thinking: input.Thinking,
			Summary:  summary,
		})
		a.recordStep(ctx, st, string(PhaseReflect), input.Thinking, summary)

	case PhaseAct:
		a.dispatchAct(ctx, st, selection, input)

	case PhaseFeedback:
		a.recordFeedback(ctx, st, input.Message)
		return &RunResult{
			Type:          ResultFeedback,
			Content:       input.Message,
			TotalSteps:    st.Step,
			ToolCallsMade: st.ToolCallsMade,
		}

	case PhaseEnd:
		return a.replyResult(ctx, st, input.Status, input.Message)
	}
	return nil
}

// dispatchAct executes one ACT step through the executor and applies the
// dispatch-table effects: the progress log gains the tool result, the call
// counters advance, and the non-act streak resets.
func (a *Agent) dispatchAct(ctx context.Context, st *RunState, selection Selection, input *StepInput) {
	var result *tool.Result
	if !selection.Allowed[input.ToolName] {
		// Selection miss: the model reached for a tool outside the
		// exposed subset. Widen the next selection instead of executing.
		st.WidenSelection = true
		allowed := make([]string, 0, len(selection.Tools))
		for _, t := range selection.Tools {
			allowed = append(allowed, t.Name())
		}
		result = &tool.Result{
			OK: false,
			Error: &tool.Error{
				Code: "selection_miss",
				Message: fmt.Sprintf("tool %q is not in the current tool set; currently allowed: %s",
					input.ToolName, strings.Join(allowed, ", ")),
				Suggestion: "call one of the allowed tools, or retry the same tool next step when the set widens",
			},
		}
		a.logger.Debug("selection miss",
			zap.String("tool", input.ToolName),
			zap.Int("step", st.Step))
		a.recordMissedCall(ctx, st, input.ToolName, input.ToolInput, result)
	} else {
		result = a.executor.Execute(ctx, st, input.ToolName, input.ToolInput)
	}

	st.ToolCallsMade++
	st.ConsecutiveNonActSteps = 0
	st.DistinctTools[input.ToolName] = true
	if !result.OK {
		st.FailedToolCalls++
	}

	st.appendEntry(ScratchpadEntry{
		Step:       st.Step,
		Phase:      PhaseAct,
		Thinking:   input.Thinking,
		Summary:    input.Summary,
		ToolName:   input.ToolName,
		ToolResult: renderToolResult(result),
	})
	summary := input.Summary
	if summary == "" {
		summary = "ran " + input.ToolName
	}
	a.recordStep(ctx, st, string(PhaseAct), input.Thinking, summary)
}

// buildSystemMessage rebuilds the per-step system message: base prompt,
// caller context, memory context, the rendered scratchpad, and any budget
// reminders.
func (a *Agent) buildSystemMessage(req RunRequest, promptCtx *memory.PromptContext,
	st *RunState, limit int, span *observability.Span) string {

	var sb strings.Builder
	sb.WriteString(a.systemPrompt)
	if req.SystemContext != "" {
		sb.WriteString("\n\n## Context\n")
		sb.WriteString(req.SystemContext)
	}
	sb.WriteString(renderPromptContext(promptCtx))
	sb.WriteString(renderScratchpad(st.Scratchpad))

	reminder := buildBudgetReminder(st.Step-1, limit) +
		buildProgressReminder(st.ConsecutiveNonActSteps, a.loop.NoProgressLimit)
	if reminder != "" {
		sb.WriteString(reminder)
		span.AddEvent("soft_reminder.added", nil)
	}
	return sb.String()
}

// candidateTools is the selector's candidate list: the registry catalog
// plus the recall tool when a recall service is wired in.
func (a *Agent) candidateTools() []tool.Tool {
	candidates := a.tools.ListTools()
	if a.recall != nil {
		candidates = append(candidates, recallQueryTool{})
	}
	return candidates
}

// emitTokenTelemetry attaches the per-step token-estimate breakdown to the
// step span: static (base prompt), dynamic (everything rebuilt per step),
// and runtime (user content plus tool schemas).
func (a *Agent) emitTokenTelemetry(span *observability.Span, system, userContent string, exposed []tool.Tool) {
	staticTokens := a.counter.CountTokens(a.systemPrompt)
	dynamicTokens := a.counter.CountTokens(system) - staticTokens
	if dynamicTokens < 0 {
		dynamicTokens = 0
	}
	runtimeTokens := a.counter.CountTokens(userContent)
	for _, t := range exposed {
		runtimeTokens += a.counter.CountMultiple(t.Name(), t.Description())
	}
	span.SetAttribute("tokens.static", staticTokens)
	span.SetAttribute("tokens.dynamic", dynamicTokens)
	span.SetAttribute("tokens.runtime", runtimeTokens)
	span.SetAttribute("model", a.provider.Model())
}

func (a *Agent) loadPromptContext(ctx context.Context, clientID string) *memory.PromptContext {
	if a.memory == nil {
		return nil
	}
	pc, err := a.memory.PromptMemoryContext(ctx, clientID)
	if err != nil {
		a.logger.Warn("failed to load prompt memory context",
			zap.String("client_id", clientID),
			zap.Error(err))
		return nil
	}
	return pc
}

// replyResult finalizes a reply, recording the user-facing content.
func (a *Agent) replyResult(ctx context.Context, st *RunState, status EndStatus, content string) *RunResult {
	a.recordFeedback(ctx, st, content)
	return &RunResult{
		Type:          ResultReply,
		Content:       content,
		EndStatus:     status,
		TotalSteps:    st.Step,
		ToolCallsMade: st.ToolCallsMade,
	}
}

func (a *Agent) stuckResult(ctx context.Context, st *RunState, content string) *RunResult {
	a.recordFeedback(ctx, st, content)
	return &RunResult{
		Type:          ResultReply,
		Content:       content,
		EndStatus:     EndStuck,
		TotalSteps:    st.Step,
		ToolCallsMade: st.ToolCallsMade,
	}
}

// recordMissedCall persists a selection-miss pair; misses never reach the
// executor's recording path.
func (a *Agent) recordMissedCall(ctx context.Context, st *RunState, toolName string,
	input map[string]interface{}, result *tool.Result) {
	if a.memory == nil {
		return
	}
	if err := a.memory.RecordToolCall(ctx, st.ClientID, toolName, input); err != nil {
		a.logger.Warn("failed to record tool call", zap.Error(err))
	}
	if err := a.memory.RecordToolResult(ctx, st.ClientID, toolName, result, 0); err != nil {
		a.logger.Warn("failed to record tool result", zap.Error(err))
	}
}

func (a *Agent) recordStep(ctx context.Context, st *RunState, phase, thinking, summary string) {
	if a.memory == nil {
		return
	}
	if _, err := a.memory.RecordAgentStep(ctx, st.ClientID, st.Step, phase, thinking, summary); err != nil {
		a.logger.Warn("failed to record agent step", zap.Error(err))
	}
}

func (a *Agent) recordFeedback(ctx context.Context, st *RunState, content string) {
	if a.memory == nil || content == "" {
		return
	}
	if _, err := a.memory.RecordAssistantFeedback(ctx, st.ClientID, content); err != nil {
		a.logger.Warn("failed to record assistant message", zap.Error(err))
	}
}
