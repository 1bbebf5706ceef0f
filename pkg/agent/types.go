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

// Package agent implements the phase-driven control loop that turns a user
// request into a bounded sequence of model-chosen steps.
//
// Each step the model reports what it is doing through a meta tool
// ("agent_step") whose payload is a tagged union on Phase: reasoning,
// acting through a tool, verifying, reflecting on tried approaches,
// pausing for user feedback, or ending the run. The loop dispatches the
// reported phase, feeds the growing scratchpad back into the system
// prompt, and stops on step budgets, no-progress limits, or an
// escalation heuristic. The model is free to choose any phase at any
// step; budgets, not a transition grammar, keep it honest.
package agent

import (
	"fmt"
	"sort"

	"github.com/teradata-labs/treadle/pkg/tool"
)

// Phase is the category of one agent step.
type Phase string

const (
	PhaseReason   Phase = "reason"
	PhaseAct      Phase = "act"
	PhaseVerify   Phase = "verify"
	PhaseReflect  Phase = "reflect"
	PhaseFeedback Phase = "feedback"
	PhaseEnd      Phase = "end"
)

// EndStatus reports how a run concluded.
type EndStatus string

const (
	// EndSolved means the agent believes it fully answered the request.
	EndSolved EndStatus = "solved"

	// EndPartial means the agent made progress but could not finish.
	EndPartial EndStatus = "partial"

	// EndStuck means the agent ran out of budget or ideas.
	EndStuck EndStatus = "stuck"
)

// ResultType classifies what a finished run is handing back to the caller.
type ResultType string

const (
	// ResultReply is a normal final answer.
	ResultReply ResultType = "reply"

	// ResultFeedback pauses the run: the agent needs user input before it
	// can continue.
	ResultFeedback ResultType = "feedback"

	// ResultEscalate hands the request off to a more capable execution
	// mode, with evidence of why this loop gave up.
	ResultEscalate ResultType = "escalate"
)

// RunRequest is one chat turn entering the loop.
type RunRequest struct {
	// ClientID identifies the calling session; it keys all memory writes.
	ClientID string

	// UserContent is the user's message for this turn.
	UserContent string

	// SystemContext is optional caller-supplied context appended to the
	// base system prompt (e.g. workspace state, prior instructions).
	SystemContext string
}

// RunResult is what Run hands back. Callers always receive exactly one of
// reply, feedback, or escalate.
type RunResult struct {
	Type    ResultType
	Content string

	// EndStatus is set for reply results only.
	EndStatus EndStatus

	TotalSteps    int
	ToolCallsMade int

	// Escalation carries the diagnostic payload for escalate results.
	Escalation *Escalation
}

// Escalation is the evidence attached to an escalate result.
type Escalation struct {
	Reason          string
	ToolsUsed       []string
	ToolCallsMade   int
	FailedToolCalls int
	ReflectCycles   int
}

// StepInput is the payload of one agent_step call, a tagged union on Phase.
// Only the fields relevant to the reported phase are populated:
//
//	reason, verify: Thinking, Summary
//	act:            ToolName, ToolInput (plus Thinking/Summary if given)
//	reflect:        Approaches
//	feedback:       Message
//	end:            Status, Message
type StepInput struct {
	Phase    Phase
	Thinking string
	Summary  string

	// ToolName and ToolInput describe the action for act steps. ToolInput
	// is opaque here; the target tool's own schema validates it.
	ToolName  string
	ToolInput map[string]interface{}

	// Approaches are the distinct approach labels reported by a reflect
	// step.
	Approaches []string

	// Message is the user-facing text of a feedback or end step.
	Message string

	// Status is the end status of an end step.
	Status EndStatus
}

// parseStepInput validates the shape of a raw agent_step payload and builds
// the tagged union. The ACT variant's tool input is passed through opaque;
// everything else is shape-checked here so dispatch never sees a malformed
// step.
func parseStepInput(raw map[string]interface{}) (*StepInput, error) {
	phase, _ := raw["phase"].(string)
	si := &StepInput{
		Phase:    Phase(phase),
		Thinking: stringField(raw, "thinking"),
		Summary:  stringField(raw, "summary"),
	}

	switch si.Phase {
	case PhaseReason, PhaseVerify:
		// Thinking and summary only.

	case PhaseAct:
		si.ToolName = stringField(raw, "tool_name")
		if si.ToolName == "" {
			return nil, fmt.Errorf("act step requires tool_name")
		}
		if ti, ok := raw["tool_input"].(map[string]interface{}); ok {
			si.ToolInput = ti
		} else {
			si.ToolInput = map[string]interface{}{}
		}

	case PhaseReflect:
		if items, ok := raw["approaches"].([]interface{}); ok {
			for _, item := range items {
				if s, ok := item.(string); ok && s != "" {
					si.Approaches = append(si.Approaches, s)
				}
			}
		}

	case PhaseFeedback:
		si.Message = stringField(raw, "message")
		if si.Message == "" {
			return nil, fmt.Errorf("feedback step requires a message for the user")
		}

	case PhaseEnd:
		si.Message = stringField(raw, "message")
		if si.Message == "" {
			si.Message = si.Summary
		}
		switch EndStatus(stringField(raw, "end_status")) {
		case EndSolved, EndPartial, EndStuck:
			si.Status = EndStatus(stringField(raw, "end_status"))
		default:
			// Models routinely omit the status when they are done; an
			// end step without one is read as success.
			si.Status = EndSolved
		}

	default:
		return nil, fmt.Errorf("unknown phase %q", phase)
	}

	return si, nil
}

func stringField(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return s
}

// ScratchpadEntry is one line of the run's progress log. Entries are
// append-only and never mutated after creation; the whole log is rendered
// back into the system prompt each step.
type ScratchpadEntry struct {
	Step     int
	Phase    Phase
	Thinking string
	Summary  string

	// ToolName and ToolResult are set for act entries.
	ToolName   string
	ToolResult string
}

// RunState is the mutable state of one loop invocation. It is owned
// exclusively by that invocation and never shared, so no locking applies.
type RunState struct {
	// ClientID keys memory writes for this run.
	ClientID string

	// Step counts loop iterations. It increases by exactly one per
	// iteration.
	Step int

	// Scratchpad is the append-only progress log.
	Scratchpad []ScratchpadEntry

	// Approaches accumulates the distinct approach labels reported by
	// reflect steps.
	Approaches map[string]bool

	ToolCallsMade   int
	DistinctTools   map[string]bool
	FailedToolCalls int
	ReflectCycles   int

	// ConsecutiveNonActSteps counts steps since the last ACT dispatch.
	// It resets to zero only when an ACT step is dispatched.
	ConsecutiveNonActSteps int

	// LastActionSignature and ConsecutiveRepeatedActions implement
	// consecutive-repeat detection. A different action resets the count;
	// history before the last distinct action is never accumulated.
	LastActionSignature        string
	ConsecutiveRepeatedActions int

	// WidenSelection asks the next tool selection to use the wider retry
	// topK. Set after a selection miss or a repeated-action block,
	// cleared once consumed.
	WidenSelection bool
}

func newRunState(clientID string) *RunState {
	return &RunState{
		ClientID:      clientID,
		Approaches:    make(map[string]bool),
		DistinctTools: make(map[string]bool),
	}
}

func (st *RunState) appendEntry(e ScratchpadEntry) {
	st.Scratchpad = append(st.Scratchpad, e)
}

// recordAction updates the consecutive-repeat counters for one attempted
// action and reports whether it exceeded the allowed repeat limit.
func (st *RunState) recordAction(toolName string, input map[string]interface{}, limit int) bool {
	sig := tool.Signature(toolName, input)
	if sig == st.LastActionSignature {
		st.ConsecutiveRepeatedActions++
	} else {
		st.LastActionSignature = sig
		st.ConsecutiveRepeatedActions = 1
	}
	return st.ConsecutiveRepeatedActions > limit
}

// distinctToolNames returns the tools used so far in sorted order.
func (st *RunState) distinctToolNames() []string {
	names := make([]string, 0, len(st.DistinctTools))
	for name := range st.DistinctTools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
