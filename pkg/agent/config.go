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

// AgentLoopConfig holds the budgets of one loop invocation. It is immutable
// for the lifetime of a run; the step limit grows with tool usage but the
// parameters themselves never change.
type AgentLoopConfig struct {
	// BaseStepLimit is the step allowance before any tool calls.
	BaseStepLimit int `yaml:"base_step_limit"`

	// MaxStepLimit caps the step limit no matter how many tools ran.
	MaxStepLimit int `yaml:"max_step_limit"`

	// StepLimitPerTool is the extra step allowance earned per tool call.
	// The effective limit of a run is
	// min(BaseStepLimit + ToolCallsMade*StepLimitPerTool, MaxStepLimit).
	StepLimitPerTool int `yaml:"step_limit_per_tool"`

	// NoProgressLimit stops the run once this many consecutive steps pass
	// without an ACT dispatch.
	NoProgressLimit int `yaml:"no_progress_limit"`

	// RepeatedActionLimit is how many consecutive identical tool calls
	// are executed before further repeats are blocked.
	RepeatedActionLimit int `yaml:"repeated_action_limit"`

	Selection  SelectionConfig  `yaml:"selection"`
	Escalation EscalationConfig `yaml:"escalation"`
}

// SelectionConfig controls per-step tool-set narrowing.
type SelectionConfig struct {
	// Enabled turns selection on. Disabled exposes every candidate tool.
	Enabled bool `yaml:"enabled"`

	// TopK is the normal selection width.
	TopK int `yaml:"top_k"`

	// RetryTopK is the wider width used for exactly one step after a
	// selection miss or a repeated-action block.
	RetryTopK int `yaml:"retry_top_k"`

	// AlwaysInclude names tools exposed regardless of ranking.
	AlwaysInclude []string `yaml:"always_include"`
}

// EscalationConfig controls the handoff heuristic. Escalation fires after a
// step when the agent has called more than MinToolCalls tools across at
// least MinDistinctTools distinct names, and either failures or reflection
// cycles have crossed their thresholds.
type EscalationConfig struct {
	Enabled bool `yaml:"enabled"`

	MinToolCalls       int `yaml:"min_tool_calls"`
	MinDistinctTools   int `yaml:"min_distinct_tools"`
	MinFailedToolCalls int `yaml:"min_failed_tool_calls"`
	MinReflectCycles   int `yaml:"min_reflect_cycles"`
}

// DefaultLoopConfig returns the balanced budget preset.
func DefaultLoopConfig() AgentLoopConfig {
	return AgentLoopConfig{
		BaseStepLimit:       8,
		MaxStepLimit:        32,
		StepLimitPerTool:    3,
		NoProgressLimit:     5,
		RepeatedActionLimit: 2,
		Selection: SelectionConfig{
			Enabled:       true,
			TopK:          8,
			RetryTopK:     16,
			AlwaysInclude: []string{RecallToolName},
		},
		Escalation: EscalationConfig{
			Enabled:            true,
			MinToolCalls:       6,
			MinDistinctTools:   3,
			MinFailedToolCalls: 3,
			MinReflectCycles:   2,
		},
	}
}

// withDefaults fills zero-valued budgets from the default preset so a
// partially specified config never yields a zero limit.
func (c AgentLoopConfig) withDefaults() AgentLoopConfig {
	def := DefaultLoopConfig()
	if c.BaseStepLimit <= 0 {
		c.BaseStepLimit = def.BaseStepLimit
	}
	if c.MaxStepLimit <= 0 {
		c.MaxStepLimit = def.MaxStepLimit
	}
	if c.MaxStepLimit < c.BaseStepLimit {
		c.MaxStepLimit = c.BaseStepLimit
	}
	if c.StepLimitPerTool < 0 {
		c.StepLimitPerTool = 0
	}
	if c.NoProgressLimit <= 0 {
		c.NoProgressLimit = def.NoProgressLimit
	}
	if c.RepeatedActionLimit <= 0 {
		c.RepeatedActionLimit = def.RepeatedActionLimit
	}
	if c.Selection.TopK <= 0 {
		c.Selection.TopK = def.Selection.TopK
	}
	if c.Selection.RetryTopK < c.Selection.TopK {
		c.Selection.RetryTopK = def.Selection.RetryTopK
		if c.Selection.RetryTopK < c.Selection.TopK {
			c.Selection.RetryTopK = c.Selection.TopK * 2
		}
	}
	return c
}

// stepLimit is the effective step budget given the tool calls made so far.
func (c AgentLoopConfig) stepLimit(toolCallsMade int) int {
	limit := c.BaseStepLimit + toolCallsMade*c.StepLimitPerTool
	if limit > c.MaxStepLimit {
		return c.MaxStepLimit
	}
	return limit
}

// shouldEscalate evaluates the escalation heuristic against the current run
// state and builds the evidence payload when it fires.
func (c EscalationConfig) shouldEscalate(st *RunState) *Escalation {
	if !c.Enabled {
		return nil
	}
	if st.ToolCallsMade <= c.MinToolCalls {
		return nil
	}
	if len(st.DistinctTools) < c.MinDistinctTools {
		return nil
	}
	if st.FailedToolCalls < c.MinFailedToolCalls && st.ReflectCycles < c.MinReflectCycles {
		return nil
	}
	return &Escalation{
		Reason: "tool usage crossed the escalation thresholds without converging; " +
			"handing off to a higher-capability mode",
		ToolsUsed:       st.distinctToolNames(),
		ToolCallsMade:   st.ToolCallsMade,
		FailedToolCalls: st.FailedToolCalls,
		ReflectCycles:   st.ReflectCycles,
	}
}
