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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDefaults_FillsZeroBudgets(t *testing.T) {
	cfg := AgentLoopConfig{}.withDefaults()
	def := DefaultLoopConfig()

	assert.Equal(t, def.BaseStepLimit, cfg.BaseStepLimit)
	assert.Equal(t, def.MaxStepLimit, cfg.MaxStepLimit)
	assert.Equal(t, def.NoProgressLimit, cfg.NoProgressLimit)
	assert.Equal(t, def.RepeatedActionLimit, cfg.RepeatedActionLimit)
	assert.Equal(t, def.Selection.TopK, cfg.Selection.TopK)
	assert.Equal(t, def.Selection.RetryTopK, cfg.Selection.RetryTopK)
	// Zero per-tool growth is a legitimate setting and stays as given.
	assert.Equal(t, 0, cfg.StepLimitPerTool)
}

func TestWithDefaults_MaxNeverBelowBase(t *testing.T) {
	cfg := AgentLoopConfig{BaseStepLimit: 50}.withDefaults()
	assert.Equal(t, 50, cfg.MaxStepLimit)
}

func TestWithDefaults_RetryTopKNeverBelowTopK(t *testing.T) {
	cfg := AgentLoopConfig{
		Selection: SelectionConfig{TopK: 20, RetryTopK: 5},
	}.withDefaults()
	assert.Equal(t, 40, cfg.Selection.RetryTopK)

	cfg = AgentLoopConfig{
		Selection: SelectionConfig{TopK: 4, RetryTopK: 10},
	}.withDefaults()
	assert.Equal(t, 10, cfg.Selection.RetryTopK)
}

func TestWithDefaults_NegativePerToolClamped(t *testing.T) {
	cfg := AgentLoopConfig{StepLimitPerTool: -3}.withDefaults()
	assert.Equal(t, 0, cfg.StepLimitPerTool)
}

func TestStepLimit_Formula(t *testing.T) {
	cfg := AgentLoopConfig{BaseStepLimit: 8, StepLimitPerTool: 3, MaxStepLimit: 32}

	assert.Equal(t, 8, cfg.stepLimit(0))
	assert.Equal(t, 11, cfg.stepLimit(1))
	assert.Equal(t, 29, cfg.stepLimit(7))
	assert.Equal(t, 32, cfg.stepLimit(8))
	assert.Equal(t, 32, cfg.stepLimit(100))

	flat := AgentLoopConfig{BaseStepLimit: 8, StepLimitPerTool: 0, MaxStepLimit: 32}
	assert.Equal(t, 8, flat.stepLimit(50))
}

func TestShouldEscalate(t *testing.T) {
	cfg := EscalationConfig{
		Enabled:            true,
		MinToolCalls:       6,
		MinDistinctTools:   3,
		MinFailedToolCalls: 3,
		MinReflectCycles:   2,
	}

	base := func() *RunState {
		st := newRunState("s1")
		st.ToolCallsMade = 7
		st.DistinctTools = map[string]bool{"a": true, "b": true, "c": true}
		return st
	}

	t.Run("fires on failures", func(t *testing.T) {
		st := base()
		st.FailedToolCalls = 3
		esc := cfg.shouldEscalate(st)
		require.NotNil(t, esc)
		assert.Equal(t, []string{"a", "b", "c"}, esc.ToolsUsed)
		assert.Equal(t, 7, esc.ToolCallsMade)
		assert.Equal(t, 3, esc.FailedToolCalls)
		assert.NotEmpty(t, esc.Reason)
	})

	t.Run("fires on reflect cycles", func(t *testing.T) {
		st := base()
		st.ReflectCycles = 2
		require.NotNil(t, cfg.shouldEscalate(st))
	})

	t.Run("quiet below either threshold", func(t *testing.T) {
		st := base()
		st.FailedToolCalls = 2
		st.ReflectCycles = 1
		assert.Nil(t, cfg.shouldEscalate(st))
	})

	t.Run("tool calls must exceed the minimum", func(t *testing.T) {
		st := base()
		st.ToolCallsMade = 6
		st.FailedToolCalls = 5
		assert.Nil(t, cfg.shouldEscalate(st))
	})

	t.Run("needs distinct tool spread", func(t *testing.T) {
		st := base()
		st.DistinctTools = map[string]bool{"a": true, "b": true}
		st.FailedToolCalls = 5
		assert.Nil(t, cfg.shouldEscalate(st))
	})

	t.Run("disabled never fires", func(t *testing.T) {
		st := base()
		st.FailedToolCalls = 10
		off := cfg
		off.Enabled = false
		assert.Nil(t, off.shouldEscalate(st))
	})
}
