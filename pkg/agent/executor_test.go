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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/treadle/pkg/recall"
	"github.com/teradata-labs/treadle/pkg/tool"
)

func newTestExecutor(reg *tool.Registry, svc *recall.Service, mem SessionMemory, limit int) *ActionExecutor {
	return NewActionExecutor(reg, svc, mem, limit, nil, nil)
}

func TestExecute_Success(t *testing.T) {
	mock := &tool.MockTool{MockName: "mock_tool"}
	reg := tool.NewRegistry()
	reg.Register(mock)
	ex := newTestExecutor(reg, nil, nil, 2)
	st := newRunState("s1")

	res := ex.Execute(context.Background(), st, "mock_tool", map[string]interface{}{"input": "hi"})
	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Equal(t, "mock result", res.Output)
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, int64(0))
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, "hi", mock.LastParams["input"])
}

func TestExecute_UnknownToolListsAvailable(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&tool.MockTool{MockName: "alpha"})
	reg.Register(&tool.MockTool{MockName: "beta"})
	ex := newTestExecutor(reg, nil, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), "gamma", nil)
	require.NotNil(t, res)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, tool.ErrCodeNotFound, res.Error.Code)
	assert.Contains(t, res.Error.Message, "alpha")
	assert.Contains(t, res.Error.Message, "beta")
}

func TestExecute_InvalidInputRejectedBeforeExecution(t *testing.T) {
	mock := &tool.MockTool{
		MockName: "strict_tool",
		MockSchema: tool.NewObjectSchema("strict schema", map[string]*tool.JSONSchema{
			"path": tool.NewStringSchema("File path"),
		}, []string{"path"}),
	}
	reg := tool.NewRegistry()
	reg.Register(mock)
	ex := newTestExecutor(reg, nil, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), "strict_tool", map[string]interface{}{})
	require.NotNil(t, res)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, tool.ErrCodeInvalidInput, res.Error.Code)
	assert.Equal(t, 0, mock.Calls())
}

func TestExecute_RepeatBlockingIsConsecutiveOnly(t *testing.T) {
	mock := &tool.MockTool{MockName: "mock_tool"}
	other := &tool.MockTool{MockName: "other_tool"}
	reg := tool.NewRegistry()
	reg.Register(mock)
	reg.Register(other)
	ex := newTestExecutor(reg, nil, nil, 2)
	st := newRunState("s1")
	ctx := context.Background()
	same := map[string]interface{}{"input": "same"}

	// Limit 2: the third consecutive identical call is blocked.
	first := ex.Execute(ctx, st, "mock_tool", same)
	second := ex.Execute(ctx, st, "mock_tool", same)
	third := ex.Execute(ctx, st, "mock_tool", same)
	assert.True(t, first.OK)
	assert.True(t, second.OK)
	require.False(t, third.OK)
	assert.Equal(t, tool.ErrCodeRepeatedCall, third.Error.Code)
	assert.Contains(t, third.Error.Message, "blocked")
	assert.Equal(t, 2, mock.Calls())
	assert.True(t, st.WidenSelection)

	// A different tool breaks the streak, then the original runs again.
	breaker := ex.Execute(ctx, st, "other_tool", map[string]interface{}{})
	assert.True(t, breaker.OK)
	again := ex.Execute(ctx, st, "mock_tool", same)
	assert.True(t, again.OK)
	assert.Equal(t, 3, mock.Calls())
}

func TestExecute_RepeatBlockingExactExecutionCount(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("limit_%d", limit), func(t *testing.T) {
			mock := &tool.MockTool{MockName: "mock_tool"}
			reg := tool.NewRegistry()
			reg.Register(mock)
			ex := newTestExecutor(reg, nil, nil, limit)
			st := newRunState("s1")
			same := map[string]interface{}{"n": float64(7)}

			for i := 0; i < limit+1; i++ {
				ex.Execute(context.Background(), st, "mock_tool", same)
			}
			assert.Equal(t, limit, mock.Calls())
		})
	}
}

func TestExecute_DifferentInputIsNotARepeat(t *testing.T) {
	mock := &tool.MockTool{MockName: "mock_tool"}
	reg := tool.NewRegistry()
	reg.Register(mock)
	ex := newTestExecutor(reg, nil, nil, 1)
	st := newRunState("s1")

	for i := 0; i < 4; i++ {
		res := ex.Execute(context.Background(), st, "mock_tool", map[string]interface{}{"n": float64(i)})
		assert.True(t, res.OK)
	}
	assert.Equal(t, 4, mock.Calls())
}

func TestExecute_PanicBecomesStructuredFailure(t *testing.T) {
	mock := &tool.MockTool{
		MockName: "bomb",
		MockExecute: func(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
			panic("boom")
		},
	}
	reg := tool.NewRegistry()
	reg.Register(mock)
	ex := newTestExecutor(reg, nil, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), "bomb", map[string]interface{}{})
	require.NotNil(t, res)
	assert.False(t, res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, tool.ErrCodePanic, res.Error.Code)
	assert.Contains(t, res.Error.Message, "boom")
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, int64(0))
}

func TestExecute_ToolErrorBecomesFailure(t *testing.T) {
	mock := &tool.MockTool{
		MockName: "flaky",
		MockExecute: func(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
			return nil, fmt.Errorf("disk on fire")
		},
	}
	reg := tool.NewRegistry()
	reg.Register(mock)
	ex := newTestExecutor(reg, nil, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), "flaky", map[string]interface{}{})
	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Equal(t, tool.ErrCodeExecution, res.Error.Code)
	assert.Contains(t, res.Error.Message, "disk on fire")
}

func TestExecute_RecallRequiresQuery(t *testing.T) {
	ex := newTestExecutor(tool.NewRegistry(), nil, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), RecallToolName, map[string]interface{}{})
	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Equal(t, tool.ErrCodeInvalidInput, res.Error.Code)
}

func TestExecute_RecallUnconfigured(t *testing.T) {
	ex := newTestExecutor(tool.NewRegistry(), nil, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), RecallToolName,
		map[string]interface{}{"query": "the old plan"})
	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Equal(t, tool.ErrCodeExecution, res.Error.Code)
	assert.Contains(t, res.Error.Message, "not configured")
}

func TestExecute_RecallRendersPipelineResult(t *testing.T) {
	svc, err := recall.NewService(recall.Config{
		Memory:   &recallMemStub{},
		Provider: &scriptedProvider{},
	})
	require.NoError(t, err)
	ex := newTestExecutor(tool.NewRegistry(), svc, nil, 2)

	res := ex.Execute(context.Background(), newRunState("s1"), RecallToolName,
		map[string]interface{}{"query": "what did we decide", "search_query": "decision"})
	require.NotNil(t, res)
	assert.True(t, res.OK)
	assert.Contains(t, res.Output, `"status":"not_found"`)
	assert.Contains(t, res.Output, `"query":"what did we decide"`)
	assert.Contains(t, res.Output, `"search_query":"decision"`)
	assert.Contains(t, res.Output, `"found_useful_data":false`)
	assert.Equal(t, "not_found", res.Meta["status"])
}

func TestExecute_RecordsCallAndResult(t *testing.T) {
	mock := &tool.MockTool{MockName: "mock_tool"}
	reg := tool.NewRegistry()
	reg.Register(mock)
	mem := &fakeSessionMemory{}
	ex := newTestExecutor(reg, nil, mem, 2)

	ex.Execute(context.Background(), newRunState("s1"), "mock_tool", map[string]interface{}{})

	events := mem.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "call:mock_tool", events[0])
	assert.Equal(t, "result:mock_tool:true", events[1])
}

func TestExecute_RecordsBlockedResult(t *testing.T) {
	mock := &tool.MockTool{MockName: "mock_tool"}
	reg := tool.NewRegistry()
	reg.Register(mock)
	mem := &fakeSessionMemory{}
	ex := newTestExecutor(reg, nil, mem, 1)
	st := newRunState("s1")
	same := map[string]interface{}{"input": "x"}

	ex.Execute(context.Background(), st, "mock_tool", same)
	ex.Execute(context.Background(), st, "mock_tool", same)

	events := mem.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "result:mock_tool:true", events[1])
	assert.Equal(t, "result:mock_tool:false", events[3])
}
