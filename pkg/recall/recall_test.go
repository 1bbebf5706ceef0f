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
package recall

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/treadle/pkg/llm"
	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/tool"
)

// mockProvider is a scripted LLM provider. Responses are consumed in call
// order; err makes every call fail.
type mockProvider struct {
	responses  []string
	err        error
	callCount  int
	lastPrompt string
}

func (m *mockProvider) Chat(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Turn, error) {
	m.callCount++
	if len(messages) > 0 {
		m.lastPrompt = messages[len(messages)-1].Content
	}
	if m.err != nil {
		return nil, m.err
	}

	var response string
	if len(m.responses) > 0 {
		response = m.responses[0]
		m.responses = m.responses[1:]
	}
	return llm.NewTurn(response, nil, "end_turn", llm.Usage{InputTokens: 100, OutputTokens: 50}), nil
}

func (m *mockProvider) Name() string        { return "mock" }
func (m *mockProvider) Model() string       { return "mock-model" }
func (m *mockProvider) SupportsTools() bool { return true }

// fakeMemory is a canned session store.
type fakeMemory struct {
	hits      []memory.SummaryHit
	turns     map[string][]memory.Turn
	searchErr error
	loadErr   error
	lastQuery string
}

func (f *fakeMemory) SearchSessionSummaries(ctx context.Context, query string, limit int) ([]memory.SummaryHit, error) {
	f.lastQuery = query
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeMemory) LoadSessionTurns(ctx context.Context, sessionID string) ([]memory.Turn, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.turns[sessionID], nil
}

// panicMemory blows up on load to prove Recall contains panics.
type panicMemory struct{ fakeMemory }

func (p *panicMemory) LoadSessionTurns(ctx context.Context, sessionID string) ([]memory.Turn, error) {
	panic("storage exploded")
}

func sessionTurns(sessionID string, contents ...string) []memory.Turn {
	turns := make([]memory.Turn, len(contents))
	for i, content := range contents {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		turns[i] = memory.Turn{
			SessionID: sessionID,
			Ref:       fmt.Sprintf("t%d", i),
			Role:      role,
			Content:   content,
			CreatedAt: time.Now(),
		}
	}
	return turns
}

func TestNewService_RequiresMemory(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)
}

func TestRecall_SkippedWhenDisabled(t *testing.T) {
	svc, err := NewService(Config{
		Memory:   &fakeMemory{},
		Provider: &mockProvider{},
		Disabled: true,
	})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the deploy", nil, "active", ModeAuto)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "recall disabled", result.Reason)
}

func TestRecall_SkippedWithoutProvider(t *testing.T) {
	svc, err := NewService(Config{Memory: &fakeMemory{}})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the deploy", nil, "active", ModeAuto)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "no model configured", result.Reason)
}

func TestRecall_SkippedWithoutHistoryReference(t *testing.T) {
	mock := &mockProvider{}
	svc, err := NewService(Config{Memory: &fakeMemory{}, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "please write a haiku about spring flowers", nil, "active", ModeAuto)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, 0, mock.callCount, "gated-out recall should not call the model")
}

func TestRecall_NotFoundWithNoMatchingSummaries(t *testing.T) {
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "references prior work", "search_query": "deploy strategy"}`,
	}}
	svc, err := NewService(Config{Memory: &fakeMemory{}, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember our deploy strategy", nil, "active", ModeAuto)
	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, "no matching session summaries", result.Reason)
	assert.Empty(t, result.Evidence)
	assert.Empty(t, result.SearchedSessionIDs)
}

func TestRecall_FoundEvidence(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a", Summary: "deploy discussion"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a",
				"how should we deploy the new service",
				"we picked blue-green deploys for the rollout",
				"sounds good"),
		},
	}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "user references a prior decision", "search_query": "blue-green deploy decision"}`,
		`{"evidence": [{"turn_ref": "t1", "snippet": "we picked blue-green deploys", "why_relevant": "answers the deploy question", "confidence": 0.9}]}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember what deploy approach we agreed on", nil, "active", ModeAuto)
	require.Equal(t, StatusFound, result.Status)
	require.Len(t, result.Evidence, 1)

	ev := result.Evidence[0]
	assert.Equal(t, "sess-a", ev.SessionID)
	assert.Equal(t, "t1", ev.TurnRef)
	assert.Equal(t, "we picked blue-green deploys", ev.Snippet)
	assert.Equal(t, 0.9, ev.Confidence)
	assert.False(t, ev.Timestamp.IsZero())

	assert.Equal(t, []string{"sess-a"}, result.SearchedSessionIDs)
	assert.Equal(t, "blue-green deploy decision", mem.lastQuery, "search should use the model's query")
	assert.Equal(t, 2, result.ModelCalls, "decision + leaf extraction")
	assert.NotEmpty(t, result.TriggerReason)
}

func TestRecall_FencedJSONAccepted(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a", "the rollout date is March 3rd"),
		},
	}
	mock := &mockProvider{responses: []string{
		"```json\n{\"needs_recall\": true, \"reason\": \"date question\", \"search_query\": \"rollout date\"}\n```",
		"```json\n{\"evidence\": [{\"turn_ref\": \"t0\", \"snippet\": \"the rollout date is March 3rd\", \"why_relevant\": \"states the date\", \"confidence\": 0.8}]}\n```",
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the rollout date", nil, "active", ModeAuto)
	require.Equal(t, StatusFound, result.Status)
	require.Len(t, result.Evidence, 1)
	assert.Equal(t, "t0", result.Evidence[0].TurnRef)
}

func TestRecall_ActiveSessionExcluded(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{
			{SessionID: "active", Summary: "current work"},
			{SessionID: "other", Summary: "past deploy talk"},
		},
		turns: map[string][]memory.Turn{
			"active": sessionTurns("active", "current deploy question"),
			"other":  sessionTurns("other", "we deploy on Tuesdays"),
		},
	}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "prior schedule", "search_query": "deploy schedule"}`,
		`{"evidence": [{"turn_ref": "t0", "snippet": "we deploy on Tuesdays", "why_relevant": "the schedule", "confidence": 0.7}]}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the deploy schedule", nil, "active", ModeAuto)
	require.Equal(t, StatusFound, result.Status)
	assert.Equal(t, []string{"other"}, result.SearchedSessionIDs)
}

func TestRecall_ExplicitModeSearchesDirectly(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a", "the API key lives in the team vault"),
		},
	}
	mock := &mockProvider{responses: []string{
		`{"evidence": [{"turn_ref": "t0", "snippet": "the API key lives in the team vault", "why_relevant": "location of the key", "confidence": 0.85}]}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "API key vault location", nil, "active", ModeExplicit)
	require.Equal(t, StatusFound, result.Status)
	assert.Equal(t, "explicit request", result.TriggerReason)
	assert.Equal(t, "API key vault location", mem.lastQuery, "explicit mode searches the supplied text")
	assert.Equal(t, 1, result.ModelCalls, "no decision call in explicit mode")
}

func TestRecall_DecisionSaysNoRecall(t *testing.T) {
	mem := &fakeMemory{hits: []memory.SummaryHit{{SessionID: "sess-a"}}}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": false, "reason": "the answer is in the live conversation", "search_query": ""}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember that", nil, "active", ModeAuto)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "the answer is in the live conversation", result.Reason)
}

func TestRecall_FailingProviderFallsBackToKeywords(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a", Summary: "postgres migration talk"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a",
				"we agreed to run the postgres migration at night",
				"lunch menu options"),
		},
	}
	mock := &mockProvider{err: fmt.Errorf("model unavailable")}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the postgres migration plan", nil, "active", ModeAuto)
	require.Equal(t, StatusFound, result.Status)
	require.NotEmpty(t, result.Evidence)

	ev := result.Evidence[0]
	assert.Equal(t, "t0", ev.TurnRef)
	assert.Contains(t, ev.WhyRelevant, "postgres")
	assert.LessOrEqual(t, ev.Confidence, 0.8)
	assert.Greater(t, ev.Confidence, 0.0)
}

func TestRecall_ExpiredBudgetReturnsPromptly(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a", "we deploy on Tuesdays"),
		},
	}
	mock := &mockProvider{}
	svc, err := NewService(Config{
		Memory:   mem,
		Provider: mock,
		Limits:   Limits{TotalRecallBudget: time.Nanosecond},
	})
	require.NoError(t, err)

	start := time.Now()
	result := svc.Recall(context.Background(), "do you remember the deploy schedule", nil, "active", ModeAuto)

	assert.Less(t, time.Since(start), 2*time.Second, "expired budget must not hang")
	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, 0, mock.callCount, "no model calls past the deadline")
}

func TestRecall_PanicDegradesToNotFound(t *testing.T) {
	mem := &panicMemory{fakeMemory: fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a"}},
	}}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "prior work", "search_query": "deploy"}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the deploy", nil, "active", ModeAuto)
	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, "internal recall failure", result.Reason)
}

func TestRecall_TokenBudgetTruncates(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a",
				"we chose blue-green deploys",
				"the rollback window is one hour"),
		},
	}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "prior deploy talk", "search_query": "deploy rollback"}`,
		`{"evidence": [
			{"turn_ref": "t0", "snippet": "we chose blue-green deploys", "why_relevant": "the deploy choice", "confidence": 0.9},
			{"turn_ref": "t1", "snippet": "the rollback window is one hour", "why_relevant": "the rollback rule", "confidence": 0.8}
		]}`,
	}}
	svc, err := NewService(Config{
		Memory:   mem,
		Provider: mock,
		Limits:   Limits{EvidenceTokenBudget: 40},
	})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the deploy rollback rules", nil, "active", ModeAuto)
	assert.Equal(t, StatusPartial, result.Status, "dropping evidence to the token budget marks the result partial")
	assert.Len(t, result.Evidence, 1)
	assert.Equal(t, "t0", result.Evidence[0].TurnRef)
}

func TestRecall_ModelRerankApplied(t *testing.T) {
	mem := &fakeMemory{
		hits: []memory.SummaryHit{{SessionID: "sess-a"}},
		turns: map[string][]memory.Turn{
			"sess-a": sessionTurns("sess-a",
				"the deploy runs at midnight",
				"the deploy owner is the infra team"),
		},
	}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "deploy question", "search_query": "deploy owner"}`,
		`{"evidence": [
			{"turn_ref": "t0", "snippet": "the deploy runs at midnight", "why_relevant": "timing", "confidence": 0.9},
			{"turn_ref": "t1", "snippet": "the deploy owner is the infra team", "why_relevant": "ownership", "confidence": 0.7}
		]}`,
		`{"order": ["sess-a/t1", "sess-a/t0"]}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember who owns the deploy", nil, "active", ModeAuto)
	require.Equal(t, StatusFound, result.Status)
	require.Len(t, result.Evidence, 2)
	assert.Equal(t, "t1", result.Evidence[0].TurnRef, "model rerank order wins over confidence order")
	assert.Equal(t, "t0", result.Evidence[1].TurnRef)
	assert.Equal(t, 3, result.ModelCalls)
}

func TestRecall_SearchErrorDegrades(t *testing.T) {
	mem := &fakeMemory{searchErr: fmt.Errorf("index offline")}
	mock := &mockProvider{responses: []string{
		`{"needs_recall": true, "reason": "prior work", "search_query": "deploy"}`,
	}}
	svc, err := NewService(Config{Memory: mem, Provider: mock})
	require.NoError(t, err)

	result := svc.Recall(context.Background(), "do you remember the deploy", nil, "active", ModeAuto)
	assert.Equal(t, StatusNotFound, result.Status)
}
