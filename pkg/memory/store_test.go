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
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teradata-labs/treadle/pkg/observability"
	"github.com/teradata-labs/treadle/pkg/tool"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir()+"/test.db", observability.NewNoOpTracer())
	if err != nil {
		t.Fatalf("Expected no error creating store, got %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)

	if store.db == nil {
		t.Error("Expected database to be initialized")
	}
	if store.encoder == nil || store.decoder == nil {
		t.Error("Expected compression codecs to be initialized")
	}
	if store.compressThreshold != DefaultCompressThreshold {
		t.Errorf("Expected default compress threshold, got %d", store.compressThreshold)
	}
}

func TestStore_RecordUserMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	turn, err := store.RecordUserMessage(ctx, "sess-1", "hello world")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if turn.Ref != "t0" {
		t.Errorf("Expected first turn ref 't0', got %s", turn.Ref)
	}
	if turn.Role != RoleUser {
		t.Errorf("Expected role %q, got %s", RoleUser, turn.Role)
	}
	if turn.TokenCount <= 0 {
		t.Error("Expected positive token count")
	}
	if turn.CreatedAt.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("Expected no error listing sessions, got %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Title != "hello world" {
		t.Errorf("Expected title from first user message, got %q", sessions[0].Title)
	}
	if sessions[0].TurnCount != 1 {
		t.Errorf("Expected turn count 1, got %d", sessions[0].TurnCount)
	}
}

func TestStore_TurnRefsSequential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "sess-1", "first"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAssistantFeedback(ctx, "sess-1", "second"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordUserMessage(ctx, "sess-1", "third"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	turns, err := store.LoadSessionTurns(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}

	wantRefs := []string{"t0", "t1", "t2"}
	wantContent := []string{"first", "second", "third"}
	for i, turn := range turns {
		if turn.Ref != wantRefs[i] {
			t.Errorf("Turn %d: expected ref %s, got %s", i, wantRefs[i], turn.Ref)
		}
		if turn.Content != wantContent[i] {
			t.Errorf("Turn %d: expected content %q, got %q", i, wantContent[i], turn.Content)
		}
	}
}

func TestStore_RecordAgentStep(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	turn, err := store.RecordAgentStep(ctx, "sess-1", 4, "reflect", "the first approach timed out", "trying a narrower query")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if turn.Role != RoleStep {
		t.Errorf("Expected role %q, got %s", RoleStep, turn.Role)
	}
	if !strings.Contains(turn.Content, "step 4 reflect:") {
		t.Errorf("Expected step header in content, got %q", turn.Content)
	}
	if !strings.Contains(turn.Content, "trying a narrower query") {
		t.Errorf("Expected summary in content, got %q", turn.Content)
	}
	if !strings.Contains(turn.Content, "the first approach timed out") {
		t.Errorf("Expected thinking in content, got %q", turn.Content)
	}
}

func TestStore_RecordToolCallAndResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	input := map[string]interface{}{"command": "ls", "timeout": 30.0}
	if err := store.RecordToolCall(ctx, "sess-1", "shell_execute", input); err != nil {
		t.Fatalf("Expected no error recording call, got %v", err)
	}

	result := tool.Success("file1\nfile2")
	if err := store.RecordToolResult(ctx, "sess-1", "shell_execute", result, 150*time.Millisecond); err != nil {
		t.Fatalf("Expected no error recording result, got %v", err)
	}

	pc, err := store.PromptMemoryContext(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pc.ToolEvents) != 2 {
		t.Fatalf("Expected 2 tool events, got %d", len(pc.ToolEvents))
	}

	call := pc.ToolEvents[0]
	if call.Kind != EventToolCall {
		t.Errorf("Expected first event kind %q, got %s", EventToolCall, call.Kind)
	}
	if call.ToolName != "shell_execute" {
		t.Errorf("Expected tool name shell_execute, got %s", call.ToolName)
	}
	if cmd, ok := call.Input["command"].(string); !ok || cmd != "ls" {
		t.Error("Expected tool input to round-trip")
	}

	res := pc.ToolEvents[1]
	if res.Kind != EventToolResult {
		t.Errorf("Expected second event kind %q, got %s", EventToolResult, res.Kind)
	}
	if !res.OK {
		t.Error("Expected result event to be ok")
	}
	if res.Output != "file1\nfile2" {
		t.Errorf("Expected output to round-trip, got %q", res.Output)
	}
	if res.DurationMs != 150 {
		t.Errorf("Expected duration 150ms, got %d", res.DurationMs)
	}
}

func TestStore_RecordToolResult_Failure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result := tool.Failure("execution_error", "command exited with status 1")
	if err := store.RecordToolResult(ctx, "sess-1", "shell_execute", result, 10*time.Millisecond); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pc, err := store.PromptMemoryContext(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pc.ToolEvents) != 1 {
		t.Fatalf("Expected 1 tool event, got %d", len(pc.ToolEvents))
	}

	ev := pc.ToolEvents[0]
	if ev.OK {
		t.Error("Expected failed result")
	}
	if ev.Error != "execution_error: command exited with status 1" {
		t.Errorf("Expected structured error string, got %q", ev.Error)
	}
}

func TestStore_RecordToolResult_Nil(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordToolResult(context.Background(), "sess-1", "shell_execute", nil, 0)
	if err == nil {
		t.Fatal("Expected error for nil result")
	}
}

func TestStore_PromptMemoryContext(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Earlier session provides the previous-session summary.
	if _, err := store.RecordUserMessage(ctx, "earlier", "we renamed the billing service"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAssistantFeedback(ctx, "earlier", "done, deploy went out at noon"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := store.RecordUserMessage(ctx, "active", "what is next on the roadmap"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAgentStep(ctx, "active", 1, "reason", "", "checking the tracker"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAssistantFeedback(ctx, "active", "two items remain"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.RecordToolCall(ctx, "active", "notes_search", map[string]interface{}{"query": "roadmap"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pc, err := store.PromptMemoryContext(ctx, "active")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Step records are internal and stay out of the conversation.
	if len(pc.ConversationTurns) != 2 {
		t.Fatalf("Expected 2 conversation turns, got %d", len(pc.ConversationTurns))
	}
	if pc.ConversationTurns[0].Role != RoleUser || pc.ConversationTurns[1].Role != RoleAssistant {
		t.Error("Expected user then assistant turn in chronological order")
	}

	if !strings.Contains(pc.PreviousSessionSummary, "billing") {
		t.Errorf("Expected previous session summary to mention earlier content, got %q", pc.PreviousSessionSummary)
	}

	if len(pc.ToolEvents) != 1 {
		t.Fatalf("Expected 1 tool event, got %d", len(pc.ToolEvents))
	}
	if pc.ToolEvents[0].ToolName != "notes_search" {
		t.Errorf("Expected notes_search event, got %s", pc.ToolEvents[0].ToolName)
	}
}

func TestStore_PromptMemoryContext_EmptySession(t *testing.T) {
	store := newTestStore(t)

	pc, err := store.PromptMemoryContext(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pc.ConversationTurns) != 0 {
		t.Error("Expected no conversation turns")
	}
	if pc.PreviousSessionSummary != "" {
		t.Error("Expected empty previous session summary")
	}
	if len(pc.ToolEvents) != 0 {
		t.Error("Expected no tool events")
	}
}

func TestStore_RollingSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contents := []string{"turn zero", "turn one", "turn two", "turn three", "turn four", "turn five"}
	for i, content := range contents {
		var err error
		if i%2 == 0 {
			_, err = store.RecordUserMessage(ctx, "sess-1", content)
		} else {
			_, err = store.RecordAssistantFeedback(ctx, "sess-1", content)
		}
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}

	summary := sessions[0].Summary
	for _, want := range []string{"turn zero", "turn one", "turn four", "turn five", "2 more turns"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Expected summary to contain %q, got %q", want, summary)
		}
	}
	for _, skip := range []string{"turn two", "turn three"} {
		if strings.Contains(summary, skip) {
			t.Errorf("Expected summary to elide %q, got %q", skip, summary)
		}
	}
}

func TestStore_CompressionRoundTrip(t *testing.T) {
	store, err := NewStoreWithConfig(Config{
		DB:                DBConfig{Path: t.TempDir() + "/test.db"},
		CompressThreshold: 64,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	content := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)

	if _, err := store.RecordAssistantFeedback(ctx, "sess-1", content); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.CompressedTurnCount != 1 {
		t.Errorf("Expected 1 compressed turn, got %d", stats.CompressedTurnCount)
	}

	turns, err := store.LoadSessionTurns(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(turns))
	}
	if turns[0].Content != content {
		t.Error("Expected compressed content to round-trip unchanged")
	}

	// Compressed turns stay searchable.
	found, err := store.SearchTurns(ctx, "sess-1", "lazy fox", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected compressed turn to be found, got %d results", len(found))
	}
}

func TestStore_SmallTurnsStayUncompressed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "sess-1", "short"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.CompressedTurnCount != 0 {
		t.Errorf("Expected no compressed turns, got %d", stats.CompressedTurnCount)
	}
}

func TestStore_SearchSessionSummaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "alpha", "help me plan the postgres database migration"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAssistantFeedback(ctx, "alpha", "the migration needs a schema freeze first"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordUserMessage(ctx, "beta", "set up the kubernetes cluster deployment"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	hits, err := store.SearchSessionSummaries(ctx, "database migration", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("Expected at least one hit")
	}
	if hits[0].SessionID != "alpha" {
		t.Errorf("Expected alpha ranked first, got %s", hits[0].SessionID)
	}
	if hits[0].Summary == "" {
		t.Error("Expected hit to carry the summary")
	}
}

func TestStore_SearchSessionSummaries_EmptyQuery(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.SearchSessionSummaries(context.Background(), "  ?!  ", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits for empty query, got %d", len(hits))
	}
}

func TestStore_SearchSessionSummaries_NoMatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "alpha", "discussing the release checklist"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	hits, err := store.SearchSessionSummaries(ctx, "zebra unicorn", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits, got %d", len(hits))
	}
}

func TestStore_SearchTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "sess-1", "the deploy failed with a timeout"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAssistantFeedback(ctx, "sess-1", "lunch plans are at noon"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	turns, err := store.SearchTurns(ctx, "sess-1", "deploy timeout", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(turns) == 0 {
		t.Fatal("Expected at least one matching turn")
	}
	if turns[0].Ref != "t0" {
		t.Errorf("Expected the deploy turn ranked first, got ref %s", turns[0].Ref)
	}
}

func TestStore_LoadSessionTurns_Empty(t *testing.T) {
	store := newTestStore(t)

	turns, err := store.LoadSessionTurns(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("Expected no turns, got %d", len(turns))
	}
}

func TestStore_DeleteSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "keep", "keep this session"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordUserMessage(ctx, "drop", "drop this session"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.RecordToolCall(ctx, "drop", "shell_execute", map[string]interface{}{"command": "ls"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := store.DeleteSession(ctx, "drop"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "keep" {
		t.Errorf("Expected only the kept session to remain")
	}

	turns, err := store.LoadSessionTurns(ctx, "drop")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("Expected deleted session turns to be gone, got %d", len(turns))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.ToolEventCount != 0 {
		t.Errorf("Expected tool events to be deleted, got %d", stats.ToolEventCount)
	}
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "sess-1", "hello"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordAssistantFeedback(ctx, "sess-1", "hi there"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordUserMessage(ctx, "sess-2", "other session"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.RecordToolCall(ctx, "sess-1", "datetime", nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.SessionCount != 2 {
		t.Errorf("Expected 2 sessions, got %d", stats.SessionCount)
	}
	if stats.TurnCount != 3 {
		t.Errorf("Expected 3 turns, got %d", stats.TurnCount)
	}
	if stats.ToolEventCount != 1 {
		t.Errorf("Expected 1 tool event, got %d", stats.ToolEventCount)
	}
	if stats.TotalTokens <= 0 {
		t.Error("Expected positive total tokens")
	}
}

func TestStore_PersistenceAcrossReopen(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"
	ctx := context.Background()

	store, err := NewStore(dbPath, observability.NewNoOpTracer())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.RecordUserMessage(ctx, "sess-1", "remember the deploy checklist"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Expected no error closing, got %v", err)
	}

	reopened, err := NewStore(dbPath, observability.NewNoOpTracer())
	if err != nil {
		t.Fatalf("Expected no error reopening, got %v", err)
	}
	defer reopened.Close()

	turns, err := reopened.LoadSessionTurns(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "remember the deploy checklist" {
		t.Error("Expected turn to survive reopen")
	}

	// Backfill must not duplicate index rows on reopen.
	found, err := reopened.SearchTurns(ctx, "sess-1", "deploy checklist", 10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(found) != 1 {
		t.Errorf("Expected exactly 1 search result after reopen, got %d", len(found))
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("sess-%d", id)
			for j := 0; j < 5; j++ {
				if _, err := store.RecordUserMessage(ctx, sessionID, fmt.Sprintf("message %d", j)); err != nil {
					t.Errorf("Expected no error, got %v", err)
					return
				}
			}
			if _, err := store.LoadSessionTurns(ctx, sessionID); err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		}(i)
	}
	wg.Wait()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.SessionCount != 10 {
		t.Errorf("Expected 10 sessions, got %d", stats.SessionCount)
	}
	if stats.TurnCount != 50 {
		t.Errorf("Expected 50 turns, got %d", stats.TurnCount)
	}
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"What did we discuss, before?", []string{"what", "did", "we", "discuss", "before"}},
		{"database migration", []string{"database", "migration"}},
		{"  ?!  ", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := queryTerms(tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("queryTerms(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("queryTerms(%q)[%d] = %q, want %q", tt.query, i, got[i], tt.want[i])
			}
		}
	}
}

func TestClampLine(t *testing.T) {
	if got := clampLine("short text", 20); got != "short text" {
		t.Errorf("Expected unchanged text, got %q", got)
	}
	if got := clampLine("line\nwith\nbreaks", 50); got != "line with breaks" {
		t.Errorf("Expected flattened whitespace, got %q", got)
	}
	long := strings.Repeat("a", 30)
	if got := clampLine(long, 10); got != strings.Repeat("a", 10)+"..." {
		t.Errorf("Expected truncation with ellipsis, got %q", got)
	}
}
