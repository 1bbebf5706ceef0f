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
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// turnColumns is the SELECT list every turn query shares.
const turnColumns = "session_id, turn_ref, role, content, content_zstd, token_count, created_at"

// LoadSessionTurns returns every turn of a session in insertion order.
func (s *Store) LoadSessionTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.load_session_turns")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, err := s.queryTurns(ctx,
		"SELECT "+turnColumns+" FROM turns WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("turn_count", len(turns))
	return turns, nil
}

// PromptMemoryContext assembles the memory slice for the agent's system
// prompt: recent conversation turns, the previous session's summary, and
// recent tool events.
func (s *Store) PromptMemoryContext(ctx context.Context, sessionID string) (*PromptContext, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.prompt_context")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	pc := &PromptContext{}

	turns, err := s.queryTurns(ctx,
		"SELECT "+turnColumns+` FROM turns
		WHERE session_id = ? AND role IN (?, ?)
		ORDER BY id DESC LIMIT ?`,
		sessionID, RoleUser, RoleAssistant, s.maxContextTurns)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	slices.Reverse(turns)
	pc.ConversationTurns = turns

	var prev string
	err = s.db.QueryRowContext(ctx, `
		SELECT summary FROM sessions
		WHERE id != ? AND summary != ''
		ORDER BY updated_at DESC LIMIT 1`, sessionID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load previous session summary: %w", err)
	}
	pc.PreviousSessionSummary = prev

	events, err := s.queryToolEvents(ctx, `
		SELECT session_id, kind, tool_name, input_json, output, ok, error, duration_ms, created_at
		FROM tool_events WHERE session_id = ?
		ORDER BY id DESC LIMIT ?`,
		sessionID, s.maxContextToolEvents)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	slices.Reverse(events)
	pc.ToolEvents = events

	span.SetAttribute("conversation_turns", len(pc.ConversationTurns))
	span.SetAttribute("tool_events", len(pc.ToolEvents))
	return pc, nil
}

// SearchSessionSummaries returns sessions whose rolling summaries match the
// query, most relevant first. An empty or punctuation-only query returns no
// results.
func (s *Store) SearchSessionSummaries(ctx context.Context, query string, limit int) ([]SummaryHit, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.search_summaries")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("query", query)

	terms := queryTerms(query)
	if len(terms) == 0 {
		span.SetAttribute("query_validation", "empty_query")
		return []SummaryHit{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	span.SetAttribute("limit", limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ftsAvailable {
		hits, err := s.searchSummariesFTS(ctx, terms, limit)
		if err == nil {
			span.SetAttribute("search_path", "fts5")
			span.SetAttribute("results", len(hits))
			return hits, nil
		}
		s.logger.Warn("Full-text summary search failed, using keyword scan", zap.Error(err))
	}

	hits, err := s.scanSummaries(ctx, terms, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("search_path", "keyword_scan")
	span.SetAttribute("results", len(hits))
	return hits, nil
}

// searchSummariesFTS ranks summaries with FTS5 BM25. bm25() assigns lower
// values to better matches, so the sign is flipped for the exposed score.
func (s *Store) searchSummariesFTS(ctx context.Context, terms []string, limit int) ([]SummaryHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT se.id, se.title, se.summary, se.turn_count, se.updated_at, bm25(summaries_fts)
		FROM summaries_fts
		JOIN sessions se ON summaries_fts.session_id = se.id
		WHERE summaries_fts.summary MATCH ?
		ORDER BY bm25(summaries_fts)
		LIMIT ?`,
		matchExpr(terms), limit)
	if err != nil {
		return nil, fmt.Errorf("summary search failed: %w", err)
	}
	defer rows.Close()

	var hits []SummaryHit
	for rows.Next() {
		var hit SummaryHit
		var updatedAt int64
		var score float64
		if err := rows.Scan(&hit.SessionID, &hit.Title, &hit.Summary, &hit.TurnCount, &updatedAt, &score); err != nil {
			return nil, fmt.Errorf("failed to scan summary hit: %w", err)
		}
		hit.UpdatedAt = time.Unix(updatedAt, 0)
		hit.Score = -score
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary hits: %w", err)
	}
	return hits, nil
}

// scanSummaries is the non-FTS fallback: every summary is scored by query
// term overlap in Go.
func (s *Store) scanSummaries(ctx context.Context, terms []string, limit int) ([]SummaryHit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, summary, turn_count, updated_at FROM sessions WHERE summary != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var hits []SummaryHit
	for rows.Next() {
		var hit SummaryHit
		var updatedAt int64
		if err := rows.Scan(&hit.SessionID, &hit.Title, &hit.Summary, &hit.TurnCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		hit.UpdatedAt = time.Unix(updatedAt, 0)
		hit.Score = keywordScore(hit.Summary, terms)
		if hit.Score == 0 {
			continue
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].UpdatedAt.After(hits[j].UpdatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchTurns returns the turns of one session that match the query, most
// relevant first.
func (s *Store) SearchTurns(ctx context.Context, sessionID, query string, limit int) ([]Turn, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.search_turns")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)
	span.SetAttribute("query", query)

	terms := queryTerms(query)
	if len(terms) == 0 {
		span.SetAttribute("query_validation", "empty_query")
		return []Turn{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ftsAvailable {
		turns, err := s.searchTurnsFTS(ctx, sessionID, terms, limit)
		if err == nil {
			span.SetAttribute("search_path", "fts5")
			span.SetAttribute("results", len(turns))
			return turns, nil
		}
		s.logger.Warn("Full-text turn search failed, using keyword scan", zap.Error(err))
	}

	turns, err := s.scanTurns(ctx, sessionID, terms, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttribute("search_path", "keyword_scan")
	span.SetAttribute("results", len(turns))
	return turns, nil
}

func (s *Store) searchTurnsFTS(ctx context.Context, sessionID string, terms []string, limit int) ([]Turn, error) {
	return s.queryTurns(ctx, `
		SELECT t.session_id, t.turn_ref, t.role, t.content, t.content_zstd, t.token_count, t.created_at
		FROM turns_fts
		JOIN turns t ON turns_fts.turn_id = t.id
		WHERE turns_fts.session_id = ? AND turns_fts.content MATCH ?
		ORDER BY bm25(turns_fts)
		LIMIT ?`,
		sessionID, matchExpr(terms), limit)
}

// scanTurns is the non-FTS fallback. Compressed turns are only searchable
// after decompression, so the whole session is loaded and scored in Go.
func (s *Store) scanTurns(ctx context.Context, sessionID string, terms []string, limit int) ([]Turn, error) {
	all, err := s.queryTurns(ctx,
		"SELECT "+turnColumns+" FROM turns WHERE session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		turn  Turn
		score float64
	}
	var matches []scored
	for _, t := range all {
		if sc := keywordScore(t.Content, terms); sc > 0 {
			matches = append(matches, scored{turn: t, score: sc})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	turns := make([]Turn, 0, len(matches))
	for _, m := range matches {
		turns = append(turns, m.turn)
	}
	return turns, nil
}

// ListSessions returns all stored sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.list_sessions")
	defer s.tracer.EndSpan(span)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, turn_count, total_tokens, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var createdAt, updatedAt int64
		if err := rows.Scan(&info.ID, &info.Title, &info.Summary, &info.TurnCount, &info.TotalTokens, &createdAt, &updatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.CreatedAt = time.Unix(createdAt, 0)
		info.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	span.SetAttribute("session_count", len(sessions))
	return sessions, nil
}

// Stats returns store-wide counters for monitoring.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.stats")
	defer s.tracer.EndSpan(span)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM sessions", &stats.SessionCount},
		{"SELECT COUNT(*) FROM turns", &stats.TurnCount},
		{"SELECT COUNT(*) FROM turns WHERE content_zstd IS NOT NULL", &stats.CompressedTurnCount},
		{"SELECT COUNT(*) FROM tool_events", &stats.ToolEventCount},
		{"SELECT COALESCE(SUM(total_tokens), 0) FROM sessions", &stats.TotalTokens},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to collect stats: %w", err)
		}
	}

	span.SetAttribute("sessions", stats.SessionCount)
	span.SetAttribute("turns", stats.TurnCount)
	return stats, nil
}

// queryTurns runs a turn query and materializes the rows, decompressing
// stored content as needed. The query must select turnColumns.
func (s *Store) queryTurns(ctx context.Context, query string, args ...interface{}) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var content sql.NullString
		var blob []byte
		var createdAt int64
		if err := rows.Scan(&t.SessionID, &t.Ref, &t.Role, &content, &blob, &t.TokenCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		text, err := s.turnText(content, blob)
		if err != nil {
			return nil, err
		}
		t.Content = text
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

func (s *Store) queryToolEvents(ctx context.Context, query string, args ...interface{}) ([]ToolEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool events: %w", err)
	}
	defer rows.Close()

	var events []ToolEvent
	for rows.Next() {
		var ev ToolEvent
		var inputJSON, output, errMsg sql.NullString
		var ok sql.NullBool
		var durationMs sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&ev.SessionID, &ev.Kind, &ev.ToolName, &inputJSON, &output, &ok, &errMsg, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool event: %w", err)
		}
		if inputJSON.Valid && inputJSON.String != "" {
			if err := json.Unmarshal([]byte(inputJSON.String), &ev.Input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool input: %w", err)
			}
		}
		ev.Output = output.String
		ev.OK = ok.Valid && ok.Bool
		ev.Error = errMsg.String
		ev.DurationMs = durationMs.Int64
		ev.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tool events: %w", err)
	}
	return events, nil
}

// queryTerms splits a natural language query into lowercase alphanumeric
// search terms. FTS5 MATCH treats punctuation as syntax, so everything else
// is stripped before a query reaches the index.
func queryTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchExpr joins terms into an FTS5 OR query, matching rows that contain
// any of the terms. The OR operator must be uppercase.
func matchExpr(terms []string) string {
	return strings.Join(terms, " OR ")
}

// keywordScore counts how many of the lowercase terms appear in text.
func keywordScore(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, term := range terms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	return score
}
