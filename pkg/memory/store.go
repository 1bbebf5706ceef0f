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
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/teradata-labs/treadle/pkg/observability"
	"github.com/teradata-labs/treadle/pkg/tokencount"
	"github.com/teradata-labs/treadle/pkg/tool"
)

const (
	// DefaultCompressThreshold is the minimum turn content size in bytes
	// before zstd compression is attempted.
	DefaultCompressThreshold = 4096

	// DefaultSummaryHeadTurns and DefaultSummaryTailTurns shape the rolling
	// session summary: that many turns from the start and end of the
	// session are kept verbatim with a gap marker between them.
	DefaultSummaryHeadTurns = 2
	DefaultSummaryTailTurns = 2

	// DefaultMaxContextTurns caps the conversation turns returned in
	// PromptMemoryContext.
	DefaultMaxContextTurns = 50

	// DefaultMaxContextToolEvents caps the tool events returned in
	// PromptMemoryContext.
	DefaultMaxContextToolEvents = 20

	// DefaultSearchLimit applies when a search is requested with no limit.
	DefaultSearchLimit = 10

	// summaryLineLimit clamps each turn line inside a rolling summary.
	summaryLineLimit = 160

	// titleLimit clamps the session title taken from the first user message.
	titleLimit = 80
)

// schema is the base table layout. Turn content lives in exactly one of
// content (plaintext) or content_zstd (compressed).
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	turn_count INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	turn_ref TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT,
	content_zstd BLOB,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE(session_id, turn_ref)
);

CREATE TABLE IF NOT EXISTS tool_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input_json TEXT,
	output TEXT,
	ok INTEGER,
	error TEXT,
	duration_ms INTEGER,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	name TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_events_session ON tool_events(session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// ftsSchema adds the full-text indexes. Session summaries are plaintext in
// the sessions table, so triggers keep summaries_fts in sync. Turn content
// may be stored compressed, which a trigger cannot decompress; turns_fts
// rows are therefore inserted explicitly with the plaintext on every write.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS turns_fts USING fts5(
	turn_id UNINDEXED,
	session_id UNINDEXED,
	turn_ref UNINDEXED,
	content,
	tokenize='porter unicode61'
);

CREATE VIRTUAL TABLE IF NOT EXISTS summaries_fts USING fts5(
	session_id UNINDEXED,
	summary,
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS summaries_fts_insert AFTER INSERT ON sessions BEGIN
	INSERT INTO summaries_fts(session_id, summary) VALUES (new.id, new.summary);
END;

CREATE TRIGGER IF NOT EXISTS summaries_fts_update AFTER UPDATE OF summary ON sessions BEGIN
	DELETE FROM summaries_fts WHERE session_id = old.id;
	INSERT INTO summaries_fts(session_id, summary) VALUES (new.id, new.summary);
END;

CREATE TRIGGER IF NOT EXISTS summaries_fts_delete AFTER DELETE ON sessions BEGIN
	DELETE FROM summaries_fts WHERE session_id = old.id;
END;
`

// Config configures a Store. Zero values select sensible defaults.
type Config struct {
	DB DBConfig

	// Tracer instruments store operations. Nil uses a no-op tracer.
	Tracer observability.Tracer

	// Logger receives warnings for degraded paths (index backfill,
	// search fallback). Nil uses a no-op logger.
	Logger *zap.Logger

	// CompressThreshold overrides DefaultCompressThreshold when > 0.
	CompressThreshold int

	// SummaryHeadTurns / SummaryTailTurns override the rolling summary
	// shape when > 0.
	SummaryHeadTurns int
	SummaryTailTurns int

	// MaxContextTurns / MaxContextToolEvents override the prompt context
	// caps when > 0.
	MaxContextTurns      int
	MaxContextToolEvents int
}

// Store is the SQLite-backed session memory. It records conversation turns,
// agent steps, and tool events, and serves prompt context and history
// search.
//
// Thread-safe: all methods can be called concurrently.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	tracer observability.Tracer
	logger *zap.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder
	counter *tokencount.Counter

	ftsAvailable bool

	compressThreshold    int
	summaryHead          int
	summaryTail          int
	maxContextTurns      int
	maxContextToolEvents int
}

// NewStore creates a store backed by the database at dbPath.
func NewStore(dbPath string, tracer observability.Tracer) (*Store, error) {
	return NewStoreWithConfig(Config{DB: DBConfig{Path: dbPath}, Tracer: tracer})
}

// NewStoreWithConfig creates a store with full configuration, including
// optional database encryption.
func NewStoreWithConfig(cfg Config) (*Store, error) {
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultCompressThreshold
	}
	if cfg.SummaryHeadTurns <= 0 {
		cfg.SummaryHeadTurns = DefaultSummaryHeadTurns
	}
	if cfg.SummaryTailTurns <= 0 {
		cfg.SummaryTailTurns = DefaultSummaryTailTurns
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = DefaultMaxContextTurns
	}
	if cfg.MaxContextToolEvents <= 0 {
		cfg.MaxContextToolEvents = DefaultMaxContextToolEvents
	}

	db, err := OpenDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Store{
		db:                   db,
		tracer:               cfg.Tracer,
		logger:               cfg.Logger,
		encoder:              encoder,
		decoder:              decoder,
		counter:              tokencount.GetCounter(),
		compressThreshold:    cfg.CompressThreshold,
		summaryHead:          cfg.SummaryHeadTurns,
		summaryTail:          cfg.SummaryTailTurns,
		maxContextTurns:      cfg.MaxContextTurns,
		maxContextToolEvents: cfg.MaxContextToolEvents,
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.initFTS(ctx)
	if s.ftsAvailable {
		if err := s.backfillFTS(ctx); err != nil {
			s.logger.Warn("Failed to backfill full-text index", zap.Error(err))
		}
	}

	return s, nil
}

// initFTS creates the FTS5 tables and sync triggers. FTS5 is optional:
// when the driver lacks it, search degrades to a keyword scan.
func (s *Store) initFTS(ctx context.Context) {
	if _, err := s.db.ExecContext(ctx, ftsSchema); err != nil {
		s.logger.Warn("Full-text search unavailable, using keyword scan fallback", zap.Error(err))
		s.ftsAvailable = false
		return
	}
	s.ftsAvailable = true
}

// backfillFTS populates empty FTS indexes from existing rows. This covers
// databases written before full-text search was available. Safe to run
// repeatedly.
func (s *Store) backfillFTS(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries_fts").Scan(&count); err != nil {
		return fmt.Errorf("failed to check summary index: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO summaries_fts (session_id, summary)
			SELECT id, summary FROM sessions WHERE summary != ''`); err != nil {
			return fmt.Errorf("failed to backfill summary index: %w", err)
		}
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns_fts").Scan(&count); err != nil {
		return fmt.Errorf("failed to check turn index: %w", err)
	}
	if count > 0 {
		return nil
	}

	// Compressed turns must be decompressed in Go before indexing, and the
	// single pooled connection is held while rows are open, so the rows are
	// collected first and inserted after the scan completes.
	type ftsRow struct {
		id        int64
		sessionID string
		ref       string
		text      string
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, session_id, turn_ref, content, content_zstd FROM turns")
	if err != nil {
		return fmt.Errorf("failed to read turns for backfill: %w", err)
	}
	defer rows.Close()

	var pending []ftsRow
	for rows.Next() {
		var r ftsRow
		var content sql.NullString
		var blob []byte
		if err := rows.Scan(&r.id, &r.sessionID, &r.ref, &content, &blob); err != nil {
			return fmt.Errorf("failed to scan turn for backfill: %w", err)
		}
		text, err := s.turnText(content, blob)
		if err != nil {
			return err
		}
		if text == "" {
			continue
		}
		r.text = text
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating turns for backfill: %w", err)
	}

	for _, r := range pending {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO turns_fts (turn_id, session_id, turn_ref, content)
			VALUES (?, ?, ?, ?)`, r.id, r.sessionID, r.ref, r.text); err != nil {
			return fmt.Errorf("failed to backfill turn index: %w", err)
		}
	}
	return nil
}

// RecordUserMessage appends a user turn to the session, creating the
// session on first use. The first user message also becomes the session
// title.
func (s *Store) RecordUserMessage(ctx context.Context, sessionID, content string) (Turn, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.record_user_message")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.appendTurn(ctx, sessionID, RoleUser, content)
	if err != nil {
		span.RecordError(err)
		return Turn{}, err
	}
	span.SetAttribute("turn_ref", turn.Ref)
	return turn, nil
}

// RecordAssistantFeedback appends an assistant turn (feedback message or
// final reply) to the session.
func (s *Store) RecordAssistantFeedback(ctx context.Context, sessionID, content string) (Turn, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.record_assistant_feedback")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.appendTurn(ctx, sessionID, RoleAssistant, content)
	if err != nil {
		span.RecordError(err)
		return Turn{}, err
	}
	span.SetAttribute("turn_ref", turn.Ref)
	return turn, nil
}

// RecordAgentStep appends an internal step record (phase, summary, and
// optional thinking) to the session.
func (s *Store) RecordAgentStep(ctx context.Context, sessionID string, step int, phase, thinking, summary string) (Turn, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.record_agent_step")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)
	span.SetAttribute("step", step)
	span.SetAttribute("phase", phase)

	content := fmt.Sprintf("step %d %s: %s", step, phase, summary)
	if thinking != "" {
		content += "\n" + thinking
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turn, err := s.appendTurn(ctx, sessionID, RoleStep, content)
	if err != nil {
		span.RecordError(err)
		return Turn{}, err
	}
	span.SetAttribute("turn_ref", turn.Ref)
	return turn, nil
}

// appendTurn inserts one turn, assigns its per-session ref, refreshes the
// rolling summary, and indexes the plaintext. Callers hold s.mu.
func (s *Store) appendTurn(ctx context.Context, sessionID, role, content string) (Turn, error) {
	now := time.Now()
	tokens := s.counter.CountTokens(content)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Turn{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)",
		sessionID, now.Unix(), now.Unix()); err != nil {
		return Turn{}, fmt.Errorf("failed to ensure session: %w", err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		"SELECT turn_count FROM sessions WHERE id = ?", sessionID).Scan(&seq); err != nil {
		return Turn{}, fmt.Errorf("failed to read turn counter: %w", err)
	}
	ref := fmt.Sprintf("t%d", seq)

	// Oversized content is stored compressed, and only when the compressed
	// form is actually smaller.
	var plain, blob interface{}
	plain = content
	if len(content) >= s.compressThreshold {
		if compressed := s.encoder.EncodeAll([]byte(content), nil); len(compressed) < len(content) {
			plain = nil
			blob = compressed
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, turn_ref, role, content, content_zstd, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, ref, role, plain, blob, tokens, now.Unix())
	if err != nil {
		return Turn{}, fmt.Errorf("failed to insert turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET turn_count = ?, total_tokens = total_tokens + ?, updated_at = ?
		WHERE id = ?`,
		seq+1, tokens, now.Unix(), sessionID); err != nil {
		return Turn{}, fmt.Errorf("failed to update session counters: %w", err)
	}

	if role == RoleUser {
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET title = ? WHERE id = ? AND title = ''",
			clampLine(content, titleLimit), sessionID); err != nil {
			return Turn{}, fmt.Errorf("failed to set session title: %w", err)
		}
	}

	if err := s.refreshSummary(ctx, tx, sessionID); err != nil {
		return Turn{}, err
	}

	if err := tx.Commit(); err != nil {
		return Turn{}, fmt.Errorf("failed to commit turn: %w", err)
	}

	// Indexing happens outside the transaction: FTS rows always carry the
	// plaintext so compressed turns stay searchable, and an index failure
	// must not lose the recorded turn.
	if s.ftsAvailable {
		turnID, err := res.LastInsertId()
		if err == nil {
			_, err = s.db.ExecContext(ctx, `
				INSERT INTO turns_fts (turn_id, session_id, turn_ref, content)
				VALUES (?, ?, ?, ?)`, turnID, sessionID, ref, content)
		}
		if err != nil {
			s.logger.Warn("Failed to index turn for full-text search",
				zap.String("session_id", sessionID),
				zap.String("turn_ref", ref),
				zap.Error(err))
		}
	}

	return Turn{
		SessionID:  sessionID,
		Ref:        ref,
		Role:       role,
		Content:    content,
		TokenCount: tokens,
		CreatedAt:  now,
	}, nil
}

// refreshSummary rewrites the session's rolling head+tail summary. Runs
// inside the caller's transaction; the summaries_fts trigger picks up the
// update.
func (s *Store) refreshSummary(ctx context.Context, tx *sql.Tx, sessionID string) error {
	var total int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM turns WHERE session_id = ?", sessionID).Scan(&total); err != nil {
		return fmt.Errorf("failed to count turns: %w", err)
	}
	if total == 0 {
		return nil
	}

	lines, err := s.summaryTurns(ctx, tx, sessionID, "ASC", s.summaryHead)
	if err != nil {
		return err
	}

	if total > s.summaryHead+s.summaryTail {
		lines = append(lines, fmt.Sprintf("... %d more turns ...", total-s.summaryHead-s.summaryTail))
	}

	if total > s.summaryHead {
		n := s.summaryTail
		if total-s.summaryHead < n {
			n = total - s.summaryHead
		}
		tail, err := s.summaryTurns(ctx, tx, sessionID, "DESC", n)
		if err != nil {
			return err
		}
		for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
			tail[i], tail[j] = tail[j], tail[i]
		}
		lines = append(lines, tail...)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET summary = ? WHERE id = ?",
		strings.Join(lines, "\n"), sessionID); err != nil {
		return fmt.Errorf("failed to update session summary: %w", err)
	}
	return nil
}

// summaryTurns renders up to limit turns from one end of the session as
// "role: content" lines.
func (s *Store) summaryTurns(ctx context.Context, tx *sql.Tx, sessionID, order string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT role, content, content_zstd FROM turns
		WHERE session_id = ? ORDER BY id %s LIMIT ?`, order),
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary turns: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var role string
		var content sql.NullString
		var blob []byte
		if err := rows.Scan(&role, &content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan summary turn: %w", err)
		}
		text, err := s.turnText(content, blob)
		if err != nil {
			return nil, err
		}
		lines = append(lines, role+": "+clampLine(text, summaryLineLimit))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary turns: %w", err)
	}
	return lines, nil
}

// RecordToolCall records a tool invocation and its parameters.
func (s *Store) RecordToolCall(ctx context.Context, sessionID, toolName string, input map[string]interface{}) error {
	ctx, span := s.tracer.StartSpan(ctx, "memory.record_tool_call")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)
	span.SetAttribute("tool_name", toolName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertToolEvent(ctx, ToolEvent{
		SessionID: sessionID,
		Kind:      EventToolCall,
		ToolName:  toolName,
		Input:     input,
	}); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// RecordToolResult records the outcome of a tool invocation. The elapsed
// duration comes from the executor; when zero, the result's own timing is
// used.
func (s *Store) RecordToolResult(ctx context.Context, sessionID, toolName string, result *tool.Result, elapsed time.Duration) error {
	ctx, span := s.tracer.StartSpan(ctx, "memory.record_tool_result")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)
	span.SetAttribute("tool_name", toolName)

	if result == nil {
		err := fmt.Errorf("nil tool result for %s", toolName)
		span.RecordError(err)
		return err
	}

	durationMs := elapsed.Milliseconds()
	if durationMs == 0 && result.ExecutionTimeMs > 0 {
		durationMs = result.ExecutionTimeMs
	}

	var errMsg string
	if result.Error != nil {
		errMsg = fmt.Sprintf("%s: %s", result.Error.Code, result.Error.Message)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertToolEvent(ctx, ToolEvent{
		SessionID:  sessionID,
		Kind:       EventToolResult,
		ToolName:   toolName,
		Output:     result.Output,
		OK:         result.OK,
		Error:      errMsg,
		DurationMs: durationMs,
	}); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttribute("ok", result.OK)
	span.SetAttribute("duration_ms", durationMs)
	return nil
}

// insertToolEvent persists one tool event and touches the session's
// activity timestamp. Callers hold s.mu.
func (s *Store) insertToolEvent(ctx context.Context, ev ToolEvent) error {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)",
		ev.SessionID, now.Unix(), now.Unix()); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	var inputJSON interface{}
	if ev.Input != nil {
		data, err := json.Marshal(ev.Input)
		if err != nil {
			return fmt.Errorf("failed to marshal tool input: %w", err)
		}
		inputJSON = string(data)
	}

	var output, okVal, errVal, durVal interface{}
	if ev.Kind == EventToolResult {
		output = ev.Output
		okVal = ev.OK
		durVal = ev.DurationMs
		if ev.Error != "" {
			errVal = ev.Error
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tool_events (session_id, kind, tool_name, input_json, output, ok, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Kind, ev.ToolName, inputJSON, output, okVal, errVal, durVal, now.Unix()); err != nil {
		return fmt.Errorf("failed to insert tool event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", now.Unix(), ev.SessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tool event: %w", err)
	}
	return nil
}

// DeleteSession removes a session and all its turns and tool events.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.StartSpan(ctx, "memory.delete_session")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("session_id", sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteSessions(ctx, []string{sessionID}); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// deleteSessions removes sessions and their dependent rows. turns_fts has
// no delete trigger (its rows are inserted explicitly), so it is cleaned
// here; summaries_fts is handled by the session delete trigger.
func (s *Store) deleteSessions(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if s.ftsAvailable {
			if _, err := tx.ExecContext(ctx, "DELETE FROM turns_fts WHERE session_id = ?", id); err != nil {
				return fmt.Errorf("failed to clean turn index: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete turns: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM tool_events WHERE session_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete tool events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}
	return nil
}

// turnText returns the plaintext of a turn row, decompressing when the
// content was stored compressed.
func (s *Store) turnText(content sql.NullString, blob []byte) (string, error) {
	if len(blob) > 0 {
		decompressed, err := s.decoder.DecodeAll(blob, nil)
		if err != nil {
			return "", fmt.Errorf("failed to decompress turn content: %w", err)
		}
		return string(decompressed), nil
	}
	if content.Valid {
		return content.String, nil
	}
	return "", nil
}

// clampLine flattens whitespace and truncates to limit runes.
func clampLine(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// Close releases the compression codecs and closes the database.
func (s *Store) Close() error {
	s.decoder.Close()
	_ = s.encoder.Close()
	return s.db.Close()
}
