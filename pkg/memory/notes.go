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
	"fmt"
	"time"
)

// ErrNoteNotFound is returned by GetNote and DeleteNote when no note with
// the requested name exists.
var ErrNoteNotFound = fmt.Errorf("note not found")

// SaveNote creates or replaces the named note. The writing session is
// recorded so a later reader can tell where a note came from. Notes are
// not tied to session lifetime: deleting the writing session leaves its
// notes in place.
func (s *Store) SaveNote(ctx context.Context, sessionID, name, content string) (Note, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.save_note")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("note_name", name)
	span.SetAttribute("session_id", sessionID)

	if name == "" {
		err := fmt.Errorf("note name is required")
		span.RecordError(err)
		return Note{}, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (name, content, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			content = excluded.content,
			session_id = excluded.session_id,
			updated_at = excluded.updated_at`,
		name, content, sessionID, now.Unix(), now.Unix()); err != nil {
		span.RecordError(err)
		return Note{}, fmt.Errorf("failed to save note: %w", err)
	}

	// The upsert keeps the original created_at; read it back so the
	// returned note matches what is stored.
	var created int64
	if err := s.db.QueryRowContext(ctx,
		"SELECT created_at FROM notes WHERE name = ?", name).Scan(&created); err != nil {
		span.RecordError(err)
		return Note{}, fmt.Errorf("failed to read back note: %w", err)
	}

	return Note{
		Name:      name,
		Content:   content,
		SessionID: sessionID,
		CreatedAt: time.Unix(created, 0),
		UpdatedAt: now,
	}, nil
}

// GetNote returns the named note, or ErrNoteNotFound.
func (s *Store) GetNote(ctx context.Context, name string) (Note, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.get_note")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("note_name", name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n Note
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT name, content, session_id, created_at, updated_at
		FROM notes WHERE name = ?`, name).
		Scan(&n.Name, &n.Content, &n.SessionID, &created, &updated)
	if err == sql.ErrNoRows {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		span.RecordError(err)
		return Note{}, fmt.Errorf("failed to read note: %w", err)
	}
	n.CreatedAt = time.Unix(created, 0)
	n.UpdatedAt = time.Unix(updated, 0)
	return n, nil
}

// ListNotes returns all notes ordered by most recently updated first.
// Contents are included; callers that only need names should ignore them.
func (s *Store) ListNotes(ctx context.Context) ([]Note, error) {
	ctx, span := s.tracer.StartSpan(ctx, "memory.list_notes")
	defer s.tracer.EndSpan(span)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, content, session_id, created_at, updated_at
		FROM notes ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var created, updated int64
		if err := rows.Scan(&n.Name, &n.Content, &n.SessionID, &created, &updated); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = time.Unix(created, 0)
		n.UpdatedAt = time.Unix(updated, 0)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}

	span.SetAttribute("count", len(notes))
	return notes, nil
}

// DeleteNote removes the named note. Returns ErrNoteNotFound when the note
// does not exist.
func (s *Store) DeleteNote(ctx context.Context, name string) error {
	ctx, span := s.tracer.StartSpan(ctx, "memory.delete_note")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("note_name", name)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE name = ?", name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check note deletion: %w", err)
	}
	if affected == 0 {
		return ErrNoteNotFound
	}
	return nil
}
