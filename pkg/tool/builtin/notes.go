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
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/teradata-labs/treadle/pkg/memory"
	"github.com/teradata-labs/treadle/pkg/tool"
)

// maxNoteContentSize caps a single note body.
const maxNoteContentSize = 64 * 1024

// NoteStore is the slice of the memory store the notes tool needs.
// *memory.Store implements it.
type NoteStore interface {
	SaveNote(ctx context.Context, sessionID, name, content string) (memory.Note, error)
	GetNote(ctx context.Context, name string) (memory.Note, error)
	ListNotes(ctx context.Context) ([]memory.Note, error)
	DeleteNote(ctx context.Context, name string) error
}

// NotesTool stores and retrieves named notes in the session database.
// Notes are global: a note saved in one session is readable from any
// later session, which makes them the cheapest form of durable memory.
type NotesTool struct {
	store     NoteStore
	sessionID string
}

// NewNotesTool creates a notes tool writing as sessionID. A nil store
// yields a tool that fails every call with a configuration error.
func NewNotesTool(store NoteStore, sessionID string) *NotesTool {
	return &NotesTool{store: store, sessionID: sessionID}
}

func (t *NotesTool) Name() string {
	return "notes"
}

func (t *NotesTool) Description() string {
	return heredoc.Doc(`
		Stores and retrieves named notes that persist across sessions.

		Use this tool to:
		- Save decisions, credentials locations, or findings for later runs
		- Retrieve a note saved in an earlier session by name
		- List what has been remembered so far

		Actions: 'save' (name + content), 'get' (name), 'list', 'delete'
		(name). Saving to an existing name replaces the note.
	`)
}

func (t *NotesTool) SelectionHints() []string {
	return []string{"note", "notes", "remember", "recall", "save", "memory"}
}

func (t *NotesTool) InputSchema() *tool.JSONSchema {
	maxContent := maxNoteContentSize
	return tool.NewObjectSchema(
		"Parameters for managing notes",
		map[string]*tool.JSONSchema{
			"action": tool.NewStringSchema("What to do: 'save', 'get', 'list', or 'delete' (required)").
				WithEnum("save", "get", "list", "delete"),
			"name": tool.NewStringSchema("Note name (required for save, get, delete)"),
			"content": tool.NewStringSchema("Note body (required for save, max 64KB)").
				WithLength(nil, &maxContent),
		},
		[]string{"action"},
	)
}

func (t *NotesTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	start := time.Now()

	if t.store == nil {
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeExecution,
				Message:    "notes storage is not configured",
				Suggestion: "The agent was started without a session database",
			},
		}, start), nil
	}

	action, _ := params["action"].(string)
	name, _ := params["name"].(string)

	switch action {
	case "save":
		content, ok := params["content"].(string)
		if name == "" || !ok {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       tool.ErrCodeInvalidInput,
					Message:    "save requires both name and content",
					Suggestion: "Provide a note name and the content to store",
				},
			}, start), nil
		}
		if len(content) > maxNoteContentSize {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       "content_too_large",
					Message:    fmt.Sprintf("note is %d bytes (max: %d)", len(content), maxNoteContentSize),
					Suggestion: "Store a summary in the note and keep the full content in a file",
				},
			}, start), nil
		}
		note, err := t.store.SaveNote(ctx, t.sessionID, name, content)
		if err != nil {
			return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to save note: %v", err)), start), nil
		}
		return stamp(&tool.Result{
			OK:     true,
			Output: fmt.Sprintf("saved note %q (%d bytes)", note.Name, len(note.Content)),
			Meta: map[string]interface{}{
				"name":       note.Name,
				"size_bytes": len(note.Content),
			},
		}, start), nil

	case "get":
		if name == "" {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       tool.ErrCodeInvalidInput,
					Message:    "get requires a note name",
					Suggestion: "Use action 'list' to see available note names",
				},
			}, start), nil
		}
		note, err := t.store.GetNote(ctx, name)
		if errors.Is(err, memory.ErrNoteNotFound) {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       "note_not_found",
					Message:    fmt.Sprintf("no note named %q", name),
					Suggestion: "Use action 'list' to see available note names",
				},
			}, start), nil
		}
		if err != nil {
			return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to read note: %v", err)), start), nil
		}
		return stamp(&tool.Result{
			OK:     true,
			Output: note.Content,
			Meta: map[string]interface{}{
				"name":       note.Name,
				"session_id": note.SessionID,
				"updated_at": note.UpdatedAt.Format(time.RFC3339),
			},
		}, start), nil

	case "list":
		notes, err := t.store.ListNotes(ctx)
		if err != nil {
			return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to list notes: %v", err)), start), nil
		}
		if len(notes) == 0 {
			return stamp(tool.Success("no notes saved yet"), start), nil
		}
		var sb strings.Builder
		for _, n := range notes {
			fmt.Fprintf(&sb, "%s (%d bytes, updated %s)\n",
				n.Name, len(n.Content), n.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return stamp(&tool.Result{
			OK:     true,
			Output: strings.TrimRight(sb.String(), "\n"),
			Meta:   map[string]interface{}{"count": len(notes)},
		}, start), nil

	case "delete":
		if name == "" {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       tool.ErrCodeInvalidInput,
					Message:    "delete requires a note name",
					Suggestion: "Use action 'list' to see available note names",
				},
			}, start), nil
		}
		err := t.store.DeleteNote(ctx, name)
		if errors.Is(err, memory.ErrNoteNotFound) {
			return stamp(&tool.Result{
				OK: false,
				Error: &tool.Error{
					Code:       "note_not_found",
					Message:    fmt.Sprintf("no note named %q", name),
					Suggestion: "Use action 'list' to see available note names",
				},
			}, start), nil
		}
		if err != nil {
			return stamp(tool.Failure(tool.ErrCodeExecution, fmt.Sprintf("failed to delete note: %v", err)), start), nil
		}
		return stamp(tool.Success(fmt.Sprintf("deleted note %q", name)), start), nil

	default:
		return stamp(&tool.Result{
			OK: false,
			Error: &tool.Error{
				Code:       tool.ErrCodeInvalidInput,
				Message:    fmt.Sprintf("unknown action: %q", action),
				Suggestion: "Use 'save', 'get', 'list', or 'delete'",
			},
		}, start), nil
	}
}
