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
	"errors"
	"testing"
)

func TestStore_SaveAndGetNote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveNote(ctx, "sess-1", "deploy-checklist", "run migrations first")
	if err != nil {
		t.Fatalf("Expected no error saving note, got %v", err)
	}
	if saved.Name != "deploy-checklist" {
		t.Errorf("Expected name 'deploy-checklist', got %s", saved.Name)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	got, err := store.GetNote(ctx, "deploy-checklist")
	if err != nil {
		t.Fatalf("Expected no error reading note, got %v", err)
	}
	if got.Content != "run migrations first" {
		t.Errorf("Expected saved content, got %q", got.Content)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("Expected writer session 'sess-1', got %s", got.SessionID)
	}
}

func TestStore_SaveNoteUpsertKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.SaveNote(ctx, "sess-1", "n", "v1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	second, err := store.SaveNote(ctx, "sess-2", "n", "v2")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("Expected created_at to survive the upsert, got %v then %v",
			first.CreatedAt, second.CreatedAt)
	}

	got, err := store.GetNote(ctx, "n")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("Expected replaced content 'v2', got %q", got.Content)
	}
	if got.SessionID != "sess-2" {
		t.Errorf("Expected latest writer 'sess-2', got %s", got.SessionID)
	}
}

func TestStore_SaveNoteRequiresName(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.SaveNote(context.Background(), "sess-1", "", "content"); err == nil {
		t.Error("Expected error for empty note name")
	}
}

func TestStore_GetNoteNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetNote(context.Background(), "never-written")
	if !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Expected ErrNoteNotFound, got %v", err)
	}
}

func TestStore_ListNotes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	notes, err := store.ListNotes(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("Expected empty list, got %d notes", len(notes))
	}

	for _, name := range []string{"one", "two", "three"} {
		if _, err := store.SaveNote(ctx, "s", name, "body of "+name); err != nil {
			t.Fatalf("Expected no error saving %s, got %v", name, err)
		}
	}

	notes, err = store.ListNotes(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("Expected 3 notes, got %d", len(notes))
	}
	seen := make(map[string]bool)
	for _, n := range notes {
		seen[n.Name] = true
		if n.Content == "" {
			t.Errorf("Expected content for %s", n.Name)
		}
	}
	for _, name := range []string{"one", "two", "three"} {
		if !seen[name] {
			t.Errorf("Expected note %s in listing", name)
		}
	}
}

func TestStore_DeleteNote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.SaveNote(ctx, "s", "temp", "x"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := store.DeleteNote(ctx, "temp"); err != nil {
		t.Fatalf("Expected no error deleting, got %v", err)
	}
	if _, err := store.GetNote(ctx, "temp"); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Expected ErrNoteNotFound after delete, got %v", err)
	}
	if err := store.DeleteNote(ctx, "temp"); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Expected ErrNoteNotFound deleting twice, got %v", err)
	}
}

func TestStore_NotesSurviveSessionDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordUserMessage(ctx, "sess-1", "hello"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := store.SaveNote(ctx, "sess-1", "keep-me", "important"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("Expected no error deleting session, got %v", err)
	}

	got, err := store.GetNote(ctx, "keep-me")
	if err != nil {
		t.Fatalf("Expected note to survive session deletion, got %v", err)
	}
	if got.Content != "important" {
		t.Errorf("Expected note content intact, got %q", got.Content)
	}
}
