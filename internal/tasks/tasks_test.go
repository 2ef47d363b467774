// internal/tasks/tasks_test.go
package tasks

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "tasks.json"))
}

func TestStore_ListEmpty(t *testing.T) {
	store := newTestStore(t)

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d tasks", len(list))
	}
}

func TestStore_AddAndList(t *testing.T) {
	store := newTestStore(t)

	task := &Task{
		Name:       "morning-brief",
		Query:      "Summarize overnight AI research news",
		Schedule:   "0 9 * * *",
		SessionKey: "telegram:123",
		Enabled:    true,
	}
	if err := store.Add(task); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 task, got %d", len(list))
	}
	got := list[0]
	if got.Name != "morning-brief" {
		t.Errorf("expected name morning-brief, got %s", got.Name)
	}
	if got.Query != "Summarize overnight AI research news" {
		t.Errorf("unexpected query %q", got.Query)
	}
	if got.Schedule != "0 9 * * *" {
		t.Errorf("expected schedule 0 9 * * *, got %s", got.Schedule)
	}
	if got.SessionKey != "telegram:123" {
		t.Errorf("expected session_key telegram:123, got %s", got.SessionKey)
	}
	if !got.Enabled {
		t.Error("expected task to be enabled")
	}
}

func TestStore_AddDuplicate(t *testing.T) {
	store := newTestStore(t)

	task := &Task{Name: "dup", Query: "q", SessionKey: "stdout", Enabled: true}
	if err := store.Add(task); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(task); err == nil {
		t.Fatal("expected error for duplicate task name")
	}
}

func TestStore_Get(t *testing.T) {
	store := newTestStore(t)

	if err := store.Add(&Task{Name: "lookup", Query: "find me", SessionKey: "stdout"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("lookup")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "lookup" {
		t.Errorf("expected name lookup, got %s", got.Name)
	}
	if got.Query != "find me" {
		t.Errorf("unexpected query %q", got.Query)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get("nonexistent"); err == nil {
		t.Fatal("expected error for nonexistent task")
	}
}

func TestStore_Remove(t *testing.T) {
	store := newTestStore(t)

	if err := store.Add(&Task{Name: "gone", Query: "q", SessionKey: "stdout"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("gone"); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list after remove, got %d tasks", len(list))
	}
}

func TestStore_RemoveNotFound(t *testing.T) {
	store := newTestStore(t)

	if err := store.Remove("nonexistent"); err == nil {
		t.Fatal("expected error for removing nonexistent task")
	}
}

func TestStore_SetEnabled(t *testing.T) {
	store := newTestStore(t)

	if err := store.Add(&Task{Name: "toggle", Query: "q", SessionKey: "stdout", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	if err := store.SetEnabled("toggle", false); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get("toggle")
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("expected task to be disabled")
	}

	if err := store.SetEnabled("toggle", true); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get("toggle")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled {
		t.Error("expected task to be enabled")
	}
}

func TestStore_SetEnabledNotFound(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetEnabled("nonexistent", true); err == nil {
		t.Fatal("expected error for SetEnabled on nonexistent task")
	}
}

func TestStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	store1 := NewStore(path)
	if store1.Path() != path {
		t.Errorf("expected path %s, got %s", path, store1.Path())
	}
	if err := store1.Add(&Task{Name: "persist", Query: "persist me", SessionKey: "telegram:456", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	store2 := NewStore(path)
	list, err := store2.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 task from new store, got %d", len(list))
	}
	if list[0].Name != "persist" {
		t.Errorf("expected name persist, got %s", list[0].Name)
	}
}
