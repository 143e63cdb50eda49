package queue

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pending.json")
	s, err := Open(path, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	return s, path
}

func TestEnqueueRequiresPayload(t *testing.T) {
	s, _ := testStore(t)

	if err := s.Enqueue(OpCreate, "t1", nil); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for payload-less create, got %v", err)
	}
	if err := s.Enqueue(OpUpdate, "t1", nil); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for payload-less update, got %v", err)
	}

	// Deletes carry no payload.
	if err := s.Enqueue(OpDelete, "t1", nil); err != nil {
		t.Errorf("delete without payload should succeed, got %v", err)
	}
}

func TestEnqueueReplacesSameKind(t *testing.T) {
	s, _ := testStore(t)

	if err := s.Enqueue(OpUpdate, "t1", map[string]any{"title": "first"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := s.Enqueue(OpUpdate, "t1", map[string]any{"title": "second"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	ops := s.ListAll()
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation after replacement, got %d", len(ops))
	}
	if got := ops[0].Payload["title"]; got != "second" {
		t.Errorf("expected latest payload to win, got %v", got)
	}
}

func TestDifferentKindsCoexist(t *testing.T) {
	s, _ := testStore(t)

	if err := s.Enqueue(OpCreate, "t1", map[string]any{"title": "a"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := s.Enqueue(OpDelete, "t1", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if s.Count() != 2 {
		t.Errorf("expected create and delete to coexist, got %d entries", s.Count())
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	s, _ := testStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Enqueue(OpCreate, id, map[string]any{"title": id}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	// Replacing "a" must not move it to the back.
	if err := s.Enqueue(OpCreate, "a", map[string]any{"title": "a2"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	ops := s.ListAll()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if ops[i].EntityID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ops[i].EntityID)
		}
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	s, path := testStore(t)

	if err := s.Enqueue(OpCreate, "t1", map[string]any{"title": "buy milk"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := s.Enqueue(OpDelete, "t2", nil); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	reopened, err := Open(path, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("failed to reopen queue: %v", err)
	}

	ops := reopened.ListAll()
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations after reopen, got %d", len(ops))
	}
	if ops[0].EntityID != "t1" || ops[0].Kind != OpCreate {
		t.Errorf("unexpected first operation: %+v", ops[0])
	}
	if ops[0].Payload["title"] != "buy milk" {
		t.Errorf("payload not preserved: %+v", ops[0].Payload)
	}
}

func TestCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	s, err := Open(path, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("corrupt queue file must not fail startup: %v", err)
	}
	if !s.IsEmpty() {
		t.Errorf("expected empty queue from corrupt file, got %d entries", s.Count())
	}
}

func TestRemove(t *testing.T) {
	s, _ := testStore(t)

	_ = s.Enqueue(OpCreate, "t1", map[string]any{"title": "a"})
	_ = s.Enqueue(OpDelete, "t1", nil)
	_ = s.Enqueue(OpCreate, "t2", map[string]any{"title": "b"})

	if err := s.Remove("t1", OpCreate); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if s.Count() != 2 {
		t.Errorf("expected 2 entries after removing one kind, got %d", s.Count())
	}

	if err := s.RemoveAll("t1"); err != nil {
		t.Fatalf("remove-all failed: %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 entry after remove-all, got %d", s.Count())
	}

	// Removing something absent is a no-op.
	if err := s.Remove("missing", OpDelete); err != nil {
		t.Errorf("removing absent entry should not fail: %v", err)
	}
}
