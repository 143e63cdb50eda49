// Package queue provides the durable pending-operation store.
//
// Local writes that cannot be confirmed against the remote record store
// are queued here and replayed by the coordinator once the write upstream
// recovers. The queue survives restarts: the entire current queue is
// serialized to a single JSON file on every mutation. Whole-file rewrite
// trades write amplification for simplicity, which is acceptable at the
// expected queue sizes (tens to low thousands of entries).
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dwestbrook/tasksync/internal/types"
)

// OpKind is the kind of a pending remote write.
type OpKind string

const (
	// OpCreate is a pending remote create.
	OpCreate OpKind = "create"
	// OpUpdate is a pending remote partial update.
	OpUpdate OpKind = "update"
	// OpDelete is a pending remote delete.
	OpDelete OpKind = "delete"
)

// ErrInvalidOperation is returned by Enqueue when a Create or Update is
// enqueued without a payload.
var ErrInvalidOperation = errors.New("operation requires a payload")

// Operation is one not-yet-acknowledged local write. At most one
// Operation exists per (EntityID, Kind) pair; a newer operation of the
// same kind replaces the older one in place.
type Operation struct {
	Kind       OpKind         `json:"kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Store is the durable pending-operation queue.
type Store struct {
	path   string
	logger *log.Logger

	mu  sync.Mutex
	ops []Operation
}

// Open loads the queue from path. A missing or corrupt file is treated as
// an empty queue, never a startup failure; corruption is logged.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}

	s := &Store{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("Warning: failed to read pending queue %s: %v (starting empty)", path, err)
		}
		return s, nil
	}

	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		logger.Printf("Warning: pending queue %s is corrupt: %v (starting empty)", path, err)
		return s, nil
	}

	s.ops = ops
	return s, nil
}

// Enqueue inserts an operation, replacing any existing operation with the
// same (entityID, kind) in place so repeated edits collapse to the latest
// one. Create and Update require a payload. The queue is persisted before
// Enqueue returns; a persistence failure surfaces as a QueueError with
// the in-memory change rolled back.
func (s *Store) Enqueue(kind OpKind, entityID string, payload map[string]any) error {
	if (kind == OpCreate || kind == OpUpdate) && len(payload) == 0 {
		return fmt.Errorf("%w: %s %s", ErrInvalidOperation, kind, entityID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	op := Operation{
		Kind:       kind,
		EntityID:   entityID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	prev := s.ops
	replaced := false
	for i := range s.ops {
		if s.ops[i].EntityID == entityID && s.ops[i].Kind == kind {
			ops := make([]Operation, len(s.ops))
			copy(ops, s.ops)
			ops[i] = op
			s.ops = ops
			replaced = true
			break
		}
	}
	if !replaced {
		s.ops = append(s.ops[:len(s.ops):len(s.ops)], op)
	}

	if err := s.persistLocked(); err != nil {
		s.ops = prev
		return &types.QueueError{Op: "enqueue", Err: err}
	}
	return nil
}

// Remove deletes the operation matching (entityID, kind) and persists if
// anything changed.
func (s *Store) Remove(entityID string, kind OpKind) error {
	return s.removeMatching(func(op Operation) bool {
		return op.EntityID == entityID && op.Kind == kind
	}, "remove")
}

// RemoveAll deletes every operation for entityID and persists if anything
// changed.
func (s *Store) RemoveAll(entityID string) error {
	return s.removeMatching(func(op Operation) bool {
		return op.EntityID == entityID
	}, "remove-all")
}

func (s *Store) removeMatching(match func(Operation) bool, opName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Operation, 0, len(s.ops))
	for _, op := range s.ops {
		if !match(op) {
			kept = append(kept, op)
		}
	}
	if len(kept) == len(s.ops) {
		return nil
	}

	prev := s.ops
	s.ops = kept
	if err := s.persistLocked(); err != nil {
		s.ops = prev
		return &types.QueueError{Op: opName, Err: err}
	}
	return nil
}

// ListAll returns a snapshot of the queue in insertion order.
func (s *Store) ListAll() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]Operation, len(s.ops))
	copy(snapshot, s.ops)
	return snapshot
}

// Count returns the number of queued operations.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// IsEmpty reports whether the queue has no operations.
func (s *Store) IsEmpty() bool {
	return s.Count() == 0
}

// persistLocked serializes the entire queue to disk. Callers must hold mu.
// The write goes through a temp file and rename so a crash mid-write
// leaves the previous snapshot intact.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.ops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pending-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close queue file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
