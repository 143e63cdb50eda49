// Package writer provides the local write service: the path a UI-facing
// mutation takes through the engine. Writes always land in local storage
// first; they are then written through to the remote record store when it
// is reachable, or enqueued in the durable pending queue when it is not.
package writer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dwestbrook/tasksync/internal/coordinator"
	"github.com/dwestbrook/tasksync/internal/monitor"
	"github.com/dwestbrook/tasksync/internal/queue"
	"github.com/dwestbrook/tasksync/internal/store"
	"github.com/dwestbrook/tasksync/internal/task"
	"github.com/dwestbrook/tasksync/internal/types"
)

// Service applies local mutations and forwards them to the remote record
// store or the pending queue.
type Service struct {
	store   *store.Store
	queue   *queue.Store
	remote  coordinator.WriteClient
	monitor *monitor.Monitor
	logger  *log.Logger
}

// New creates a write service. If logger is nil, a default logger writing
// to stderr is used.
func New(st *store.Store, q *queue.Store, remote coordinator.WriteClient, mon *monitor.Monitor, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[writer] ", log.LstdFlags)
	}
	return &Service{store: st, queue: q, remote: remote, monitor: mon, logger: logger}
}

// Create writes a new task locally, then creates it remotely or enqueues
// the create. A RemoteRejectedError is returned to the caller; the local
// copy is kept either way.
func (s *Service) Create(ctx context.Context, t *task.Task) error {
	if err := s.store.UpsertTask(ctx, t); err != nil {
		return fmt.Errorf("failed to write task locally: %w", err)
	}

	return s.forward(ctx, queue.OpCreate, t.ID, t.Fields(), func() error {
		return s.remote.Create(ctx, t.Fields())
	})
}

// Update applies a sparse field update locally, then updates the remote
// record or enqueues the update. Only the given fields are touched;
// updated_at is stamped automatically.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update")
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		n, err := store.UpdateTx(ctx, tx, id, fields)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("task %s not found", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update task locally: %w", err)
	}

	return s.forward(ctx, queue.OpUpdate, id, fields, func() error {
		return s.remote.Update(ctx, id, fields)
	})
}

// Delete removes the task locally, then deletes the remote record or
// enqueues the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := store.DeleteTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete task locally: %w", err)
	}

	return s.forward(ctx, queue.OpDelete, id, nil, func() error {
		return s.remote.Delete(ctx, id)
	})
}

// forward writes through to the remote store, or enqueues the operation
// when the aggregate status is Offline or the write attempt fails at the
// transport level. Remote rejections are surfaced to the caller and not
// queued; retrying a write the remote already refused would fail again.
func (s *Service) forward(ctx context.Context, kind queue.OpKind, id string, payload map[string]any, send func() error) error {
	if s.monitor != nil && s.monitor.Status() == types.StatusOffline {
		s.logger.Printf("Offline, queueing %s for %s", kind, id)
		return s.queue.Enqueue(kind, id, payload)
	}

	err := send()
	if err == nil {
		return nil
	}

	var connErr *types.ConnectivityError
	if errors.As(err, &connErr) {
		s.logger.Printf("Remote unreachable, queueing %s for %s", kind, id)
		return s.queue.Enqueue(kind, id, payload)
	}

	return err
}
