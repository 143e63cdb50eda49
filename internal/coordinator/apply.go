package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dwestbrook/tasksync/internal/feed"
	"github.com/dwestbrook/tasksync/internal/store"
	"github.com/dwestbrook/tasksync/internal/types"
)

// SyncNow runs one pull-and-apply cycle. It acquires the cycle guard; a
// cycle already in flight returns ErrSyncInProgress.
func (c *Coordinator) SyncNow(ctx context.Context) (*types.SyncResult, error) {
	if !c.beginSync() {
		return nil, ErrSyncInProgress
	}
	defer c.endSync()

	return c.pullAndApply(ctx)
}

// pullAndApply runs the cycle with the guard already held: force the
// aggregate status to Syncing, pull from the feed (retrying once from
// scratch on an invalid cursor), decode, apply within one transaction,
// then restore the status via the monitor's re-derivation.
func (c *Coordinator) pullAndApply(ctx context.Context) (*types.SyncResult, error) {
	c.monitor.SetSyncing()
	// Re-derives the true status on every exit path, including errors.
	defer c.monitor.SyncCompleted(ctx)

	started := time.Now()

	raw, err := c.feed.Pull(ctx)
	if err != nil {
		var cursorErr *types.CursorInvalidError
		if errors.As(err, &cursorErr) {
			c.logger.Printf("Feed cursor invalid, retrying from scratch: %v", err)
			raw, err = c.feed.Pull(ctx)
		}
	}
	if err != nil {
		var connErr *types.ConnectivityError
		if errors.As(err, &connErr) {
			// The deferred SyncCompleted re-probes and re-derives.
			c.logger.Printf("Pull failed, feed unreachable: %v", err)
			return nil, err
		}
		c.logger.Printf("Pull failed with application error: %v", err)
		return nil, err
	}

	entries, malformed := feed.Decode(raw)
	if malformed > 0 {
		c.logger.Printf("Skipped %d malformed feed entries", malformed)
	}

	result, err := c.applyEntries(ctx, entries)
	if err != nil {
		return nil, err
	}

	result.Received = len(raw)
	result.StartedAt = started.UTC()
	result.Duration = time.Since(started)

	c.mu.Lock()
	c.lastCycle = time.Now()
	c.mu.Unlock()

	c.logger.Printf("Sync cycle complete: received=%d processed=%d inserts=%d updates=%d deletes=%d skipped=%d",
		result.Received, result.Processed, result.Inserts, result.Updates, result.Deletes, result.Skipped)

	c.publish(types.Event{Kind: types.EventSyncCompleted, Sync: result})
	if result.Changed() {
		c.publish(types.Event{Kind: types.EventDataChanged})
	}

	return result, nil
}

// applyEntries applies decoded feed entries to local storage inside a
// single transaction. Per-entry failures are logged and counted so one
// bad entry does not abort the batch; the transaction still commits the
// entries that succeeded. Only transaction-level failures (begin/commit)
// abort the cycle.
func (c *Coordinator) applyEntries(ctx context.Context, entries []feed.Entry) (*types.SyncResult, error) {
	result := &types.SyncResult{}

	err := c.store.Transaction(ctx, func(tx *sql.Tx) error {
		for _, entry := range entries {
			result.Processed++
			if err := c.applyEntry(ctx, tx, entry, result); err != nil {
				c.logger.Printf("Failed to apply %s for %s: %v", entry.Op, entry.EntityID, err)
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply transaction failed: %w", err)
	}

	return result, nil
}

func (c *Coordinator) applyEntry(ctx context.Context, tx *sql.Tx, entry feed.Entry, result *types.SyncResult) error {
	switch entry.Op {
	case feed.OpInsert:
		if err := store.UpsertTx(ctx, tx, entry.EntityID, entry.Value); err != nil {
			return err
		}
		result.Inserts++
		return nil

	case feed.OpUpdate:
		n, err := store.UpdateTx(ctx, tx, entry.EntityID, entry.Value)
		if err != nil {
			return err
		}
		if n > 0 {
			result.Updates++
		}
		return nil

	case feed.OpDelete:
		// Zero rows affected is fine; the record may already be absent.
		n, err := store.DeleteTx(ctx, tx, entry.EntityID)
		if err != nil {
			return err
		}
		if n > 0 {
			result.Deletes++
		}
		return nil

	default:
		return fmt.Errorf("unknown operation %q", entry.Op)
	}
}
