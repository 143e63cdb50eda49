package coordinator

import (
	"context"
	"errors"

	"github.com/dwestbrook/tasksync/internal/queue"
	"github.com/dwestbrook/tasksync/internal/types"
)

// ProcessPendingOperations replays the durable queue against the remote
// record store. It acquires the cycle guard; a cycle already in flight
// returns ErrSyncInProgress.
func (c *Coordinator) ProcessPendingOperations(ctx context.Context) (*types.ReplayResult, error) {
	if !c.beginSync() {
		return nil, ErrSyncInProgress
	}
	defer c.endSync()

	return c.replay(ctx)
}

// replay runs the queue replay with the cycle guard already held.
//
// The snapshot is partitioned by kind and replayed as Create ++ Update ++
// Delete, so an entity's creation is never attempted after its update and
// deletions run last. The bucketing is strictly by kind, not per-entity
// causal order: a pending Delete enqueued before a Create that reuses the
// same id still replays after it. That ambiguity is inherent to the
// bucketing and is kept as-is.
//
// Per operation: success removes it from the durable queue; a remote
// rejection counts as failed and the replay continues; a connectivity
// failure stops the remainder of the batch immediately and the partial
// result is returned together with the error.
func (c *Coordinator) replay(ctx context.Context) (*types.ReplayResult, error) {
	snapshot := c.queue.ListAll()
	result := &types.ReplayResult{Total: len(snapshot)}

	if len(snapshot) == 0 {
		return result, nil
	}

	c.logger.Printf("Replaying %d pending operations", len(snapshot))

	var replayErr error

	for _, op := range orderForReplay(snapshot) {
		if err := ctx.Err(); err != nil {
			replayErr = err
			break
		}

		result.Processed++

		err := c.sendOperation(ctx, op)
		if err == nil {
			result.Succeeded++
			if rmErr := c.queue.Remove(op.EntityID, op.Kind); rmErr != nil {
				c.logger.Printf("Warning: failed to remove acknowledged %s %s from queue: %v", op.Kind, op.EntityID, rmErr)
			}
			continue
		}

		var rejected *types.RemoteRejectedError
		if errors.As(err, &rejected) {
			c.logger.Printf("Remote rejected %s %s: %v", op.Kind, op.EntityID, err)
			result.Failed++
			continue
		}

		var connErr *types.ConnectivityError
		if errors.As(err, &connErr) {
			// Connectivity is gone; further writes are pointless.
			c.logger.Printf("Connectivity lost during replay after %d/%d operations", result.Processed, result.Total)
			result.Failed++
			replayErr = err
			break
		}

		c.logger.Printf("Unexpected error replaying %s %s: %v", op.Kind, op.EntityID, err)
		result.Failed++
	}

	c.logger.Printf("Replay finished: total=%d processed=%d succeeded=%d failed=%d",
		result.Total, result.Processed, result.Succeeded, result.Failed)

	c.publish(types.Event{Kind: types.EventPendingProcessed, Replay: result})

	return result, replayErr
}

// orderForReplay partitions operations by kind and concatenates the
// buckets as Create ++ Update ++ Delete, preserving insertion order
// within each bucket.
func orderForReplay(ops []queue.Operation) []queue.Operation {
	ordered := make([]queue.Operation, 0, len(ops))
	for _, kind := range []queue.OpKind{queue.OpCreate, queue.OpUpdate, queue.OpDelete} {
		for _, op := range ops {
			if op.Kind == kind {
				ordered = append(ordered, op)
			}
		}
	}
	return ordered
}

func (c *Coordinator) sendOperation(ctx context.Context, op queue.Operation) error {
	switch op.Kind {
	case queue.OpCreate:
		return c.remote.Create(ctx, op.Payload)
	case queue.OpUpdate:
		return c.remote.Update(ctx, op.EntityID, op.Payload)
	case queue.OpDelete:
		return c.remote.Delete(ctx, op.EntityID)
	default:
		return errors.New("unknown operation kind: " + string(op.Kind))
	}
}
