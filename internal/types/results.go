package types

import "time"

// SyncResult summarizes one pull-and-apply cycle.
type SyncResult struct {
	Received  int           `json:"received"`
	Processed int           `json:"processed"`
	Inserts   int           `json:"inserts"`
	Updates   int           `json:"updates"`
	Deletes   int           `json:"deletes"`
	Skipped   int           `json:"skipped"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Changed reports whether the cycle actually touched local storage.
func (r SyncResult) Changed() bool {
	return r.Inserts+r.Updates+r.Deletes > 0
}

// ReplayResult summarizes one pending-queue replay.
type ReplayResult struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ForceSyncReport combines the outcomes of an on-demand force sync.
type ForceSyncReport struct {
	Status ConnectionStatus `json:"status"`
	Replay *ReplayResult    `json:"replay,omitempty"`
	Sync   *SyncResult      `json:"sync,omitempty"`
}

// EventKind identifies a coordinator notification to the UI boundary.
type EventKind string

const (
	// EventStatusChanged carries the new aggregate connection status.
	EventStatusChanged EventKind = "status_changed"
	// EventDataChanged signals that local rows were inserted, updated,
	// or deleted by a sync cycle.
	EventDataChanged EventKind = "data_changed"
	// EventSyncCompleted carries the SyncResult of a finished cycle.
	EventSyncCompleted EventKind = "sync_completed"
	// EventPendingProcessed carries the ReplayResult of a queue replay.
	EventPendingProcessed EventKind = "pending_operations_processed"
)

// Event is a coordinator notification published to subscribers.
type Event struct {
	Kind   EventKind        `json:"kind"`
	Status ConnectionStatus `json:"status,omitempty"`
	Sync   *SyncResult      `json:"sync,omitempty"`
	Replay *ReplayResult    `json:"replay,omitempty"`
	At     time.Time        `json:"at"`
}
