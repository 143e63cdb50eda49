package types

import "fmt"

// ConnectivityError is a transport-level failure: timeout, DNS failure,
// connection refused. It is the only error class that may downgrade the
// aggregate connection status.
type ConnectivityError struct {
	Upstream Upstream
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s upstream unreachable: %v", e.Upstream, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// RemoteRejectedError means the remote accepted the connection but
// rejected the operation (validation, conflict, permission). It is an
// application error and never affects connectivity state.
type RemoteRejectedError struct {
	StatusCode int
	Body       string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected operation: status %d: %s", e.StatusCode, e.Body)
}

// CursorInvalidError means the feed rejected the replication cursor. The
// feed client resets the cursor to the initial sentinel before returning
// this error; the caller should retry the pull once from scratch.
type CursorInvalidError struct {
	StatusCode int
	Offset     string
	Handle     string
}

func (e *CursorInvalidError) Error() string {
	return fmt.Sprintf("feed rejected cursor offset=%q handle=%q (status %d)", e.Offset, e.Handle, e.StatusCode)
}

// StorageError is a local transaction or statement failure. It aborts the
// current cycle but never crashes the process.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// QueueError is a pending-operation store persistence failure. It is
// surfaced to the caller of enqueue/remove because silently losing a
// queued write is unacceptable.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("pending queue %s failed: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }
