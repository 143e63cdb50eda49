// Package types holds data structures and error values shared across the
// tasksync engine: the aggregate connection status, the upstream
// identifiers, the error taxonomy, and the result summaries reported to
// the UI boundary.
package types

// ConnectionStatus is the single aggregate status derived from both
// upstream health signals. It is mutated only by the connection monitor
// (from probe results) and the sync coordinator (forced to Syncing for
// the duration of a cycle).
type ConnectionStatus int

const (
	// StatusOffline means both upstreams have failed enough consecutive
	// probes to trip the debounce threshold.
	StatusOffline ConnectionStatus = iota
	// StatusOnline means at least one upstream is below the threshold.
	StatusOnline
	// StatusSyncing means a sync cycle is currently running. The true
	// status is re-derived when the cycle completes.
	StatusSyncing
)

// String returns a human-readable representation of the status.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	case StatusSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Upstream identifies one of the two remote dependencies.
type Upstream int

const (
	// UpstreamWrite is the record API that accepts create/update/delete.
	UpstreamWrite Upstream = iota
	// UpstreamFeed is the change-feed source (read path).
	UpstreamFeed
)

// String returns a human-readable representation of the upstream.
func (u Upstream) String() string {
	switch u {
	case UpstreamWrite:
		return "write"
	case UpstreamFeed:
		return "feed"
	default:
		return "unknown"
	}
}

// UpstreamHealth tracks reachability of a single upstream. Mutated only
// by the connection monitor's poll cycle; ConsecutiveFailures resets to
// zero on any successful probe.
type UpstreamHealth struct {
	Reachable           bool `json:"reachable"`
	ConsecutiveFailures int  `json:"consecutive_failures"`
}
