// Package monitor tracks the health of the two sync upstreams and derives
// the aggregate connection status.
//
// Both upstream probes run concurrently on a fixed timer. Per-upstream
// reachability flips are reported immediately so the coordinator can
// trigger targeted work (for example, flushing the queue the moment the
// write upstream recovers). The aggregate status is debounced: Offline
// requires both upstreams to reach the consecutive-failure threshold, so a
// single blip on one upstream never toggles the user-visible status.
package monitor

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dwestbrook/tasksync/internal/types"
)

// Prober is a lightweight, non-mutating reachability check against one
// upstream. Implementations never return an error; failures collapse to
// false.
type Prober interface {
	Probe(ctx context.Context) bool
}

// EventKind distinguishes monitor events.
type EventKind int

const (
	// EventUpstreamChanged is emitted whenever a single upstream's
	// reachability flips, regardless of the debounce threshold.
	EventUpstreamChanged EventKind = iota
	// EventStatusChanged is emitted when the debounced aggregate status
	// transitions.
	EventStatusChanged
)

// Event is a monitor notification.
type Event struct {
	Kind      EventKind
	Upstream  types.Upstream
	Reachable bool
	Status    types.ConnectionStatus
}

// Config holds monitor configuration.
type Config struct {
	// PollInterval is how often both upstreams are probed (default: 10s).
	PollInterval time.Duration

	// FailureThreshold is the consecutive-failure count at which an
	// upstream is considered down for the aggregate status (default: 3).
	FailureThreshold int

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     10 * time.Second,
		FailureThreshold: 3,
		Logger:           log.New(os.Stderr, "[monitor] ", log.LstdFlags),
	}
}

// Monitor polls both upstreams and owns the aggregate connection status.
type Monitor struct {
	writeProber Prober
	feedProber  Prober
	config      *Config

	mu      sync.Mutex
	write   types.UpstreamHealth
	feed    types.UpstreamHealth
	status  types.ConnectionStatus
	syncing bool
	subs    map[int]chan Event
	nextSub int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Monitor over the two upstream probes. The status starts
// Offline; the first probe cycle derives the real value.
func New(writeProber, feedProber Prober, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval == 0 {
		config.PollInterval = 10 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 3
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		writeProber: writeProber,
		feedProber:  feedProber,
		config:      config,
		status:      types.StatusOffline,
		subs:        make(map[int]chan Event),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the poll loop. Safe to call once.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop()
}

// Stop terminates the poll loop and waits for it to finish. Safe to call
// even if Start was never called.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Subscribe registers an event channel and returns it together with an
// unregister func. Events are dropped rather than blocking a slow
// subscriber.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 16)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
}

// Status returns the current aggregate connection status.
func (m *Monitor) Status() types.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Health returns the tracked health of one upstream.
func (m *Monitor) Health(u types.Upstream) types.UpstreamHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u == types.UpstreamWrite {
		return m.write
	}
	return m.feed
}

// WriteHealthy reports whether the write upstream passed its last probe.
func (m *Monitor) WriteHealthy() bool {
	return m.Health(types.UpstreamWrite).Reachable
}

// FeedHealthy reports whether the feed upstream passed its last probe.
func (m *Monitor) FeedHealthy() bool {
	return m.Health(types.UpstreamFeed).Reachable
}

// SetSyncing forces the aggregate status to Syncing for the duration of a
// sync cycle.
func (m *Monitor) SetSyncing() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncing = true
	if m.status != types.StatusSyncing {
		m.status = types.StatusSyncing
		m.emitLocked(Event{Kind: EventStatusChanged, Status: m.status})
	}
}

// SyncCompleted clears the Syncing override and re-derives the true
// status by re-probing both upstreams.
func (m *Monitor) SyncCompleted(ctx context.Context) types.ConnectionStatus {
	m.mu.Lock()
	m.syncing = false
	m.mu.Unlock()

	return m.check(ctx)
}

// ForceCheck runs one probe cycle immediately and returns the resulting
// aggregate status.
func (m *Monitor) ForceCheck(ctx context.Context) types.ConnectionStatus {
	return m.check(ctx)
}

func (m *Monitor) pollLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			// The tick blocks until both probes settle, so ticks never
			// overlap.
			m.check(m.ctx)
		}
	}
}

// check probes both upstreams concurrently, updates their health, and
// emits events for upstream flips and aggregate transitions.
func (m *Monitor) check(ctx context.Context) types.ConnectionStatus {
	var (
		writeUp, feedUp bool
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		writeUp = m.writeProber.Probe(ctx)
	}()
	go func() {
		defer wg.Done()
		feedUp = m.feedProber.Probe(ctx)
	}()
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	if flipped := applyProbe(&m.write, writeUp); flipped {
		m.config.Logger.Printf("write upstream reachable=%v (failures=%d)", writeUp, m.write.ConsecutiveFailures)
		m.emitLocked(Event{Kind: EventUpstreamChanged, Upstream: types.UpstreamWrite, Reachable: writeUp, Status: m.status})
	}
	if flipped := applyProbe(&m.feed, feedUp); flipped {
		m.config.Logger.Printf("feed upstream reachable=%v (failures=%d)", feedUp, m.feed.ConsecutiveFailures)
		m.emitLocked(Event{Kind: EventUpstreamChanged, Upstream: types.UpstreamFeed, Reachable: feedUp, Status: m.status})
	}

	derived := m.deriveLocked()
	if !m.syncing && derived != m.status {
		m.config.Logger.Printf("status %s -> %s", m.status, derived)
		m.status = derived
		m.emitLocked(Event{Kind: EventStatusChanged, Status: m.status})
	}

	return m.status
}

// deriveLocked computes the debounced aggregate status from both health
// trackers. Offline requires both upstreams at or past the threshold;
// partial capability (read-only or write-only) remains Online.
func (m *Monitor) deriveLocked() types.ConnectionStatus {
	threshold := m.config.FailureThreshold
	if m.write.ConsecutiveFailures >= threshold && m.feed.ConsecutiveFailures >= threshold {
		return types.StatusOffline
	}
	return types.StatusOnline
}

// applyProbe updates one health tracker and reports whether reachability
// flipped.
func applyProbe(h *types.UpstreamHealth, reachable bool) bool {
	flipped := h.Reachable != reachable
	h.Reachable = reachable
	if reachable {
		h.ConsecutiveFailures = 0
	} else {
		h.ConsecutiveFailures++
	}
	return flipped
}

// emitLocked delivers an event to all subscribers without blocking.
// Callers must hold mu.
func (m *Monitor) emitLocked(ev Event) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.config.Logger.Println("Warning: subscriber channel full, dropping event")
		}
	}
}
