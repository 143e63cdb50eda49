// Package coordinator orchestrates the sync engine.
//
// The coordinator owns the aggregate connection status (mirrored from the
// monitor), drives periodic and event-triggered sync cycles, replays the
// pending-operation queue in dependency order, applies decoded feed
// entries to local storage transactionally, and exposes force-sync and
// status queries to the UI boundary.
//
// At most one sync cycle (queue replay or pull-and-apply) runs per
// process, enforced by a reentrancy guard.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dwestbrook/tasksync/internal/monitor"
	"github.com/dwestbrook/tasksync/internal/queue"
	"github.com/dwestbrook/tasksync/internal/store"
	"github.com/dwestbrook/tasksync/internal/types"
)

// ErrSyncInProgress is returned when a cycle is requested while another
// one is still running.
var ErrSyncInProgress = errors.New("sync cycle already in progress")

// WriteClient performs create/update/delete against the remote record
// store. Implemented by remote.Client.
type WriteClient interface {
	Create(ctx context.Context, fields map[string]any) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// FeedClient pulls raw log entries from the change feed. Implemented by
// feed.Client.
type FeedClient interface {
	Pull(ctx context.Context) ([]json.RawMessage, error)
}

// Config holds coordinator configuration.
type Config struct {
	// SyncInterval is the periodic pull-and-apply interval (default: 30s).
	SyncInterval time.Duration

	// Logger for coordinator activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[coordinator] ", log.LstdFlags),
	}
}

// Coordinator is the sync orchestrator.
type Coordinator struct {
	store   *store.Store
	queue   *queue.Store
	remote  WriteClient
	feed    FeedClient
	monitor *monitor.Monitor
	config  *Config
	logger  *log.Logger

	mu             sync.Mutex
	syncing        bool
	lastCycle      time.Time
	lastStable     types.ConnectionStatus
	periodicCancel context.CancelFunc
	subs           map[int]chan types.Event
	nextSub        int
	started        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Coordinator. All collaborators are required except
// config, which defaults.
func New(st *store.Store, q *queue.Store, remote WriteClient, feed FeedClient, mon *monitor.Monitor, config *Config) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval == 0 {
		config.SyncInterval = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[coordinator] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		store:      st,
		queue:      q,
		remote:     remote,
		feed:       feed,
		monitor:    mon,
		config:     config,
		logger:     config.Logger,
		lastStable: types.StatusOffline,
		subs:       make(map[int]chan types.Event),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start brings the engine up: it subscribes to monitor transitions,
// starts the monitor's poll loop, and forces an immediate probe cycle.
// When that first check comes back Online the resulting transition event
// starts the periodic timer and runs the initial replay and pull.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	events, unsubscribe := c.monitor.Subscribe()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsubscribe()
		c.eventLoop(events)
	}()

	c.monitor.Start()
	c.monitor.ForceCheck(c.ctx)
}

// Stop shuts the engine down: no new cycles start, the periodic timer and
// monitor stop, and the feed client's resources are released. Safe to
// call even if Start was never called or failed partway.
func (c *Coordinator) Stop() {
	c.cancel()
	c.stopPeriodic()
	c.wg.Wait()

	if c.monitor != nil {
		c.monitor.Stop()
	}
	if closer, ok := c.feed.(interface{ Close() }); ok && closer != nil {
		closer.Close()
	}
}

// Status returns the current aggregate connection status without side
// effects.
func (c *Coordinator) Status() types.ConnectionStatus {
	return c.monitor.Status()
}

// PendingCount returns the number of queued local writes.
func (c *Coordinator) PendingCount() int {
	return c.queue.Count()
}

// Subscribe registers an event channel for UI-boundary notifications and
// returns it with an unregister func.
func (c *Coordinator) Subscribe() (<-chan types.Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan types.Event, 16)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Coordinator) publish(ev types.Event) {
	ev.At = time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Println("Warning: event subscriber full, dropping event")
		}
	}
}

// eventLoop reacts to monitor transitions.
func (c *Coordinator) eventLoop(events <-chan monitor.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleMonitorEvent(ev)
		}
	}
}

func (c *Coordinator) handleMonitorEvent(ev monitor.Event) {
	switch ev.Kind {
	case monitor.EventStatusChanged:
		c.handleStatusChange(ev.Status)

	case monitor.EventUpstreamChanged:
		c.handleUpstreamChange(ev)
	}
}

// handleStatusChange acts on Offline<->Online transitions. Syncing is a
// transient override the coordinator itself causes, so it is published to
// subscribers but never drives transition work.
func (c *Coordinator) handleStatusChange(status types.ConnectionStatus) {
	c.publish(types.Event{Kind: types.EventStatusChanged, Status: status})

	if status == types.StatusSyncing {
		return
	}

	c.mu.Lock()
	prev := c.lastStable
	c.lastStable = status
	c.mu.Unlock()

	if prev == status {
		return
	}

	switch status {
	case types.StatusOnline:
		c.logger.Println("Connection restored, resuming sync")
		c.startPeriodic()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.onReconnect()
		}()

	case types.StatusOffline:
		c.logger.Println("Connection lost, pausing sync")
		c.stopPeriodic()
	}
}

// onReconnect replays the pending queue if the write upstream is healthy,
// then pulls and applies if the feed upstream is healthy.
func (c *Coordinator) onReconnect() {
	if c.monitor.WriteHealthy() && !c.queue.IsEmpty() {
		if _, err := c.ProcessPendingOperations(c.ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			c.logger.Printf("Queue replay after reconnect failed: %v", err)
		}
	}
	if c.monitor.FeedHealthy() {
		if _, err := c.SyncNow(c.ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			c.logger.Printf("Sync after reconnect failed: %v", err)
		}
	}
}

// handleUpstreamChange triggers targeted work when a single upstream
// recovers while the aggregate status is already Online.
func (c *Coordinator) handleUpstreamChange(ev monitor.Event) {
	if !ev.Reachable || c.monitor.Status() != types.StatusOnline {
		return
	}

	switch ev.Upstream {
	case types.UpstreamFeed:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.SyncNow(c.ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				c.logger.Printf("Sync after feed recovery failed: %v", err)
			}
		}()

	case types.UpstreamWrite:
		if c.queue.IsEmpty() {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.ProcessPendingOperations(c.ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				c.logger.Printf("Queue replay after write recovery failed: %v", err)
			}
		}()
	}
}

// startPeriodic launches the periodic sync loop. Idempotent.
func (c *Coordinator) startPeriodic() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.periodicCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.periodicCancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.periodicLoop(ctx)
	}()
}

// stopPeriodic stops the periodic sync loop. Idempotent.
func (c *Coordinator) stopPeriodic() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.periodicCancel != nil {
		c.periodicCancel()
		c.periodicCancel = nil
	}
}

// periodicLoop runs a pull-and-apply cycle every SyncInterval while the
// aggregate status is Online. Errors are logged and swallowed; periodic
// cycles never crash the process.
func (c *Coordinator) periodicLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.monitor.Status() != types.StatusOnline {
				continue
			}
			c.mu.Lock()
			recent := time.Since(c.lastCycle) < c.config.SyncInterval
			c.mu.Unlock()
			if recent {
				continue
			}
			if _, err := c.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				c.logger.Printf("Periodic sync failed: %v", err)
			}
		}
	}
}

// beginSync acquires the reentrancy guard. Returns false when another
// cycle is in flight.
func (c *Coordinator) beginSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncing {
		return false
	}
	c.syncing = true
	return true
}

// endSync releases the reentrancy guard. Runs on every exit path of a
// cycle.
func (c *Coordinator) endSync() {
	c.mu.Lock()
	c.syncing = false
	c.mu.Unlock()
}

// ForceSync probes both upstreams immediately, then replays the queue (if
// the write upstream is healthy) and pulls-and-applies (if the feed
// upstream is healthy), returning a combined report.
func (c *Coordinator) ForceSync(ctx context.Context) (*types.ForceSyncReport, error) {
	if !c.beginSync() {
		return nil, ErrSyncInProgress
	}
	defer c.endSync()

	status := c.monitor.ForceCheck(ctx)
	report := &types.ForceSyncReport{Status: status}

	if c.monitor.WriteHealthy() {
		replay, err := c.replay(ctx)
		report.Replay = replay
		if err != nil {
			c.logger.Printf("Force sync: queue replay stopped early: %v", err)
		}
	}

	if c.monitor.FeedHealthy() {
		result, err := c.pullAndApply(ctx)
		report.Sync = result
		if err != nil {
			c.logger.Printf("Force sync: pull failed: %v", err)
		}
	}

	report.Status = c.monitor.Status()
	return report, nil
}
