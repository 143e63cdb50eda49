// Package feed provides the change-feed client and log-entry decoder.
//
// The feed is an ordered log of remote changes addressed by an opaque
// (offset, handle) cursor. Pull requests carry the current cursor; the
// response carries the new cursor in the X-Sync-Offset and X-Sync-Handle
// headers, which are persisted before the entries are surfaced so a
// crash between receiving and processing resumes from the new cursor
// (at-least-once delivery).
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dwestbrook/tasksync/internal/types"
)

const (
	defaultProbeTimeout   = 3 * time.Second
	defaultRequestTimeout = 10 * time.Second

	offsetHeader = "X-Sync-Offset"
	handleHeader = "X-Sync-Handle"
)

// Config holds feed client configuration.
type Config struct {
	// BaseURL is the feed API root, e.g. "https://feed.example.com".
	BaseURL string

	// Table is the replicated table name carried on pull requests
	// (default: "tasks").
	Table string

	// Cursors persists the replication cursor. Required.
	Cursors CursorStore

	// ProbeTimeout bounds the reachability check (default: 3s).
	ProbeTimeout time.Duration

	// RequestTimeout bounds data pulls (default: 10s).
	RequestTimeout time.Duration

	// Logger for client activity.
	Logger *log.Logger
}

// Client pulls the ordered change log from the feed upstream and owns
// the replication cursor exclusively.
type Client struct {
	baseURL     string
	table       string
	cursors     CursorStore
	client      *http.Client
	probeClient *http.Client
	logger      *log.Logger

	mu        sync.Mutex
	cursor    Cursor
	probed    bool
	reachable bool
}

// New creates a feed client and loads the persisted cursor.
func New(ctx context.Context, config Config) (*Client, error) {
	if config.Cursors == nil {
		return nil, fmt.Errorf("cursor store is required")
	}
	if config.Table == "" {
		config.Table = "tasks"
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = defaultProbeTimeout
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}

	cursor, err := config.Cursors.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed cursor: %w", err)
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		table:       config.Table,
		cursors:     config.Cursors,
		client:      &http.Client{Timeout: config.RequestTimeout},
		probeClient: &http.Client{Timeout: config.ProbeTimeout},
		logger:      config.Logger,
		cursor:      cursor,
	}, nil
}

// Cursor returns a copy of the current replication cursor.
func (c *Client) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Probe performs a lightweight reachability check. It never returns an
// error; failures collapse to false. The result feeds the Pull
// short-circuit.
func (c *Client) Probe(ctx context.Context) bool {
	reachable := c.probe(ctx)

	c.mu.Lock()
	c.probed = true
	c.reachable = reachable
	c.mu.Unlock()

	return reachable
}

func (c *Client) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < http.StatusInternalServerError
}

// Pull fetches the next batch of raw log entries after the current
// cursor. On success the new cursor from the response metadata is
// persisted before the entries are returned.
//
// Transport failures return a ConnectivityError and leave the cursor
// untouched. A cursor-invalid response resets the cursor to the initial
// sentinel, persists the reset, and returns a CursorInvalidError; the
// caller should retry the pull once from scratch. When the last probe was
// negative, Pull short-circuits to an empty batch without a network round
// trip.
func (c *Client) Pull(ctx context.Context) ([]json.RawMessage, error) {
	c.mu.Lock()
	if c.probed && !c.reachable {
		c.mu.Unlock()
		return nil, nil
	}
	cursor := c.cursor
	c.mu.Unlock()

	u, err := url.Parse(c.baseURL + "/v1/feed")
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	q := u.Query()
	q.Set("table", c.table)
	offset := cursor.Offset
	if offset == "" {
		offset = InitialOffset
	}
	q.Set("offset", offset)
	if cursor.Handle != "" {
		q.Set("handle", cursor.Handle)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.ConnectivityError{Upstream: types.UpstreamFeed, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		// The feed no longer recognizes this offset/handle pair. Reset
		// to the sentinel so the next pull starts from scratch.
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := c.resetCursor(ctx); err != nil {
			return nil, err
		}
		return nil, &types.CursorInvalidError{
			StatusCode: resp.StatusCode,
			Offset:     cursor.Offset,
			Handle:     cursor.Handle,
		}

	case resp.StatusCode >= http.StatusBadRequest:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &types.RemoteRejectedError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ConnectivityError{Upstream: types.UpstreamFeed, Err: err}
	}

	if err := c.advanceCursor(ctx, resp.Header, cursor); err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		// Defensive: a body that is not a log-entry array is treated as
		// an empty batch, not a failure.
		c.logger.Printf("Warning: feed response is not an entry array: %v", err)
		return nil, nil
	}
	return entries, nil
}

// advanceCursor captures the new offset/handle from the response metadata
// and persists the cursor before the caller sees the entries.
func (c *Client) advanceCursor(ctx context.Context, header http.Header, prev Cursor) error {
	next := prev
	if offset := header.Get(offsetHeader); offset != "" {
		next.Offset = offset
	}
	if handle := header.Get(handleHeader); handle != "" {
		next.Handle = handle
	}
	next.LastSyncAt = time.Now().UTC()

	if err := c.cursors.Save(ctx, next); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}

	c.mu.Lock()
	c.cursor = next
	c.mu.Unlock()
	return nil
}

func (c *Client) resetCursor(ctx context.Context) error {
	reset := Initial()
	reset.LastSyncAt = time.Now().UTC()

	if err := c.cursors.Save(ctx, reset); err != nil {
		return fmt.Errorf("failed to persist cursor reset: %w", err)
	}

	c.mu.Lock()
	c.cursor = reset
	c.mu.Unlock()
	return nil
}

// Close releases the client's network resources.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
	c.probeClient.CloseIdleConnections()
}
