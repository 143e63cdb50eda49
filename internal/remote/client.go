// Package remote provides the write client for the remote record store.
//
// The client performs create/update/delete against the record API and
// distinguishes two failure classes: transport-level failures
// (types.ConnectivityError), which may downgrade the aggregate connection
// status, and application-level rejections (types.RemoteRejectedError),
// which never do.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dwestbrook/tasksync/internal/types"
)

const (
	defaultProbeTimeout   = 3 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the record API root, e.g. "https://api.example.com".
	BaseURL string

	// ProbeTimeout bounds the reachability check (default: 3s).
	ProbeTimeout time.Duration

	// RequestTimeout bounds data writes (default: 10s).
	RequestTimeout time.Duration

	// Logger for client activity.
	Logger *log.Logger
}

// Client writes task records to the remote record store.
type Client struct {
	baseURL     string
	client      *http.Client
	probeClient *http.Client
	logger      *log.Logger
}

// New creates a remote write client. If config.Logger is nil, a default
// logger writing to stderr is used.
func New(config Config) *Client {
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = defaultProbeTimeout
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		client:      &http.Client{Timeout: config.RequestTimeout},
		probeClient: &http.Client{Timeout: config.ProbeTimeout},
		logger:      config.Logger,
	}
}

// Probe performs a lightweight, non-mutating reachability check. It never
// returns an error; any failure collapses to false.
func (c *Client) Probe(ctx context.Context) bool {
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

// Create inserts a new record with the given fields.
func (c *Client) Create(ctx context.Context, fields map[string]any) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/tasks", fields)
}

// Update applies a partial update to the record identified by id. Only
// the fields present in the payload are sent; unspecified fields are
// never overwritten.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, c.baseURL+"/tasks/"+id, fields)
}

// Delete removes the record identified by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/tasks/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, url string, payload map[string]any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &types.ConnectivityError{Upstream: types.UpstreamWrite, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &types.RemoteRejectedError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
