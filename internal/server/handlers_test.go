package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dwestbrook/tasksync/internal/coordinator"
	"github.com/dwestbrook/tasksync/internal/monitor"
	"github.com/dwestbrook/tasksync/internal/queue"
	"github.com/dwestbrook/tasksync/internal/store"
	"github.com/dwestbrook/tasksync/internal/types"
	"github.com/dwestbrook/tasksync/internal/writer"
)

type probeFunc func(ctx context.Context) bool

func (f probeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// nullRemote accepts every write.
type nullRemote struct{}

func (nullRemote) Create(ctx context.Context, fields map[string]any) error { return nil }

func (nullRemote) Update(ctx context.Context, id string, f map[string]any) error { return nil }

func (nullRemote) Delete(ctx context.Context, id string) error { return nil }

// nullFeed always returns an empty batch.
type nullFeed struct{}

func (nullFeed) Pull(ctx context.Context) ([]json.RawMessage, error) { return nil, nil }

type engine struct {
	coord *coordinator.Coordinator
	queue *queue.Store
	api   *httptest.Server
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	dir := t.TempDir()
	logger := log.New(os.Stderr, "[test] ", 0)

	st, err := store.Open(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	q, err := queue.Open(filepath.Join(dir, "pending.json"), logger)
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}

	up := probeFunc(func(context.Context) bool { return true })
	mon := monitor.New(up, up, &monitor.Config{
		PollInterval:     time.Hour,
		FailureThreshold: 3,
		Logger:           logger,
	})
	mon.ForceCheck(context.Background())

	coord := coordinator.New(st, q, nullRemote{}, nullFeed{}, mon, &coordinator.Config{
		SyncInterval: time.Hour,
		Logger:       logger,
	})
	writes := writer.New(st, q, nullRemote{}, mon, logger)

	srv := New(coord, writes, q, mon, &Config{Logger: logger})
	api := httptest.NewServer(srv.routes())
	t.Cleanup(api.Close)

	return &engine{coord: coord, queue: q, api: api}
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	e := newEngine(t)

	var body map[string]any
	if code := getJSON(t, e.api.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	e := newEngine(t)
	_ = e.queue.Enqueue(queue.OpDelete, "t9", nil)

	var payload StatusPayload
	if code := getJSON(t, e.api.URL+"/status", &payload); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if payload.Status != types.StatusOnline.String() {
		t.Errorf("expected online status, got %q", payload.Status)
	}
	if payload.Pending != 1 {
		t.Errorf("expected 1 pending operation, got %d", payload.Pending)
	}
	if !payload.Upstreams[types.UpstreamWrite.String()].Reachable {
		t.Errorf("write upstream should be reachable: %+v", payload.Upstreams)
	}
}

func TestCreateTaskEndpoint(t *testing.T) {
	e := newEngine(t)

	body := bytes.NewBufferString(`{"title":"buy milk"}`)
	resp, err := http.Post(e.api.URL+"/tasks", "application/json", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created["id"] == "" || created["id"] == nil {
		t.Error("server must assign an id when the client omits one")
	}
	if created["created_at"] == nil {
		t.Error("server must stamp created_at")
	}
}

func TestCreateTaskRejectsInvalidBody(t *testing.T) {
	e := newEngine(t)

	resp, err := http.Post(e.api.URL+"/tasks", "application/json", bytes.NewBufferString(`{"title":""}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty title, got %d", resp.StatusCode)
	}
}

func TestPendingEndpoints(t *testing.T) {
	e := newEngine(t)

	var ops []queue.Operation
	if code := getJSON(t, e.api.URL+"/pending", &ops); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(ops) != 0 {
		t.Errorf("expected empty pending list, got %+v", ops)
	}

	_ = e.queue.Enqueue(queue.OpCreate, "t1", map[string]any{"id": "t1", "title": "x"})

	resp, err := http.Post(e.api.URL+"/pending", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result types.ReplayResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode replay result: %v", err)
	}
	if result.Succeeded != 1 {
		t.Errorf("unexpected replay result: %+v", result)
	}
	if !e.queue.IsEmpty() {
		t.Errorf("queue should be flushed, %d remain", e.queue.Count())
	}
}

func TestForceSyncEndpoint(t *testing.T) {
	e := newEngine(t)

	resp, err := http.Post(e.api.URL+"/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var report types.ForceSyncReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.Status != types.StatusOnline {
		t.Errorf("expected online after force sync, got %s", report.Status)
	}
}
