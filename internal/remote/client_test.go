package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dwestbrook/tasksync/internal/types"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func recordingServer(t *testing.T, status int) (*httptest.Server, *recordedRequest) {
	t.Helper()

	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestCreate(t *testing.T) {
	srv, rec := recordingServer(t, http.StatusCreated)
	c := New(Config{BaseURL: srv.URL})

	err := c.Create(context.Background(), map[string]any{"id": "t1", "title": "buy milk"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.method != http.MethodPost || rec.path != "/tasks" {
		t.Errorf("unexpected request: %s %s", rec.method, rec.path)
	}
	if rec.body["title"] != "buy milk" {
		t.Errorf("payload not sent: %+v", rec.body)
	}
}

func TestUpdateSendsOnlyGivenFields(t *testing.T) {
	srv, rec := recordingServer(t, http.StatusOK)
	c := New(Config{BaseURL: srv.URL})

	err := c.Update(context.Background(), "t1", map[string]any{"completed": true})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.method != http.MethodPatch || rec.path != "/tasks/t1" {
		t.Errorf("unexpected request: %s %s", rec.method, rec.path)
	}
	if len(rec.body) != 1 || rec.body["completed"] != true {
		t.Errorf("partial update must send exactly the given fields, got %+v", rec.body)
	}
}

func TestDelete(t *testing.T) {
	srv, rec := recordingServer(t, http.StatusNoContent)
	c := New(Config{BaseURL: srv.URL})

	if err := c.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if rec.method != http.MethodDelete || rec.path != "/tasks/t1" {
		t.Errorf("unexpected request: %s %s", rec.method, rec.path)
	}
}

func TestRejectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "title is required", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})

	err := c.Create(context.Background(), map[string]any{"id": "t1"})
	var rejErr *types.RemoteRejectedError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected RemoteRejectedError, got %v", err)
	}
	if rejErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unexpected status: %d", rejErr.StatusCode)
	}
	if rejErr.Body != "title is required" {
		t.Errorf("unexpected body: %q", rejErr.Body)
	}
}

func TestConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused
	c := New(Config{BaseURL: srv.URL})

	err := c.Update(context.Background(), "t1", map[string]any{"title": "x"})
	var connErr *types.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if connErr.Upstream != types.UpstreamWrite {
		t.Errorf("expected write upstream in error, got %v", connErr.Upstream)
	}
}

func TestProbe(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("probe hit %s, want /health", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})

	if !c.Probe(context.Background()) {
		t.Error("expected 200 health to be reachable")
	}

	// 4xx means the server is up, just unhappy with us.
	status = http.StatusNotFound
	if !c.Probe(context.Background()) {
		t.Error("expected 404 health to still count as reachable")
	}

	status = http.StatusInternalServerError
	if c.Probe(context.Background()) {
		t.Error("expected 500 health to be unreachable")
	}
}
