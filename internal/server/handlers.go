package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dwestbrook/tasksync/internal/coordinator"
	"github.com/dwestbrook/tasksync/internal/queue"
	"github.com/dwestbrook/tasksync/internal/task"
	"github.com/dwestbrook/tasksync/internal/types"

	"github.com/google/uuid"
)

// StatusPayload is the JSON body returned by GET /status.
type StatusPayload struct {
	Status    string                          `json:"status"`
	Pending   int                             `json:"pending_operations"`
	Upstreams map[string]types.UpstreamHealth `json:"upstreams"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /sync", s.handleForceSync)
	mux.HandleFunc("GET /pending", s.handleListPending)
	mux.HandleFunc("POST /pending", s.handleProcessPending)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("PATCH /tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusPayload{
		Status:  s.coord.Status().String(),
		Pending: s.queue.Count(),
		Upstreams: map[string]types.UpstreamHealth{
			types.UpstreamWrite.String(): s.mon.Health(types.UpstreamWrite),
			types.UpstreamFeed.String():  s.mon.Health(types.UpstreamFeed),
		},
	})
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.coord.ForceSync(r.Context())
	if err != nil {
		if errors.Is(err, coordinator.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	ops := s.queue.ListAll()
	if ops == nil {
		ops = []queue.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleProcessPending(w http.ResponseWriter, r *http.Request) {
	result, err := s.coord.ProcessPendingOperations(r.Context())
	if err != nil {
		if errors.Is(err, coordinator.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task body: "+err.Error())
		return
	}

	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.writes.Create(r.Context(), &t); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update body: "+err.Error())
		return
	}

	if err := s.writes.Update(r.Context(), id, fields); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.writes.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
