// Package api exposes the admin HTTP interface: task submission, task
// status, health, and metrics.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
	"github.com/gastronom/catalog-crawler/internal/metrics"
	"github.com/gastronom/catalog-crawler/internal/worker"
)

// Server wires HTTP handlers to the queue and task store.
type Server struct {
	router chi.Router
	queue  catalog.TaskQueue
	store  *worker.TaskStore
	idGen  catalog.IDGenerator
	clock  catalog.Clock
	logger *zap.Logger
}

// NewServer constructs a Server with routes installed.
func NewServer(
	queue catalog.TaskQueue,
	store *worker.TaskStore,
	idGen catalog.IDGenerator,
	clock catalog.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		queue:  queue,
		store:  store,
		idGen:  idGen,
		clock:  clock,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.submitTask)
			r.Get("/{task_id}", s.getTask)
		})
	})
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if q, ok := s.queue.(interface{ Len() int }); ok {
		resp["queue_depth"] = q.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitTaskRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Mode == "" {
		req.Mode = "full"
	}

	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate task id", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "id generation failed"})
		return
	}

	task := catalog.ParseTask{
		TaskID:    id,
		Mode:      req.Mode,
		Timestamp: s.clock.Now(),
	}
	s.store.Create(task)
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("enqueue task", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}

	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	rec, ok := s.store.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
