// Package statusapi implements the read-only HTTP status surface, built
// on gorilla/mux: health, a list of known workflow runs, and one run's
// current Snapshot. Run triggering belongs to the caller of
// workflow.Workflow, not to this surface.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server serves the status API over HTTP.
type Server struct {
	logger *zap.Logger
	store  Store
	port   int
	router *mux.Router
	http   *http.Server
}

// NewServer builds a Server backed by store, listening on port.
func NewServer(logger *zap.Logger, store Store, port int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger, store: store, port: port, router: mux.NewRouter()}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{id}", s.handleGet).Methods(http.MethodGet)
	return s
}

// Handler exposes the underlying router so callers (and tests) can drive
// requests without a bound listener.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until the server is shut down or fails.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.logger.Info("status API server starting", zap.Int("port", s.port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().Unix()})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.store.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := s.store.Snapshot(id)
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// response already started; nothing more to do but note it
		// happened for whoever reads server logs.
		_ = err
	}
}
