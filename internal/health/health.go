// Package health provides the liveness and readiness endpoints.
//
// /healthz answers 200 as long as the process serves HTTP. /readyz answers
// 200 once every transport has started, and reports the languages whose
// voices are already loaded.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// LoadedFunc reports the languages whose models are loaded.
type LoadedFunc func() []string

// Server is a lightweight HTTP server that exposes /healthz and /readyz.
type Server struct {
	port   int
	loaded LoadedFunc
	ready  atomic.Bool
	server *http.Server
}

// New creates a new health check server. loaded may be nil.
func New(port int, loaded LoadedFunc) *Server {
	return &Server{port: port, loaded: loaded}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

type status struct {
	Status string   `json:"status"`
	Loaded []string `json:"loaded,omitempty"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, status{Status: "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, status{Status: "not_ready"})
			return
		}
		st := status{Status: "ok"}
		if s.loaded != nil {
			st.Loaded = s.loaded()
			sort.Strings(st.Loaded)
		}
		writeStatus(w, http.StatusOK, st)
	})

	return mux
}

func writeStatus(w http.ResponseWriter, code int, st status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
