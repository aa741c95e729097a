// Package server exposes the agents over HTTP.
//
//	GET  /healthz
//	POST /v1/agent/plan-execute
//	GET  /v1/agent/runs/{run_id}
//	POST /v1/research/review
//	POST /v1/web/execute
//	POST /v1/file/analyze
//	POST /v1/agent/base-qa
//
// Malformed or invalid requests get 422, failures 500 and throttled clients
// 429, each with a {"detail": "..."} body.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/smallnest/agent101/log"
)

const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to the agents.
type Server struct {
	deps    Deps
	limiter *RateLimiter
	mux     *http.ServeMux
}

// New creates a server. Missing deps are filled with defaults.
func New(deps Deps) *Server {
	s := &Server{
		deps:    deps.withDefaults(),
		limiter: NewRateLimiter(deps.Settings.RateLimitRPM, burstFor(deps.Settings.RateLimitRPM)),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /v1/agent/plan-execute", s.limited(s.handlePlanExecute))
	s.mux.Handle("GET /v1/agent/runs/{run_id}", s.limited(s.handleRun))
	s.mux.Handle("POST /v1/research/review", s.limited(s.handleResearchReview))
	s.mux.Handle("POST /v1/web/execute", s.limited(s.handleWebExecute))
	s.mux.Handle("POST /v1/file/analyze", s.limited(s.handleFileAnalyze))
	s.mux.Handle("POST /v1/agent/base-qa", s.limited(s.handleBaseQA))
	return s
}

func burstFor(rpm int) int {
	if b := rpm / 10; b > 0 {
		return b
	}
	return 1
}

func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return s.limiter.Middleware(h)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("agent101 API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sendJSONResponse sends a 200 JSON response.
func sendJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("encode response: %v", err)
	}
}

// sendJSONError sends {"detail": message} with status.
func sendJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
