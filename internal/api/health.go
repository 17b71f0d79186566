package api

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout is the per-dependency timeout for readiness checks.
const readinessTimeout = 2 * time.Second

// HandleHealth is a lightweight liveness probe. Always returns 200.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHealthReady reports 200 when the database is reachable, 503 otherwise.
func (s *Server) HandleHealthReady(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.DB.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
