// Package api provides the HTTP surface for webhookerd: the public ingest
// route, the module listing, health probes, and the request middleware
// stack (request IDs, context-aware logging).
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/webhooker-io/webhooker/internal/actions"
	"github.com/webhooker-io/webhooker/internal/domain"
	"github.com/webhooker-io/webhooker/internal/submission"
)

// defaultMaxBodySize caps ingest request bodies when no limit is configured (1MB).
const defaultMaxBodySize = 1 << 20

// EndpointStore loads endpoints for the ingest path.
type EndpointStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
}

// IngestPipeline processes one submission end to end.
type IngestPipeline interface {
	Process(ctx context.Context, ep *domain.Endpoint, req submission.Request) (*submission.Result, error)
}

// HealthChecker verifies that a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server holds dependencies for all HTTP handlers.
type Server struct {
	Endpoints EndpointStore
	Pipeline  IngestPipeline
	Registry  *actions.Registry
	DB        HealthChecker // nil skips the readiness DB check

	// MaxBodySize caps ingest request bodies in bytes; 0 uses the default.
	MaxBodySize int64
	// CORSOrigins applies to the operational surface (/v1/modules). The
	// ingest route derives its CORS headers per endpoint instead.
	CORSOrigins []string
}

// NewRouter creates a configured chi router with all routes mounted.
func NewRouter(srv *Server) chi.Router {
	r := chi.NewRouter()

	r.Use(securityHeaders)
	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.HandleHealth)
	r.Get("/health/ready", srv.HandleHealthReady)

	// Public ingest. CORS headers are derived from the endpoint's own
	// settings, so the shared cors middleware stays off this subtree.
	r.Route("/v1/e/{endpointID}", func(r chi.Router) {
		r.Post("/", srv.HandleIngest)
		r.Options("/", srv.HandleIngestPreflight)
	})

	// Operational surface for dashboards.
	r.Group(func(r chi.Router) {
		origins := srv.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/v1/modules", srv.HandleModules)
	})

	return r
}

// securityHeaders adds standard HTTP security headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// errorJSON writes the flat {"error": ...} shape used by the ingest API.
func errorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// internalError logs the full error server-side and returns a generic
// message to the client.
func internalError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	LoggerFromContext(ctx).Error(msg, "error", err)
	errorJSON(w, http.StatusInternalServerError, "Internal server error")
}
