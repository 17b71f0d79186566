package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/webhooker-io/webhooker/internal/domain"
	"github.com/webhooker-io/webhooker/internal/submission"
)

// HandleIngest is POST /v1/e/{endpointID} — the public submission route.
// Unknown and malformed endpoint IDs answer identically so probes cannot
// distinguish them.
func (s *Server) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ep := s.lookupEndpoint(w, r)
	if ep == nil {
		return
	}

	settings := ep.ParseSettings()
	setCORSHeaders(w, settings)

	maxBody := s.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorJSON(w, http.StatusBadRequest, "Request body too large")
			return
		}
		errorJSON(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := s.Pipeline.Process(ctx, ep, submission.Request{
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
		RemoteAddr:  r.RemoteAddr,
		Header:      r.Header,
	})
	if err != nil {
		var rl *submission.RateLimitedError
		if errors.As(err, &rl) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
			errorJSON(w, http.StatusTooManyRequests, rl.Error())
			return
		}
		var parseErr *submission.ParseError
		if errors.As(err, &parseErr) {
			errorJSON(w, http.StatusBadRequest, parseErr.Reason)
			return
		}
		internalError(ctx, w, "ingest pipeline failed", err)
		return
	}

	switch result.Outcome {
	case submission.OutcomeRedirect:
		http.Redirect(w, r, result.RedirectURL, http.StatusSeeOther)
	case submission.OutcomeSpam:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		writeJSON(w, http.StatusCreated, map[string]string{
			"status":        "created",
			"submission_id": result.SubmissionID.String(),
		})
	}
}

// HandleIngestPreflight is OPTIONS /v1/e/{endpointID} — the CORS preflight
// for browser form posts.
func (s *Server) HandleIngestPreflight(w http.ResponseWriter, r *http.Request) {
	ep := s.lookupEndpoint(w, r)
	if ep == nil {
		return
	}

	setCORSHeaders(w, ep.ParseSettings())
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// lookupEndpoint resolves the endpointID path parameter, answering 404 for
// malformed and unknown IDs alike.
func (s *Server) lookupEndpoint(w http.ResponseWriter, r *http.Request) *domain.Endpoint {
	id, err := uuid.Parse(chi.URLParam(r, "endpointID"))
	if err != nil {
		errorJSON(w, http.StatusNotFound, "Endpoint not found")
		return nil
	}

	ep, err := s.Endpoints.GetByID(r.Context(), id)
	if err != nil {
		internalError(r.Context(), w, "load endpoint failed", err)
		return nil
	}
	if ep == nil {
		errorJSON(w, http.StatusNotFound, "Endpoint not found")
		return nil
	}
	return ep
}

// setCORSHeaders writes the per-endpoint CORS headers from its settings.
func setCORSHeaders(w http.ResponseWriter, settings domain.EndpointSettings) {
	origin := "*"
	if len(settings.CORSOrigins) > 0 {
		origin = strings.Join(settings.CORSOrigins, ",")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
