package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/google/uuid"

	"github.com/webhooker-io/webhooker/internal/domain"
	"github.com/webhooker-io/webhooker/internal/ratelimit"
)

// Limiter is the submission rate limiter dependency.
type Limiter interface {
	Check(endpointID uuid.UUID, ip string, limit, windowSecs int) ratelimit.Result
}

// SubmissionStore persists accepted submissions.
type SubmissionStore interface {
	Create(ctx context.Context, endpointID uuid.UUID, data, extras, raw, metadata json.RawMessage) (*domain.Submission, error)
}

// ActionSource lists an endpoint's enabled actions in position order.
type ActionSource interface {
	ListEnabled(ctx context.Context, endpointID uuid.UUID) ([]domain.Action, error)
}

// QueueStore enqueues action work items.
type QueueStore interface {
	Enqueue(ctx context.Context, submissionID, actionID uuid.UUID) (*domain.ActionQueueItem, error)
}

// RateLimitedError is returned when the submission limiter denies a request.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Rate limited. Retry after %ds", e.RetryAfter)
}

// ParseError is returned when the request body cannot be decoded.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// Outcome classifies a successful pipeline run.
type Outcome int

const (
	// OutcomeCreated: submission persisted and actions enqueued.
	OutcomeCreated Outcome = iota
	// OutcomeSpam: honeypot tripped; accepted silently, nothing persisted.
	OutcomeSpam
	// OutcomeRedirect: submission persisted; respond with 303 to RedirectURL.
	OutcomeRedirect
)

// Result is the pipeline outcome handed to the HTTP layer.
type Result struct {
	Outcome      Outcome
	SubmissionID uuid.UUID
	RedirectURL  string
	Warnings     []string
	Enqueued     int
}

// Request is the pipeline's view of the incoming HTTP request.
type Request struct {
	ContentType string
	Body        []byte
	RemoteAddr  string
	Header      http.Header
}

// Pipeline runs the ingestion steps for one endpoint submission.
type Pipeline struct {
	limiter        Limiter
	submissions    SubmissionStore
	actions        ActionSource
	queue          QueueStore
	trustedProxies []netip.Prefix
}

// New wires a pipeline.
func New(limiter Limiter, submissions SubmissionStore, actions ActionSource, queue QueueStore, trustedProxies []netip.Prefix) *Pipeline {
	return &Pipeline{
		limiter:        limiter,
		submissions:    submissions,
		actions:        actions,
		queue:          queue,
		trustedProxies: trustedProxies,
	}
}

// Process runs the pipeline: rate check, parse, honeypot, field sort,
// validation warnings, metadata capture, persist, enqueue. Expected client
// faults come back as *RateLimitedError or *ParseError; anything else is an
// internal fault.
func (p *Pipeline) Process(ctx context.Context, ep *domain.Endpoint, req Request) (*Result, error) {
	settings := ep.ParseSettings()
	ip := ClientIP(req.RemoteAddr, req.Header.Get("X-Forwarded-For"), p.trustedProxies)

	if rl := p.limiter.Check(ep.ID, ip, settings.RateLimit, settings.RateLimitWindowSecs); !rl.Allowed {
		return nil, &RateLimitedError{RetryAfter: rl.RetryAfter}
	}

	payload, err := ParseBody(req.ContentType, req.Body)
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	isForm := IsFormContentType(req.ContentType)

	if IsSpam(payload, settings.HoneypotField) {
		slog.InfoContext(ctx, "honeypot tripped, accepting silently",
			"endpoint_id", ep.ID, "field", settings.HoneypotField)
		res := &Result{Outcome: OutcomeSpam}
		if settings.RedirectURL != "" && isForm {
			res.Outcome = OutcomeRedirect
			res.RedirectURL = settings.RedirectURL
		}
		return res, nil
	}

	data, extras := SortFields(payload, ep.Fields)
	warnings := ValidateFields(data, ep.Fields)
	for _, w := range warnings {
		slog.DebugContext(ctx, "field validation warning", "endpoint_id", ep.ID, "warning", w)
	}

	meta := Metadata{
		IP:        ip,
		UserAgent: req.Header.Get("User-Agent"),
		Referer:   req.Header.Get("Referer"),
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	extrasJSON, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("encode extras: %w", err)
	}
	rawJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode raw payload: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	sub, err := p.submissions.Create(ctx, ep.ID, dataJSON, extrasJSON, rawJSON, metaJSON)
	if err != nil {
		return nil, fmt.Errorf("persist submission: %w", err)
	}

	enabled, err := p.actions.ListEnabled(ctx, ep.ID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	for _, action := range enabled {
		if _, err := p.queue.Enqueue(ctx, sub.ID, action.ID); err != nil {
			return nil, fmt.Errorf("enqueue action %s: %w", action.ID, err)
		}
	}

	res := &Result{
		Outcome:      OutcomeCreated,
		SubmissionID: sub.ID,
		Warnings:     warnings,
		Enqueued:     len(enabled),
	}
	if settings.RedirectURL != "" && isForm {
		res.Outcome = OutcomeRedirect
		res.RedirectURL = settings.RedirectURL
	}
	return res, nil
}
