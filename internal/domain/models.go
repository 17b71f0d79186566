// Package domain defines the core business types shared across webhookerd.
// These types represent the service's data model — not HTTP specifics.
//
// Domain types carry json tags because they are directly serialized in API
// responses. Encrypted-at-rest fields are tagged `json:"-"` so the stored
// bytes can never leak through a serialized response; decrypted plaintext
// lives in a separate type (actions.TenantSMTP) that is never persisted.
package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyExists indicates a create operation conflicted with an existing resource.
var ErrAlreadyExists = errors.New("resource already exists")

// ErrNotFound indicates a referenced resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Tenant is the top-level isolation boundary.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project groups endpoints under a tenant.
type Project struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FieldDef describes one expected form field on an endpoint.
type FieldDef struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"` // text, email, url, number, integer
	Required bool   `json:"required,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Endpoint is a public URL to which external clients submit payloads.
// Fields is nil when the endpoint accepts free-form payloads. Settings is
// raw JSON parsed on demand via ParseSettings.
type Endpoint struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Fields    []FieldDef      `json:"fields,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EndpointSettings holds the recognized endpoint settings keys with defaults
// applied. Unknown keys in the stored JSON are ignored.
type EndpointSettings struct {
	RateLimit           int      `json:"rate_limit"`
	RateLimitWindowSecs int      `json:"rate_limit_window_secs"`
	HoneypotField       string   `json:"honeypot_field"`
	RedirectURL         string   `json:"redirect_url"`
	CORSOrigins         []string `json:"cors_origins"`
}

// Submission rate limiting defaults applied when settings omit them.
const (
	DefaultRateLimit           = 10
	DefaultRateLimitWindowSecs = 60
)

// ParseSettings decodes the endpoint's settings JSON, applying defaults for
// missing keys. A nil or malformed settings blob yields pure defaults — a
// broken dashboard write must never take the ingest path down.
func (e *Endpoint) ParseSettings() EndpointSettings {
	s := EndpointSettings{
		RateLimit:           DefaultRateLimit,
		RateLimitWindowSecs: DefaultRateLimitWindowSecs,
	}
	if len(e.Settings) == 0 {
		return s
	}
	_ = json.Unmarshal(e.Settings, &s)
	if s.RateLimit <= 0 {
		s.RateLimit = DefaultRateLimit
	}
	if s.RateLimitWindowSecs <= 0 {
		s.RateLimitWindowSecs = DefaultRateLimitWindowSecs
	}
	return s
}

// FieldNames returns the defined field names in definition order.
// Returns nil when the endpoint has no field schema.
func (e *Endpoint) FieldNames() []string {
	if e.Fields == nil {
		return nil
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Submission is a single accepted payload. Immutable after creation.
// Data holds values whose keys match a defined field name; Extras holds the
// unmatched keys; Raw preserves the payload as received; Metadata holds the
// derived request context (ip, user_agent, referer).
type Submission struct {
	ID         uuid.UUID       `json:"id"`
	EndpointID uuid.UUID       `json:"endpoint_id"`
	Data       json.RawMessage `json:"data"`
	Extras     json.RawMessage `json:"extras"`
	Raw        json.RawMessage `json:"raw"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Action defines one step in an endpoint's outbound side-effect chain.
// Position gives total ordering within an endpoint; lower first, ties broken
// by id.
type Action struct {
	ID         uuid.UUID       `json:"id"`
	EndpointID uuid.UUID       `json:"endpoint_id"`
	ActionType string          `json:"action_type"`
	Config     json.RawMessage `json:"config"`
	Position   int             `json:"position"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  time.Time       `json:"created_at"`
}

// QueueStatus represents the state of an action queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueFailed     QueueStatus = "failed"
	QueueCompleted  QueueStatus = "completed"
)

// ActionQueueItem is a persistent work record asking the worker pool to
// execute one Action for one Submission. Mutated only through the atomic
// queue store transitions.
type ActionQueueItem struct {
	ID           uuid.UUID   `json:"id"`
	SubmissionID uuid.UUID   `json:"submission_id"`
	ActionID     uuid.UUID   `json:"action_id"`
	Status       QueueStatus `json:"status"`
	Attempts     int         `json:"attempts"`
	MaxAttempts  int         `json:"max_attempts"`
	LastError    *string     `json:"last_error,omitempty"`
	NextRetryAt  time.Time   `json:"next_retry_at"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// Terminal reports whether the item can never be claimed again:
// completed, or failed with the retry budget exhausted.
func (i *ActionQueueItem) Terminal() bool {
	if i.Status == QueueCompleted {
		return true
	}
	return i.Status == QueueFailed && i.Attempts >= i.MaxAttempts
}

// LogStatus represents the outcome recorded in an action log row.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogSkipped LogStatus = "skipped"
)

// ActionLog is the append-only outcome record for one execution attempt.
type ActionLog struct {
	ID           uuid.UUID       `json:"id"`
	ActionID     uuid.UUID       `json:"action_id"`
	SubmissionID uuid.UUID       `json:"submission_id"`
	Status       LogStatus       `json:"status"`
	Response     json.RawMessage `json:"response,omitempty"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// TLSMode selects the SMTP transport security for a tenant.
type TLSMode string

const (
	TLSModeTLS      TLSMode = "tls"      // implicit TLS on the configured port
	TLSModeStartTLS TLSMode = "starttls" // STARTTLS upgrade (default)
	TLSModeNone     TLSMode = "none"     // cleartext
)

// ValidTLSMode returns true if s is a known TLS mode.
func ValidTLSMode(s string) bool {
	switch TLSMode(s) {
	case TLSModeTLS, TLSModeStartTLS, TLSModeNone:
		return true
	}
	return false
}

// TenantSMTPConfig holds a tenant's outbound mail settings. Credentials are
// stored encrypted (nonce-prefixed AES-256-GCM) and never serialized out.
type TenantSMTPConfig struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	UsernameEnc []byte    `json:"-"`
	PasswordEnc []byte    `json:"-"`
	FromAddress string    `json:"from_address"`
	FromName    *string   `json:"from_name,omitempty"`
	TLSMode     TLSMode   `json:"tls_mode"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
