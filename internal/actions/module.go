package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/webhooker-io/webhooker/internal/domain"
)

// Result is a module execution outcome. Status is success or failed;
// Response carries module-specific detail (status codes, truncated bodies,
// an "error" key on failure) and is persisted on the action log.
type Result struct {
	Status   domain.LogStatus
	Response map[string]any
}

// Success builds a success result with the given response detail.
func Success(response map[string]any) Result {
	return Result{Status: domain.LogSuccess, Response: response}
}

// Failure builds a failed result whose response carries the error text.
func Failure(format string, args ...any) Result {
	return Result{
		Status:   domain.LogFailed,
		Response: map[string]any{"error": fmt.Sprintf(format, args...)},
	}
}

// failureWith is Failure with extra response detail preserved.
func failureWith(response map[string]any, format string, args ...any) Result {
	if response == nil {
		response = map[string]any{}
	}
	response["error"] = fmt.Sprintf(format, args...)
	return Result{Status: domain.LogFailed, Response: response}
}

// ErrorText extracts the human-readable error from a failed result's
// response, falling back to "Unknown error".
func (r Result) ErrorText() string {
	if s, ok := r.Response["error"].(string); ok && s != "" {
		return s
	}
	return "Unknown error"
}

// ResponseJSON renders the response detail for storage. Returns nil when
// there is no detail.
func (r Result) ResponseJSON() json.RawMessage {
	if len(r.Response) == 0 {
		return nil
	}
	b, err := json.Marshal(r.Response)
	if err != nil {
		return nil
	}
	return b
}

// Module is one executable action type. Implementations are stateless with
// respect to executions; all per-run input arrives through the Context and
// the action's config JSON.
type Module interface {
	// ID is the action_type string stored on Action rows.
	ID() string
	// Name is the human-readable module name.
	Name() string
	// ConfigSchema describes the config shape as JSON schema (informational).
	ConfigSchema() json.RawMessage
	// ValidateConfig checks a config blob at configuration time.
	ValidateConfig(cfg json.RawMessage) error
	// Execute runs the module. All expected failures (bad config, policy
	// rejection, transport errors, non-2xx responses) come back as a failed
	// Result, never as a panic.
	Execute(ctx context.Context, run *Context, cfg json.RawMessage) Result
}

// Registry is the read-only action_type → Module mapping. Populated at
// startup; concurrent reads need no synchronization.
type Registry struct {
	modules map[string]Module
}

// NewRegistry builds a registry from the given modules.
// Duplicate IDs panic: that is a wiring bug, not a runtime condition.
func NewRegistry(modules ...Module) *Registry {
	r := &Registry{modules: make(map[string]Module, len(modules))}
	for _, m := range modules {
		if _, dup := r.modules[m.ID()]; dup {
			panic(fmt.Sprintf("actions: duplicate module id %q", m.ID()))
		}
		r.modules[m.ID()] = m
	}
	return r
}

// Get returns the module registered under id.
func (r *Registry) Get(id string) (Module, bool) {
	m, ok := r.modules[id]
	return m, ok
}

// Info is the registry listing entry served to dashboards.
type Info struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ConfigSchema json.RawMessage `json:"config_schema"`
}

// List returns all registered modules sorted by id.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, Info{ID: m.ID(), Name: m.Name(), ConfigSchema: m.ConfigSchema()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
