// Package actions implements the action-module system: the registry of
// executable module types, the template expander used to render their
// configuration, and the built-in webhook and email modules.
package actions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/webhooker-io/webhooker/internal/domain"
)

// Context is the immutable value a module executes against: one submission
// plus its endpoint, project, and tenant. Built once per queue item and
// copied by value into template rendering; no back-references.
type Context struct {
	Submission domain.Submission
	Endpoint   domain.Endpoint
	Project    domain.Project
	Tenant     domain.Tenant

	data     map[string]any
	extras   map[string]any
	metadata map[string]any
}

// NewContext builds a Context, decoding the submission's JSON columns once.
// Columns that are not JSON objects (a non-object payload, or corrupt rows)
// decode to empty maps; template paths into them resolve to nothing.
func NewContext(sub domain.Submission, ep domain.Endpoint, proj domain.Project, tenant domain.Tenant) *Context {
	return &Context{
		Submission: sub,
		Endpoint:   ep,
		Project:    proj,
		Tenant:     tenant,
		data:       decodeObject(sub.Data),
		extras:     decodeObject(sub.Extras),
		metadata:   decodeObject(sub.Metadata),
	}
}

func decodeObject(raw json.RawMessage) map[string]any {
	m := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}

// Data returns the submission's matched-field values.
func (c *Context) Data() map[string]any { return c.data }

// Extras returns the submission's unmatched-field values.
func (c *Context) Extras() map[string]any { return c.extras }

// Metadata returns the submission's request metadata.
func (c *Context) Metadata() map[string]any { return c.metadata }

// Resolve looks up a dotted template path. The resolvable paths are:
// data.<k>, extras.<k>, metadata.<k>, endpoint.name|slug|id,
// project.name|slug, tenant.name, submission.id, submission.created_at.
// The second return is false for unknown paths.
func (c *Context) Resolve(path string) (any, bool) {
	head, rest, _ := strings.Cut(path, ".")

	switch head {
	case "data":
		return lookup(c.data, rest)
	case "extras":
		return lookup(c.extras, rest)
	case "metadata":
		return lookup(c.metadata, rest)
	case "endpoint":
		switch rest {
		case "name":
			return c.Endpoint.Name, true
		case "slug":
			return c.Endpoint.Slug, true
		case "id":
			return c.Endpoint.ID.String(), true
		}
	case "project":
		switch rest {
		case "name":
			return c.Project.Name, true
		case "slug":
			return c.Project.Slug, true
		}
	case "tenant":
		if rest == "name" {
			return c.Tenant.Name, true
		}
	case "submission":
		switch rest {
		case "id":
			return c.Submission.ID.String(), true
		case "created_at":
			return c.Submission.CreatedAt.UTC().Format(time.RFC3339), true
		}
	}
	return nil, false
}

// lookup finds key in m. The whole remainder is tried as a literal key
// first (payload keys may themselves contain dots), then as a nested path
// through JSON objects.
func lookup(m map[string]any, key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}

	parts := strings.Split(key, ".")
	var cur any = m
	for _, part := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
