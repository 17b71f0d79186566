package actions_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/webhooker-io/webhooker/internal/actions"
	"github.com/webhooker-io/webhooker/internal/domain"
)

func testContext(t *testing.T) *actions.Context {
	t.Helper()
	sub := domain.Submission{
		ID:         uuid.MustParse("a81bc81b-dead-4e5d-abff-90865d1e13b1"),
		EndpointID: uuid.New(),
		Data:       json.RawMessage(`{"name":"Alice","age":30,"tags":["a","b"],"nested":{"city":"Oslo"},"active":true,"note":null}`),
		Extras:     json.RawMessage(`{"utm_source":"newsletter"}`),
		Metadata:   json.RawMessage(`{"ip":"203.0.113.9","user_agent":"curl/8.0"}`),
		CreatedAt:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	ep := domain.Endpoint{ID: uuid.MustParse("7b4f2a10-0000-4000-8000-000000000001"), Name: "Contact Form", Slug: "contact"}
	proj := domain.Project{Name: "Website", Slug: "website"}
	tenant := domain.Tenant{Name: "Acme"}
	return actions.NewContext(sub, ep, proj, tenant)
}

func TestRender_Paths(t *testing.T) {
	run := testContext(t)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"data string", "Hello {{data.name}}!", "Hello Alice!"},
		{"data number", "age={{data.age}}", "age=30"},
		{"data bool", "{{data.active}}", "true"},
		{"data null", "[{{data.note}}]", "[]"},
		{"data array", "{{data.tags}}", `["a","b"]`},
		{"data object", "{{data.nested}}", `{"city":"Oslo"}`},
		{"nested traversal", "{{data.nested.city}}", "Oslo"},
		{"extras", "{{extras.utm_source}}", "newsletter"},
		{"metadata", "{{metadata.ip}}", "203.0.113.9"},
		{"endpoint name", "{{endpoint.name}}", "Contact Form"},
		{"endpoint slug", "{{endpoint.slug}}", "contact"},
		{"endpoint id", "{{endpoint.id}}", "7b4f2a10-0000-4000-8000-000000000001"},
		{"project name", "{{project.name}}", "Website"},
		{"project slug", "{{project.slug}}", "website"},
		{"tenant name", "{{tenant.name}}", "Acme"},
		{"submission id", "{{submission.id}}", "a81bc81b-dead-4e5d-abff-90865d1e13b1"},
		{"submission created_at", "{{submission.created_at}}", "2026-03-14T09:26:53Z"},
		{"unknown path", "[{{unknown.path}}]", "[]"},
		{"unknown data key", "[{{data.missing}}]", "[]"},
		{"no placeholders", "plain text", "plain text"},
		{"multiple", "{{data.name}} via {{extras.utm_source}}", "Alice via newsletter"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, actions.Render(tc.in, run))
		})
	}
}

func TestRender_MalformedPlaceholdersUntouched(t *testing.T) {
	run := testContext(t)

	cases := []string{
		"{{ data.name }}",
		"{{data..name}}",
		"{{data-name}}",
		"{{}}",
		"{single.brace}",
		"{{unclosed",
	}
	for _, in := range cases {
		assert.Equal(t, in, actions.Render(in, run), "input %q", in)
	}
}

func TestRender_NonObjectPayload(t *testing.T) {
	sub := domain.Submission{
		Data:      json.RawMessage(`["not","an","object"]`),
		CreatedAt: time.Now(),
	}
	run := actions.NewContext(sub, domain.Endpoint{}, domain.Project{}, domain.Tenant{})

	assert.Equal(t, "", actions.Render("{{data.anything}}", run))
}
