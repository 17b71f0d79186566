package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/webhooker-io/webhooker/internal/ssrf"
)

// webhookTimeout bounds one outbound delivery attempt.
const webhookTimeout = 30 * time.Second

// responseBodyLimit is the truncation point for logged response bodies,
// counted in UTF-8 characters.
const responseBodyLimit = 1024

// WebhookModule delivers submissions to customer HTTP endpoints.
type WebhookModule struct {
	policy *ssrf.Policy
	client *http.Client
}

// NewWebhookModule builds the module around the given destination policy.
func NewWebhookModule(policy *ssrf.Policy) *WebhookModule {
	return &WebhookModule{
		policy: policy,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

type webhookConfig struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	BodyTemplate string            `json:"body_template"`
}

func (m *WebhookModule) ID() string   { return "webhook" }
func (m *WebhookModule) Name() string { return "HTTP Webhook" }

func (m *WebhookModule) ConfigSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "description": "Destination URL; supports {{path}} placeholders"},
			"method": {"type": "string", "enum": ["POST", "PUT"], "default": "POST"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"body_template": {"type": "string", "description": "JSON body template; defaults to the full submission"}
		}
	}`)
}

// ValidateConfig requires a non-empty url and a supported method.
func (m *WebhookModule) ValidateConfig(cfg json.RawMessage) error {
	var c webhookConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return fmt.Errorf("invalid webhook config: %w", err)
	}
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("url is required")
	}
	switch c.Method {
	case "", "POST", "PUT":
	default:
		return fmt.Errorf("method must be POST or PUT, got %q", c.Method)
	}
	return nil
}

func (m *WebhookModule) Execute(ctx context.Context, run *Context, cfg json.RawMessage) Result {
	var c webhookConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return Failure("invalid webhook config: %v", err)
	}
	if strings.TrimSpace(c.URL) == "" {
		return Failure("url is required")
	}

	url := Render(c.URL, run)
	if err := m.policy.Check(ctx, url); err != nil {
		return Failure("Webhook URL rejected: %v", err)
	}

	body, err := m.buildBody(c, run)
	if err != nil {
		return Failure("%v", err)
	}

	method := c.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return Failure("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	for name, tmpl := range c.Headers {
		value := Render(tmpl, run)
		if strings.ContainsAny(value, "\r\n") {
			return Failure("header %q contains invalid characters", name)
		}
		req.Header.Set(name, value)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Failure("%v", err)
	}
	defer resp.Body.Close()

	// Read at most enough bytes to keep the truncated log sample; the
	// limit is in characters, so over-read by the max rune width.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit*4))
	sample := truncateChars(string(raw), responseBodyLimit)

	detail := map[string]any{
		"status_code": resp.StatusCode,
		"body":        sample,
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Success(detail)
	}
	return failureWith(detail, "Webhook returned status %d", resp.StatusCode)
}

// buildBody renders the body template, or synthesizes the default payload
// when no template is configured. A rendered template that is not valid
// JSON is sent as a JSON string value.
func (m *WebhookModule) buildBody(c webhookConfig, run *Context) ([]byte, error) {
	if strings.TrimSpace(c.BodyTemplate) != "" {
		rendered := Render(c.BodyTemplate, run)
		if json.Valid([]byte(rendered)) {
			return []byte(rendered), nil
		}
		b, err := json.Marshal(rendered)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return b, nil
	}

	payload := map[string]any{
		"data":         run.Data(),
		"extras":       run.Extras(),
		"metadata":     run.Metadata(),
		"endpoint":     run.Endpoint.Name,
		"project":      run.Project.Name,
		"submitted_at": run.Submission.CreatedAt.UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return b, nil
}

// truncateChars cuts s to at most n UTF-8 characters.
func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
