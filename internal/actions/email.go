package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/webhooker-io/webhooker/internal/domain"
)

// SMTPConfigSource loads a tenant's stored SMTP configuration.
// Returns (nil, nil) when the tenant has none.
type SMTPConfigSource interface {
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.TenantSMTPConfig, error)
}

// Decrypter opens the encrypted credential blobs.
type Decrypter interface {
	DecryptString(data []byte) (string, error)
}

// TenantSMTP is a tenant's SMTP configuration with credentials decrypted.
// It exists only in memory during one execution and is never persisted or
// serialized.
type TenantSMTP struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	TLSMode     domain.TLSMode
}

// Message is one outbound email.
type Message struct {
	From    mail.Address
	To      mail.Address
	Subject string
	Body    string
	HTML    bool
}

// Sender delivers a message through a tenant's SMTP server.
type Sender interface {
	Send(ctx context.Context, server TenantSMTP, msg Message) error
}

// EmailModule sends templated email through the owning tenant's SMTP server.
type EmailModule struct {
	configs SMTPConfigSource
	crypter Decrypter
	sender  Sender
}

// NewEmailModule wires the module's collaborators.
func NewEmailModule(configs SMTPConfigSource, crypter Decrypter, sender Sender) *EmailModule {
	return &EmailModule{configs: configs, crypter: crypter, sender: sender}
}

type emailConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

func (m *EmailModule) ID() string   { return "email" }
func (m *EmailModule) Name() string { return "Email" }

func (m *EmailModule) ConfigSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["to", "subject", "body"],
		"properties": {
			"to": {"type": "string", "description": "Recipient address; supports {{path}} placeholders"},
			"subject": {"type": "string"},
			"body": {"type": "string"},
			"html": {"type": "boolean", "default": false}
		}
	}`)
}

// ValidateConfig requires to, subject, and body.
func (m *EmailModule) ValidateConfig(cfg json.RawMessage) error {
	var c emailConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return fmt.Errorf("invalid email config: %w", err)
	}
	var missing []string
	if strings.TrimSpace(c.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(c.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(c.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (m *EmailModule) Execute(ctx context.Context, run *Context, cfg json.RawMessage) Result {
	var c emailConfig
	if err := json.Unmarshal(cfg, &c); err != nil {
		return Failure("invalid email config: %v", err)
	}

	stored, err := m.configs.GetByTenant(ctx, run.Tenant.ID)
	if err != nil {
		return Failure("load SMTP config: %v", err)
	}
	if stored == nil {
		return Failure("Tenant SMTP not configured")
	}

	server, err := m.decryptServer(stored)
	if err != nil {
		return Failure("%v", err)
	}

	toAddr, err := mail.ParseAddress(Render(c.To, run))
	if err != nil {
		return Failure("invalid recipient address: %v", err)
	}
	from := mail.Address{Name: server.FromName, Address: server.FromAddress}
	if _, err := mail.ParseAddress(from.String()); err != nil {
		return Failure("invalid sender address: %v", err)
	}

	msg := Message{
		From:    from,
		To:      *toAddr,
		Subject: Render(c.Subject, run),
		Body:    Render(c.Body, run),
		HTML:    c.HTML,
	}

	if err := m.sender.Send(ctx, server, msg); err != nil {
		return Failure("%v", err)
	}
	return Success(map[string]any{"to": toAddr.Address})
}

// decryptServer turns a stored config into its in-memory form.
func (m *EmailModule) decryptServer(stored *domain.TenantSMTPConfig) (TenantSMTP, error) {
	server := TenantSMTP{
		Host:        stored.Host,
		Port:        stored.Port,
		FromAddress: stored.FromAddress,
		TLSMode:     stored.TLSMode,
	}
	if stored.FromName != nil {
		server.FromName = *stored.FromName
	}

	var err error
	if len(stored.UsernameEnc) > 0 {
		if server.Username, err = m.crypter.DecryptString(stored.UsernameEnc); err != nil {
			return TenantSMTP{}, fmt.Errorf("decrypt SMTP username: %w", err)
		}
	}
	if len(stored.PasswordEnc) > 0 {
		if server.Password, err = m.crypter.DecryptString(stored.PasswordEnc); err != nil {
			return TenantSMTP{}, fmt.Errorf("decrypt SMTP password: %w", err)
		}
	}
	return server, nil
}
