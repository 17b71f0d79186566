package actions

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/webhooker-io/webhooker/internal/domain"
)

// SMTPSender delivers mail over net/smtp using the tenant's tls_mode:
// implicit TLS, STARTTLS upgrade, or cleartext.
type SMTPSender struct {
	dialTimeout time.Duration
}

// NewSMTPSender returns the production Sender.
func NewSMTPSender() *SMTPSender {
	return &SMTPSender{dialTimeout: 30 * time.Second}
}

// Send performs one SMTP transaction.
func (s *SMTPSender) Send(ctx context.Context, server TenantSMTP, msg Message) error {
	client, err := s.connect(ctx, server)
	if err != nil {
		return err
	}
	defer client.Close()

	if server.Username != "" {
		if err := client.Auth(&plainAuth{user: server.Username, pass: server.Password}); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(msg.From.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(msg.To.Address); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}

// connect dials the server according to its tls_mode and returns a ready
// SMTP client.
func (s *SMTPSender) connect(ctx context.Context, server TenantSMTP) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	dialer := &net.Dialer{Timeout: s.dialTimeout}

	if server.TLSMode == domain.TLSModeTLS {
		conn, err := (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: server.Host}}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("SMTP TLS connect to %s: %w", addr, err)
		}
		client, err := smtp.NewClient(conn, server.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("SMTP client: %w", err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, server.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}

	if server.TLSMode == domain.TLSModeStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, fmt.Errorf("SMTP server %s does not support STARTTLS", server.Host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: server.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}
	return client, nil
}

// buildMessage serializes headers and body with CRLF line endings.
func buildMessage(msg Message) []byte {
	contentType := "text/plain; charset=UTF-8"
	if msg.HTML {
		contentType = "text/html; charset=UTF-8"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", msg.From.String())
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To.String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// plainAuth is PLAIN auth without stdlib's TLS requirement; tenants on
// private networks legitimately run tls_mode=none.
type plainAuth struct {
	user, pass string
}

func (a *plainAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.user + "\x00" + a.pass), nil
}

func (a *plainAuth) Next(_ []byte, _ bool) ([]byte, error) {
	return nil, nil
}
