package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webhooker-io/webhooker/internal/domain"
)

const tenantSMTPColumns = `id, tenant_id, host, port, username_enc, password_enc,
	from_address, from_name, tls_mode, created_at, updated_at`

// TenantSMTPStore persists per-tenant SMTP configuration. Credentials are
// stored as nonce-prefixed AES-256-GCM blobs; this store never sees
// plaintext.
type TenantSMTPStore struct {
	pool *pgxpool.Pool
}

// NewTenantSMTPStore creates a TenantSMTPStore backed by the given pool.
func NewTenantSMTPStore(pool *pgxpool.Pool) *TenantSMTPStore {
	return &TenantSMTPStore{pool: pool}
}

func scanTenantSMTP(row pgx.Row) (*domain.TenantSMTPConfig, error) {
	var (
		c        domain.TenantSMTPConfig
		fromName pgtype.Text
		tlsMode  string
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.Host, &c.Port, &c.UsernameEnc, &c.PasswordEnc,
		&c.FromAddress, &fromName, &tlsMode, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.FromName = nullableTextToPtr(fromName)
	c.TLSMode = domain.TLSMode(tlsMode)
	return &c, nil
}

// Upsert creates or replaces the tenant's SMTP configuration.
func (s *TenantSMTPStore) Upsert(ctx context.Context, cfg *domain.TenantSMTPConfig) (*domain.TenantSMTPConfig, error) {
	if !domain.ValidTLSMode(string(cfg.TLSMode)) {
		return nil, fmt.Errorf("invalid tls_mode %q", cfg.TLSMode)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenant_smtp_configs
			(tenant_id, host, port, username_enc, password_enc, from_address, from_name, tls_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			username_enc = EXCLUDED.username_enc,
			password_enc = EXCLUDED.password_enc,
			from_address = EXCLUDED.from_address,
			from_name = EXCLUDED.from_name,
			tls_mode = EXCLUDED.tls_mode,
			updated_at = now()
		RETURNING `+tenantSMTPColumns,
		cfg.TenantID, cfg.Host, cfg.Port, cfg.UsernameEnc, cfg.PasswordEnc,
		cfg.FromAddress, textPtrToNullable(cfg.FromName), string(cfg.TLSMode))

	out, err := scanTenantSMTP(row)
	if err != nil {
		return nil, fmt.Errorf("upsert tenant smtp config: %w", err)
	}
	return out, nil
}

// GetByTenant returns the tenant's SMTP config, or nil when none exists.
func (s *TenantSMTPStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.TenantSMTPConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantSMTPColumns+` FROM tenant_smtp_configs WHERE tenant_id = $1`, tenantID)

	c, err := scanTenantSMTP(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant smtp config: %w", err)
	}
	return c, nil
}

// Delete removes the tenant's SMTP configuration.
func (s *TenantSMTPStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tenant_smtp_configs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("delete tenant smtp config: %w", err)
	}
	return nil
}
