// Package config loads the webhookerd runtime configuration.
// Configuration comes from the environment (optionally seeded from a .env
// file); a webhooker.yaml file can set the same values, with environment
// variables taking precedence so deploys can override a checked-in file.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the environment nor the yaml file set a value.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 3000
	DefaultMaxBodySize       = 1 << 20 // 1 MiB
	DefaultWorkerCount       = 4
	DefaultStuckReclaimAfter = 30 * time.Minute
)

// Config is the fully resolved webhookerd configuration.
type Config struct {
	DatabaseURL   string
	EncryptionKey string
	JWTSecret     string // consumed by the auth module, validated here

	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int64

	TrustedProxies    []netip.Prefix
	SSRFMode          string // "strict" or "relaxed"
	WebhookAllowCIDRs []netip.Prefix

	WorkerCount       int
	StuckReclaimAfter time.Duration // 0 disables the recovery sweep
	LogLevel          slog.Level

	SMTP *SystemSMTP // nil when no system SMTP is configured
}

// SystemSMTP holds the optional system-wide SMTP settings used for
// operational notifications (distinct from per-tenant SMTP configs).
type SystemSMTP struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	TLSMode     string
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// fileConfig mirrors the subset of Config settable from webhooker.yaml.
// Secrets (DATABASE_URL, encryption key, JWT secret, SMTP password) are
// environment-only.
type fileConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	BaseURL           string   `yaml:"base_url"`
	MaxBodySize       int64    `yaml:"max_body_size"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
	SSRFMode          string   `yaml:"webhook_ssrf_mode"`
	WebhookAllowCIDRs []string `yaml:"webhook_allow_cidrs"`
	WorkerCount       int      `yaml:"worker_count"`
	StuckReclaimAfter string   `yaml:"stuck_reclaim_after"`
	LogLevel          string   `yaml:"log_level"`
}

// ResolvePath finds the yaml config file path.
// Priority: WEBHOOKER_CONFIG env var > ./webhooker.yaml > "" (no file).
func ResolvePath() string {
	if p := os.Getenv("WEBHOOKER_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("webhooker.yaml"); err == nil {
		return "webhooker.yaml"
	}
	return ""
}

// Load resolves the full configuration: .env file (if present), then the
// yaml file at path (if non-empty), then environment variables on top.
// Returns an error listing every missing required variable at once.
func Load(path string) (*Config, error) {
	// Best-effort .env; absence is the normal production case.
	_ = godotenv.Load()

	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		EncryptionKey:     os.Getenv("WEBHOOKER_ENCRYPTION_KEY"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		Host:              firstNonEmpty(os.Getenv("WEBHOOKER_HOST"), fc.Host, DefaultHost),
		BaseURL:           firstNonEmpty(os.Getenv("WEBHOOKER_BASE_URL"), fc.BaseURL),
		SSRFMode:          firstNonEmpty(os.Getenv("WEBHOOKER_WEBHOOK_SSRF_MODE"), fc.SSRFMode, "strict"),
		Port:              envIntOr("WEBHOOKER_PORT", fc.Port, DefaultPort),
		WorkerCount:       envIntOr("WEBHOOKER_WORKER_COUNT", fc.WorkerCount, DefaultWorkerCount),
		MaxBodySize:       int64(envIntOr("WEBHOOKER_MAX_BODY_SIZE", int(fc.MaxBodySize), DefaultMaxBodySize)),
		StuckReclaimAfter: envDurationOr("WEBHOOKER_STUCK_RECLAIM_AFTER", fc.StuckReclaimAfter, DefaultStuckReclaimAfter),
		LogLevel:          parseLogLevel(firstNonEmpty(os.Getenv("WEBHOOKER_LOG_LEVEL"), fc.LogLevel, "info")),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.EncryptionKey == "" {
		missing = append(missing, "WEBHOOKER_ENCRYPTION_KEY")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.SSRFMode != "strict" && cfg.SSRFMode != "relaxed" {
		return nil, fmt.Errorf("webhook ssrf mode must be strict or relaxed, got %q", cfg.SSRFMode)
	}

	var err error
	cfg.TrustedProxies, err = parseCIDRList(firstNonEmpty(os.Getenv("WEBHOOKER_TRUSTED_PROXIES"), strings.Join(fc.TrustedProxies, ",")))
	if err != nil {
		return nil, fmt.Errorf("parse WEBHOOKER_TRUSTED_PROXIES: %w", err)
	}
	cfg.WebhookAllowCIDRs, err = parseCIDRList(firstNonEmpty(os.Getenv("WEBHOOKER_WEBHOOK_ALLOW_CIDRS"), strings.Join(fc.WebhookAllowCIDRs, ",")))
	if err != nil {
		return nil, fmt.Errorf("parse WEBHOOKER_WEBHOOK_ALLOW_CIDRS: %w", err)
	}

	cfg.SMTP, err = loadSystemSMTP()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSystemSMTP reads the optional WEBHOOKER_SMTP_* block. Host unset means
// no system SMTP; host set with an incomplete block is a config error.
func loadSystemSMTP() (*SystemSMTP, error) {
	host := os.Getenv("WEBHOOKER_SMTP_HOST")
	if host == "" {
		return nil, nil
	}
	s := &SystemSMTP{
		Host:        host,
		Port:        envIntOr("WEBHOOKER_SMTP_PORT", 0, 587),
		Username:    os.Getenv("WEBHOOKER_SMTP_USERNAME"),
		Password:    os.Getenv("WEBHOOKER_SMTP_PASSWORD"),
		FromAddress: os.Getenv("WEBHOOKER_SMTP_FROM_ADDRESS"),
		FromName:    os.Getenv("WEBHOOKER_SMTP_FROM_NAME"),
		TLSMode:     firstNonEmpty(os.Getenv("WEBHOOKER_SMTP_TLS_MODE"), "starttls"),
	}
	if s.FromAddress == "" {
		return nil, fmt.Errorf("WEBHOOKER_SMTP_FROM_ADDRESS is required when WEBHOOKER_SMTP_HOST is set")
	}
	switch s.TLSMode {
	case "tls", "starttls", "none":
	default:
		return nil, fmt.Errorf("WEBHOOKER_SMTP_TLS_MODE must be tls, starttls, or none, got %q", s.TLSMode)
	}
	return s, nil
}

// parseCIDRList parses a comma-separated list of CIDR blocks. Bare IPs are
// accepted as /32 (or /128) prefixes. An empty list returns nil.
func parseCIDRList(s string) ([]netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var prefixes []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if p, err := netip.ParsePrefix(part); err == nil {
			prefixes = append(prefixes, p)
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q", part)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// envIntOr resolves an integer: env var if set and valid, then fileVal if
// non-zero, then def.
func envIntOr(key string, fileVal, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", def)
			return def
		}
		return n
	}
	if fileVal != 0 {
		return fileVal
	}
	return def
}

// envDurationOr resolves a duration the same way.
func envDurationOr(key, fileVal string, def time.Duration) time.Duration {
	resolve := func(v string) (time.Duration, bool) {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
			return 0, false
		}
		return d, true
	}
	if v := os.Getenv(key); v != "" {
		if d, ok := resolve(v); ok {
			return d
		}
		return def
	}
	if fileVal != "" {
		if d, ok := resolve(fileVal); ok {
			return d
		}
	}
	return def
}
