// webhookerd is the webhooker ingestion server.
// It serves the public ingest API and runs the worker pool that delivers
// queued actions (webhooks, email).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webhooker-io/webhooker/internal/actions"
	"github.com/webhooker-io/webhooker/internal/api"
	"github.com/webhooker-io/webhooker/internal/config"
	"github.com/webhooker-io/webhooker/internal/crypto"
	"github.com/webhooker-io/webhooker/internal/postgres"
	"github.com/webhooker-io/webhooker/internal/ratelimit"
	"github.com/webhooker-io/webhooker/internal/ssrf"
	"github.com/webhooker-io/webhooker/internal/submission"
	"github.com/webhooker-io/webhooker/internal/worker"
)

// shutdownTimeout bounds the graceful HTTP drain on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("webhookerd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	handler := api.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(slog.New(handler).With("service", "webhookerd"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	crypter, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init crypter: %w", err)
	}

	endpoints := postgres.NewEndpointStore(pool)
	submissions := postgres.NewSubmissionStore(pool)
	actionStore := postgres.NewActionStore(pool)
	queue := postgres.NewQueueStore(pool)
	logs := postgres.NewActionLogStore(pool)
	smtpConfigs := postgres.NewTenantSMTPStore(pool)

	policy := ssrf.New(ssrf.ParseMode(cfg.SSRFMode), cfg.WebhookAllowCIDRs, nil)
	registry := actions.NewRegistry(
		actions.NewWebhookModule(policy),
		actions.NewEmailModule(smtpConfigs, crypter, actions.NewSMTPSender()),
	)

	limiter := ratelimit.NewSubmissionLimiter()
	defer limiter.Stop()

	pipeline := submission.New(limiter, submissions, actionStore, queue, cfg.TrustedProxies)

	workers := worker.New(cfg.WorkerCount, queue, actionStore, submissions, endpoints,
		logs, registry, cfg.StuckReclaimAfter)
	workers.Start(ctx)
	defer workers.Stop()

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(&api.Server{
			Endpoints:   endpoints,
			Pipeline:    pipeline,
			Registry:    registry,
			DB:          postgres.NewHealthChecker(pool),
			MaxBodySize: cfg.MaxBodySize,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("webhookerd listening", "addr", cfg.Addr(), "workers", cfg.WorkerCount,
			"ssrf_mode", cfg.SSRFMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}
