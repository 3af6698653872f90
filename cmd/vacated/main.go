// Package main is the entry point for the vacate workflow server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/propfolio/vacate/internal/backend"
	"github.com/propfolio/vacate/internal/checkpoint"
	"github.com/propfolio/vacate/internal/config"
	"github.com/propfolio/vacate/internal/observability"
	"github.com/propfolio/vacate/internal/termination"
	"github.com/propfolio/vacate/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "vacate", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	store, storeCloser, err := buildCheckpointStore(ctx, cfg.Checkpoint, logger)
	if err != nil {
		logger.Error("checkpoint store initialization failed", zap.Error(err))
		return 1
	}

	// One shared transport per collaborator; the typed clients wrap them.
	subjectsClient := backend.NewClient(config.ServiceSubjects, cfg.Services[config.ServiceSubjects], metrics)
	mediaClient := backend.NewClient(config.ServiceMedia, cfg.Services[config.ServiceMedia], metrics)
	invoicingClient := backend.NewClient(config.ServiceInvoicing, cfg.Services[config.ServiceInvoicing], metrics)
	ledgerClient := backend.NewClient(config.ServiceLedger, cfg.Services[config.ServiceLedger], metrics)

	var svcOpts []termination.ServiceOption
	idemStore, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)
	if idemStore != nil {
		svcOpts = append(svcOpts, termination.WithIdempotencyStore(idemStore, cfg.Idempotency.DefaultTTL))
	}

	svc := termination.NewService(store, termination.Collaborators{
		Subjects: backend.NewSubjectClient(subjectsClient),
		Media:    backend.NewMediaClient(mediaClient),
		Invoices: backend.NewInvoiceClient(invoicingClient),
		Ledger:   backend.NewLedgerClient(ledgerClient),
	}, metrics, svcOpts...)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readiness := observability.ReadinessChecks{
		Collaborators: map[string]observability.HealthChecker{
			config.ServiceSubjects:  subjectsClient,
			config.ServiceMedia:     mediaClient,
			config.ServiceInvoicing: invoicingClient,
			config.ServiceLedger:    ledgerClient,
		},
	}
	if hc, ok := store.(observability.HealthChecker); ok {
		readiness.CheckpointStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Service:      svc,
		Metrics:      metrics,
		Readiness:    readiness,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("checkpoint_driver", cfg.Checkpoint.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildIdempotencyStore creates the submit deduplication store based on
// config. Returns nil when deduplication is disabled.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (termination.IdempotencyStore, func()) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			logger.Warn("idempotency redis address not configured, using in-memory store")
			return termination.NewMemoryIdempotencyStore(), nil
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.DB,
		})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return termination.NewRedisIdempotencyStore(client), func() { client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return termination.NewMemoryIdempotencyStore(), nil
	}
}

// buildCheckpointStore creates the checkpoint store based on config.
func buildCheckpointStore(ctx context.Context, cfg config.CheckpointConfig, logger *zap.Logger) (checkpoint.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory checkpoint store")
		return checkpoint.NewMemoryStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" && cfg.DSNEnv != "" {
			return nil, nil, fmt.Errorf("checkpoint store: %s environment variable not set", cfg.DSNEnv)
		}
		if dsn == "" {
			logger.Warn("checkpoint store DSN not configured, using in-memory store")
			return checkpoint.NewMemoryStore(), nil, nil
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("checkpoint store: ping: %w", err)
		}

		return checkpoint.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported checkpoint store driver: %q", cfg.Driver)
	}
}
