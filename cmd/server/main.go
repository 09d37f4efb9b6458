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

	"golang.org/x/sync/errgroup"

	"registrar/internal/audit"
	audithandler "registrar/internal/audit/handler"
	certhandler "registrar/internal/certificate/handler"
	certservice "registrar/internal/certificate/service"
	jwttoken "registrar/internal/jwt_token"
	ledgermetrics "registrar/internal/ledger/metrics"
	"registrar/internal/ledger/txn"
	"registrar/internal/platform/config"
	"registrar/internal/platform/health"
	"registrar/internal/platform/logger"
	"registrar/internal/platform/metrics"
	recordhandler "registrar/internal/record/handler"
	recordservice "registrar/internal/record/service"
	"registrar/internal/seeder"
	studenthandler "registrar/internal/student/handler"
	studentservice "registrar/internal/student/service"
	httptransport "registrar/internal/transport/http"
	"registrar/pkg/platform/middleware/auth"
	"registrar/pkg/platform/middleware/metadata"
	"registrar/pkg/platform/middleware/request"
	"registrar/pkg/platform/tracer"
)

// main wires dependencies from configuration, serves the HTTP API and
// shuts everything down on SIGINT or SIGTERM. Business logic lives in the
// internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("registrar stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("initializing registrar",
		"addr", cfg.Server.Addr,
		"ledger_mode", cfg.Ledger.Mode,
		"cas_backend", cfg.CAS.Backend,
		"audit_store", cfg.Audit.Store,
		"auth_enabled", cfg.Auth.Enabled,
	)

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.Telemetry.TracingEnabled {
		tr = tracer.NewOTel()
	}
	probes := health.New(cfg.Ledger.Mode)

	lgr, err := buildLedger(cfg.Ledger, log, ledgermetrics.New())
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer lgr.sessions.Close() //nolint:errcheck // shutdown path
	orchestrator := txn.New(txn.Config{
		Sessions:        lgr.sessions,
		Channel:         cfg.Ledger.Channel,
		Contract:        cfg.Ledger.Contract,
		DefaultIdentity: cfg.Ledger.DefaultIdentity,
		EvaluateTimeout: cfg.Ledger.EvaluateTimeout,
		SubmitTimeout:   cfg.Ledger.SubmitTimeout,
		Backoff: txn.BackoffConfig{
			InitialDelay: cfg.Ledger.Retry.InitialDelay,
			MaxDelay:     cfg.Ledger.Retry.MaxDelay,
			MaxRetries:   cfg.Ledger.Retry.MaxRetries,
			Multiplier:   cfg.Ledger.Retry.Multiplier,
		},
	}, txn.WithLogger(log), txn.WithTracer(tr), txn.WithMetrics(lgr.metrics))

	blobs, closeBlobs, err := buildCAS(ctx, cfg.CAS, cfg.CAS.Backend, log)
	if err != nil {
		return fmt.Errorf("content store: %w", err)
	}
	defer closeBlobs()
	probes.RegisterCheck("cas", casCheck(blobs))

	cache, redisClient, err := buildCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("certificate cache: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		probes.RegisterCheck("redis", redisClient.Health)
	}

	auditStore, closeAudit, err := buildAuditStore(ctx, cfg, log, probes)
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	defer closeAudit()
	publisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(cfg.Audit.AsyncQueue),
		audit.WithPublisherLogger(log),
	)
	defer publisher.Close()

	businessMetrics := metrics.New()
	students := studentservice.New(orchestrator,
		studentservice.WithAuditor(publisher),
		studentservice.WithLogger(log),
		studentservice.WithMetrics(businessMetrics),
	)
	records := recordservice.New(orchestrator,
		recordservice.WithAuditor(publisher),
		recordservice.WithLogger(log),
		recordservice.WithMetrics(businessMetrics),
	)
	certificates := certservice.New(orchestrator, blobs,
		certservice.WithCache(cache),
		certservice.WithAuditor(publisher),
		certservice.WithLogger(log),
		certservice.WithTracer(tr),
		certservice.WithMetrics(businessMetrics),
		certservice.WithStoreTimeout(cfg.CAS.Timeout),
		certservice.WithDefaultIdentity(cfg.Ledger.DefaultIdentity),
		certservice.WithLedgerCrossCheck(cfg.Certificates.LedgerCrossCheck),
	)

	if cfg.Ledger.SeedDemo {
		if _, err := seeder.New(students, records, certificates, log).SeedAll(ctx); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	var validator auth.JWTValidator
	if cfg.Auth.Enabled {
		validator = jwttoken.NewValidator(jwttoken.NewJWTService(
			cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL,
		))
	} else {
		log.Warn("authentication disabled; every request acts as the default ledger identity",
			"identity", cfg.Ledger.DefaultIdentity,
		)
	}
	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:               log,
		Health:               probes,
		Students:             studenthandler.New(students, log),
		Records:              recordhandler.New(records, log),
		Certificates:         certhandler.New(certificates, log, cfg.Certificates.MaxDocumentBytes),
		Audit:                audithandler.New(publisher, log),
		Validator:            validator,
		AllowAnonymousVerify: cfg.Auth.AllowAnonymousVerify,
		AnonymousVerifier:    cfg.Auth.AnonymousVerifier,
		TrustedProxies:       proxies,
		RequestTimeout:       cfg.Server.RequestTimeout,
		MaxDocumentBytes:     cfg.Certificates.MaxDocumentBytes,
		Metrics:              request.NewMetrics(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return lgr.sessions.Run(gctx, cfg.Ledger.Pool.SweepInterval)
	})
	if redisClient != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					redisClient.RecordPoolStats()
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
