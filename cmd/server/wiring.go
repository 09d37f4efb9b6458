package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"registrar/internal/audit"
	auditkafka "registrar/internal/audit/kafka"
	auditpg "registrar/internal/audit/postgres"
	"registrar/internal/certificate/service"
	"registrar/internal/certificate/store"
	"registrar/internal/ledger/gateway"
	"registrar/internal/ledger/identity"
	"registrar/internal/ledger/memledger"
	ledgermetrics "registrar/internal/ledger/metrics"
	"registrar/internal/ledger/profile"
	"registrar/internal/platform/config"
	"registrar/internal/platform/database"
	"registrar/internal/platform/health"
	"registrar/internal/platform/kafka/producer"
	"registrar/internal/platform/redis"
	"registrar/internal/storage/cas"
	"registrar/internal/storage/cas/gcs"
	"registrar/internal/storage/cas/ipfs"
	"registrar/internal/storage/cas/localfs"
)

type ledgerStack struct {
	sessions *gateway.Manager
	metrics  *ledgermetrics.Metrics
}

// buildLedger returns the connection manager for the configured mode. The
// memory mode runs the contract in-process with the well-known identities.
func buildLedger(cfg config.Ledger, log *slog.Logger, m *ledgermetrics.Metrics) (*ledgerStack, error) {
	var (
		prof       *profile.Profile
		identities identity.Store
		connector  gateway.Connector
	)
	switch cfg.Mode {
	case "fabric":
		p, err := profile.Load(cfg.ProfilePath)
		if err != nil {
			return nil, err
		}
		prof = p
		identities = identity.NewFileWallet(cfg.WalletDir)
		connector = gateway.NewFabricConnector(gateway.FabricTimeouts{
			Evaluate:     cfg.EvaluateTimeout,
			Endorse:      cfg.EndorseTimeout,
			Submit:       cfg.SubmitTimeout,
			CommitStatus: cfg.CommitTimeout,
		})
	default:
		log.Warn("using the in-memory ledger; state is lost on restart")
		prof = profile.Single(cfg.Channel, cfg.Contract, "peer0.memory", "memory")
		identities = identity.NewMemoryWallet(memledger.Identities()...)
		connector = memledger.NewConnector(memledger.New())
	}

	mgr, err := gateway.New(gateway.Config{
		Profile:        prof,
		Identities:     identities,
		Connector:      connector,
		MaxIdle:        cfg.Pool.MaxIdle,
		IdleTTL:        cfg.Pool.IdleTTL,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	}, gateway.WithLogger(log), gateway.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	return &ledgerStack{sessions: mgr, metrics: m}, nil
}

// buildCAS resolves a backend name to a store. The returned func releases
// client resources and is always safe to call.
func buildCAS(ctx context.Context, cfg config.CAS, backend string, log *slog.Logger) (cas.Store, func(), error) {
	noop := func() {}
	switch backend {
	case "memory":
		log.Warn("using the in-memory content store; documents are lost on restart")
		return cas.NewMemory(), noop, nil
	case "localfs":
		s, err := localfs.New(cfg.LocalFS.Root)
		return s, noop, err
	case "ipfs":
		var env []string
		if cfg.IPFS.RepoDir != "" {
			env = append(env, "IPFS_PATH="+cfg.IPFS.RepoDir)
		}
		return ipfs.New(ipfs.Options{Bin: cfg.IPFS.Bin, Env: env}), noop, nil
	case "gcs":
		s, err := gcs.New(ctx, gcs.Config{
			Bucket:       cfg.GCS.Bucket,
			Prefix:       cfg.GCS.Prefix,
			EmulatorHost: cfg.GCS.EmulatorHost,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case "replicating":
		var (
			backends []cas.Named
			closers  []func()
		)
		closeAll := func() {
			for _, c := range closers {
				c()
			}
		}
		for _, name := range cfg.Backends {
			name = strings.TrimSpace(name)
			s, closer, err := buildCAS(ctx, cfg, name, log)
			if err != nil {
				closeAll()
				return nil, noop, fmt.Errorf("%s: %w", name, err)
			}
			backends = append(backends, cas.Named{Name: name, Store: s})
			closers = append(closers, closer)
		}
		return &cas.Replicating{Backends: backends}, closeAll, nil
	default:
		return nil, noop, fmt.Errorf("unsupported backend %q", backend)
	}
}

// casCheck probes the store with a lookup; a missing object is healthy.
func casCheck(blobs cas.Store) health.CheckFunc {
	probe, _ := cas.CIDFor([]byte("registrar readiness probe"))
	return func(ctx context.Context) error {
		_, err := blobs.Has(ctx, probe)
		return err
	}
}

// buildCache prefers Redis when an address is configured so replicas share
// one cache; otherwise each process keeps its own.
func buildCache(ctx context.Context, cfg *config.Config) (service.Cache, *redis.Client, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return store.NewMemoryCache(cfg.Certificates.CacheTTL), nil, nil
	}
	return store.NewRedisCache(client, cfg.Certificates.CacheTTL), client, nil
}

func buildAuditStore(ctx context.Context, cfg *config.Config, log *slog.Logger, probes *health.Handler) (audit.Store, func(), error) {
	switch cfg.Audit.Store {
	case "postgres":
		pool, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool.DB()); err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
		probes.RegisterCheck("postgres", pool.Health)
		return auditpg.New(pool.DB()), func() { _ = pool.Close() }, nil
	case "kafka":
		p, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         cfg.Kafka.Retries,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		probes.RegisterCheck("kafka", p.Healthy)
		return auditkafka.New(p, cfg.Audit.Topic), func() { p.Close(5 * time.Second) }, nil
	default:
		return audit.NewInMemoryStore(), func() {}, nil
	}
}
