// Package gateway manages ledger sessions: resolving the caller's identity and
// the connection profile, opening contract handles and pooling them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"registrar/internal/ledger"
	"registrar/internal/ledger/identity"
	"registrar/internal/ledger/metrics"
	"registrar/internal/ledger/profile"
	psync "registrar/pkg/platform/sync"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("connection manager closed")

// Config configures a Manager.
type Config struct {
	Profile    *profile.Profile
	Identities identity.Store
	Connector  Connector

	MaxIdle        int           // idle sessions kept per identity/channel/contract (default 4)
	IdleTTL        time.Duration // idle sessions older than this are closed (default 5m)
	AcquireTimeout time.Duration // bound on identity resolution plus connect (default 5s)
}

// Stats is a snapshot of session accounting.
type Stats struct {
	Acquired int64
	Released int64
	Active   int64
	Idle     int
}

// Manager hands out exclusive sessions. Warm handles are pooled per
// identity, channel and contract; the pool lock is never held across
// network calls.
type Manager struct {
	profile    *profile.Profile
	identities identity.Store
	connector  Connector
	maxIdle    int
	idleTTL    time.Duration
	timeout    time.Duration

	idle     *psync.ShardedMap[[]*Session]
	acquired atomic.Int64
	released atomic.Int64
	closed   atomic.Bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the time source used for idle expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Profile == nil {
		return nil, errors.New("connection profile is required")
	}
	if cfg.Identities == nil {
		return nil, errors.New("identity store is required")
	}
	if cfg.Connector == nil {
		return nil, errors.New("connector is required")
	}
	if cfg.MaxIdle == 0 {
		cfg.MaxIdle = 4
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	m := &Manager{
		profile:    cfg.Profile,
		identities: cfg.Identities,
		connector:  cfg.Connector,
		maxIdle:    cfg.MaxIdle,
		idleTTL:    cfg.IdleTTL,
		timeout:    cfg.AcquireTimeout,
		idle:       psync.NewShardedMap[[]*Session](),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Acquire returns an exclusive session for identityID on channel/contract.
//
// Fails with IdentityNotFound when the wallet has no such identity,
// ProfileResolutionError when the channel or contract is undeclared, and
// NetworkUnavailable when the peer cannot be reached.
func (m *Manager) Acquire(ctx context.Context, identityID, channel, contract string) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	start := m.now()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	id, err := m.identities.Resolve(ctx, identityID)
	if err != nil {
		return nil, err
	}
	target, err := m.profile.Resolve(id.MSPID, channel, contract)
	if err != nil {
		return nil, err
	}

	key := sessionKey(identityID, channel, contract)
	if s := m.takeIdle(key); s != nil {
		s.Identity = id
		m.acquired.Add(1)
		m.metrics.RecordAcquire(true, m.now().Sub(start).Seconds())
		return s, nil
	}

	handle, err := m.connector.Connect(ctx, id, target)
	if err != nil {
		if ledger.CategoryOf(err) != "" {
			return nil, err
		}
		if errors.Is(err, context.Canceled) {
			return nil, ledger.NewError(ledger.CategoryCanceled, "connect", "caller canceled", err)
		}
		return nil, ledger.NewError(ledger.CategoryNetworkUnavailable, "connect",
			fmt.Sprintf("connect to %s", target.Endpoint.Name), err)
	}

	s := &Session{
		Identity: id,
		Channel:  channel,
		Contract: contract,
		key:      key,
		handle:   handle,
	}
	m.acquired.Add(1)
	m.metrics.RecordAcquire(false, m.now().Sub(start).Seconds())
	return s, nil
}

// Release returns s to the pool, or closes it when it is broken, the pool is
// full, or the manager is closed. Releasing nil or an already released
// session is a no-op.
func (m *Manager) Release(s *Session) {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	m.released.Add(1)

	if s.Broken() || m.closed.Load() {
		m.metrics.RecordRelease(false)
		m.closeHandle(s)
		return
	}

	pooled := false
	fresh := &Session{
		Identity: s.Identity,
		Channel:  s.Channel,
		Contract: s.Contract,
		key:      s.key,
		handle:   s.handle,
		lastUsed: m.now(),
	}
	// closed is re-read under the shard lock: Close sets it before draining,
	// so a session is either drained by Close or never pooled.
	m.idle.Compute(s.key, func(cur []*Session, _ bool) ([]*Session, bool) {
		if m.closed.Load() || len(cur) >= m.maxIdle {
			return cur, len(cur) > 0
		}
		pooled = true
		return append(cur, fresh), true
	})
	m.metrics.RecordRelease(pooled)
	if !pooled {
		m.closeHandle(s)
	}
}

// Stats returns acquisition counters. Active is Acquired minus Released.
func (m *Manager) Stats() Stats {
	acquired := m.acquired.Load()
	released := m.released.Load()
	idle := 0
	m.idle.ComputeAll(func(_ string, cur []*Session) ([]*Session, bool) {
		idle += len(cur)
		return cur, true
	})
	return Stats{Acquired: acquired, Released: released, Active: acquired - released, Idle: idle}
}

// Sweep closes idle sessions older than the idle TTL.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)
	var expired []*Session
	m.idle.ComputeAll(func(_ string, cur []*Session) ([]*Session, bool) {
		kept := cur[:0]
		for _, s := range cur {
			if s.lastUsed.Before(cutoff) {
				expired = append(expired, s)
				continue
			}
			kept = append(kept, s)
		}
		return kept, len(kept) > 0
	})
	for _, s := range expired {
		m.closeHandle(s)
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("closed idle ledger sessions", "count", n)
			}
		}
	}
}

// Close drains the pool and closes the connector. Sessions still leased are
// closed when released.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	var all []*Session
	m.idle.ComputeAll(func(_ string, cur []*Session) ([]*Session, bool) {
		all = append(all, cur...)
		return nil, false
	})
	for _, s := range all {
		m.closeHandle(s)
	}
	return m.connector.Close()
}

// takeIdle pops the most recently used live session for key. Expired
// sessions found on the way are closed after the shard lock is dropped.
func (m *Manager) takeIdle(key string) *Session {
	cutoff := m.now().Add(-m.idleTTL)
	var found *Session
	var expired []*Session
	m.idle.Compute(key, func(cur []*Session, ok bool) ([]*Session, bool) {
		for len(cur) > 0 {
			s := cur[len(cur)-1]
			cur = cur[:len(cur)-1]
			if s.lastUsed.Before(cutoff) {
				expired = append(expired, s)
				continue
			}
			found = s
			break
		}
		return cur, len(cur) > 0
	})
	for _, s := range expired {
		m.closeHandle(s)
	}
	return found
}

func (m *Manager) closeHandle(s *Session) {
	if err := s.handle.Close(); err != nil {
		m.logger.Warn("failed to close ledger session",
			"identity", s.Identity.ID,
			"channel", s.Channel,
			"error", err,
		)
	}
}
