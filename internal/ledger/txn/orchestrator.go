// Package txn invokes ledger contract operations on a leased session with
// the right consistency semantics for reads and writes.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"registrar/internal/ledger"
	"registrar/internal/ledger/gateway"
	"registrar/internal/ledger/metrics"
	"registrar/pkg/platform/circuit"
	"registrar/pkg/platform/tracer"
)

// Mode selects the submit (ordered, committed) or evaluate (single-peer query) path.
type Mode string

const (
	ModeSubmit   Mode = "submit"
	ModeEvaluate Mode = "evaluate"
)

// Request is one logical ledger call.
type Request struct {
	Operation string
	Args      []string
	Mode      Mode
	Identity  string // optional; the orchestrator's default identity is used when empty
}

// SessionManager is the part of the connection manager the orchestrator needs.
type SessionManager interface {
	Acquire(ctx context.Context, identityID, channel, contract string) (*gateway.Session, error)
	Release(s *gateway.Session)
}

// BackoffConfig configures evaluate retries.
type BackoffConfig struct {
	InitialDelay time.Duration // default 100ms
	MaxDelay     time.Duration // default 2s
	MaxRetries   int           // default 3
	Multiplier   float64       // default 2.0
}

// Config configures the Orchestrator.
type Config struct {
	Sessions        SessionManager
	Channel         string
	Contract        string
	DefaultIdentity string
	EvaluateTimeout time.Duration // default 10s
	SubmitTimeout   time.Duration // default 30s
	Backoff         BackoffConfig
}

// Orchestrator runs contract operations. Evaluate calls are retried on
// transient network failures; submit calls are never retried because a
// second submission is a second transaction.
type Orchestrator struct {
	sessions        SessionManager
	channel         string
	contract        string
	defaultIdentity string
	evaluateTimeout time.Duration
	submitTimeout   time.Duration
	backoff         BackoffConfig

	breaker *circuit.Breaker

	logger  *slog.Logger
	tracer  tracer.Tracer
	metrics *metrics.Metrics
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func New(cfg Config, opts ...Option) *Orchestrator {
	if cfg.EvaluateTimeout == 0 {
		cfg.EvaluateTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.Backoff.InitialDelay == 0 {
		cfg.Backoff.InitialDelay = 100 * time.Millisecond
	}
	if cfg.Backoff.MaxDelay == 0 {
		cfg.Backoff.MaxDelay = 2 * time.Second
	}
	if cfg.Backoff.MaxRetries == 0 {
		cfg.Backoff.MaxRetries = 3
	}
	if cfg.Backoff.Multiplier == 0 {
		cfg.Backoff.Multiplier = 2.0
	}
	o := &Orchestrator{
		sessions:        cfg.Sessions,
		channel:         cfg.Channel,
		contract:        cfg.Contract,
		defaultIdentity: cfg.DefaultIdentity,
		evaluateTimeout: cfg.EvaluateTimeout,
		submitTimeout:   cfg.SubmitTimeout,
		backoff:         cfg.Backoff,
		breaker:         circuit.New("ledger:"+cfg.Channel, circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:          slog.Default(),
		tracer:          tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run acquires a session for the request's identity, invokes, and releases
// the session on every path.
func (o *Orchestrator) Run(ctx context.Context, req Request) ([]byte, error) {
	identityID := req.Identity
	if identityID == "" {
		identityID = o.defaultIdentity
	}
	if identityID == "" {
		return nil, ledger.NewError(ledger.CategoryIdentityNotFound, req.Operation, "no caller identity", nil)
	}
	session, err := o.sessions.Acquire(ctx, identityID, o.channel, o.contract)
	if err != nil {
		return nil, err
	}
	defer o.sessions.Release(session)
	return o.Invoke(ctx, session, req)
}

// Invoke runs req on an already leased session.
func (o *Orchestrator) Invoke(ctx context.Context, session *gateway.Session, req Request) ([]byte, error) {
	if req.Operation == "" {
		return nil, ledger.NewError(ledger.CategoryValidation, "", "operation name is required", nil)
	}
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, tracer.SpanLedgerInvoke,
		tracer.String(tracer.AttrOperation, req.Operation),
		tracer.String(tracer.AttrMode, string(req.Mode)),
		tracer.String(tracer.AttrChannel, session.Channel),
		tracer.String(tracer.AttrIdentity, session.Identity.ID),
	)

	var (
		result []byte
		err    error
	)
	switch req.Mode {
	case ModeSubmit:
		result, err = o.submit(ctx, session, req)
	case ModeEvaluate:
		result, err = o.evaluate(ctx, session, req)
	default:
		err = ledger.NewError(ledger.CategoryValidation, req.Operation, fmt.Sprintf("unknown mode %q", req.Mode), nil)
	}

	outcome := "ok"
	if err != nil {
		outcome = string(ledger.CategoryOf(err))
		if outcome == "" {
			outcome = "internal"
		}
		span.SetAttributes(tracer.String(tracer.AttrCategory, outcome))
		var le *ledger.Error
		if errors.As(err, &le) && le.TxID != "" {
			span.SetAttributes(tracer.String(tracer.AttrTxID, le.TxID))
		}
	}
	o.metrics.RecordInvocation(req.Operation, string(req.Mode), outcome, time.Since(start).Seconds())
	span.End(err)
	return result, err
}

func (o *Orchestrator) submit(ctx context.Context, session *gateway.Session, req Request) ([]byte, error) {
	// Nothing has been dispatched yet, so the outcome is known.
	if err := ctx.Err(); err != nil {
		return nil, ledger.NewError(ledger.CategoryCanceled, req.Operation, "not submitted", err)
	}
	ctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	defer cancel()

	result, err := session.Client().Submit(ctx, req.Operation, req.Args...)
	if err == nil {
		o.breaker.RecordSuccess()
		return result, nil
	}
	err = normalize(ModeSubmit, req.Operation, err)
	o.observeFailure(session, err)

	if ledger.Is(err, ledger.CategoryAmbiguousOutcome) {
		var le *ledger.Error
		errors.As(err, &le)
		o.logger.WarnContext(ctx, "ledger transaction outcome unknown",
			"operation", req.Operation,
			"tx_id", le.TxID,
			"identity", session.Identity.ID,
		)
	}
	return nil, err
}

func (o *Orchestrator) evaluate(ctx context.Context, session *gateway.Session, req Request) ([]byte, error) {
	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, o.evaluateTimeout)
	defer cancel()

	maxRetries := o.backoff.MaxRetries
	if o.breaker.IsOpen() {
		maxRetries = 0
	}

	var lastErr error
	delay := o.backoff.InitialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * o.backoff.Multiplier)
			if delay > o.backoff.MaxDelay {
				delay = o.backoff.MaxDelay
			}
			o.metrics.RecordRetry(req.Operation)
			o.logger.DebugContext(ctx, "retrying ledger query",
				"operation", req.Operation,
				"attempt", attempt,
				"error", lastErr,
			)
		}

		result, err := session.Client().Evaluate(ctx, req.Operation, req.Args...)
		if err == nil {
			o.breaker.RecordSuccess()
			return result, nil
		}
		// A caller that went away leaves the session and the breaker untouched.
		if errors.Is(caller.Err(), context.Canceled) {
			return nil, ledger.NewError(ledger.CategoryCanceled, req.Operation, "caller canceled", err)
		}
		lastErr = normalize(ModeEvaluate, req.Operation, err)
		o.observeFailure(session, lastErr)

		if !ledger.IsRetryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// observeFailure flags the session on network failures so it is not pooled,
// and feeds the channel breaker.
func (o *Orchestrator) observeFailure(session *gateway.Session, err error) {
	if !ledger.Is(err, ledger.CategoryNetworkUnavailable) {
		return
	}
	session.MarkBroken()
	if _, change := o.breaker.RecordFailure(); change.Opened {
		o.metrics.RecordBreakerOpen(o.channel)
		o.logger.Warn("ledger circuit breaker opened; query retries suspended", "channel", o.channel)
	}
}

// normalize classifies errors that the connector left unclassified, and
// turns contract "does not exist" rejections on the query path into NotFound.
func normalize(mode Mode, operation string, err error) error {
	var le *ledger.Error
	if errors.As(err, &le) {
		if mode == ModeEvaluate && le.Category == ledger.CategoryTransaction && isMissingKey(le.Reason) {
			return ledger.NewError(ledger.CategoryNotFound, operation, le.Reason, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if mode == ModeSubmit {
			return ledger.Ambiguous(operation, "", err)
		}
		if errors.Is(err, context.Canceled) {
			return ledger.NewError(ledger.CategoryCanceled, operation, "query canceled", err)
		}
		return ledger.NewError(ledger.CategoryNetworkUnavailable, operation, "query deadline exceeded", err)
	}
	return ledger.NewError(ledger.CategoryTransaction, operation, err.Error(), err)
}

func isMissingKey(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "does not exist") || strings.Contains(r, "not found")
}
