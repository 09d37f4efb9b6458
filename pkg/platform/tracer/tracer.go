// Package tracer is a small tracing facade over OpenTelemetry.
//
// Ledger and certificate code depend on this interface, never on the OTel API
// directly, so tests run with the no-op implementation.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanLedgerInvoke      = "ledger.invoke"
	SpanLedgerAcquire     = "ledger.acquire"
	SpanCertificateIssue  = "certificate.issue"
	SpanCertificateVerify = "certificate.verify"
	SpanCASPut            = "cas.put"
)

// Attribute keys.
const (
	AttrOperation   = "ledger.operation"
	AttrMode        = "ledger.mode"
	AttrChannel     = "ledger.channel"
	AttrIdentity    = "ledger.identity"
	AttrAttempt     = "ledger.attempt"
	AttrCategory    = "ledger.error_category"
	AttrTxID        = "ledger.tx_id"
	AttrCertificate = "certificate.id"
	AttrCID         = "cas.cid"
	AttrVerified    = "certificate.verified"
)

// Event names.
const (
	EventRetry        = "ledger.retry"
	EventBreakerOpen  = "ledger.breaker_open"
	EventDocumentKept = "cas.document_stored"
)
