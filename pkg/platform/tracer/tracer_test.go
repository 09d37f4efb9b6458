package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"registrar/pkg/platform/tracer"
)

func TestNoopTracerReturnsContextUnchanged(t *testing.T) {
	ctx := context.Background()
	got, span := tracer.NewNoop().Start(ctx, tracer.SpanLedgerInvoke, tracer.String(tracer.AttrOperation, "GetStudent"))
	assert.Equal(t, ctx, got)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Bool(tracer.AttrVerified, true))
	span.AddEvent(tracer.EventRetry, tracer.Int64(tracer.AttrAttempt, 2))
	span.End(errors.New("boom"))
}

func TestOTelTracerWithNoopProvider(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))
	_, span := tr.Start(context.Background(), tracer.SpanCertificateIssue,
		tracer.String(tracer.AttrCertificate, "CERT-1"),
		tracer.Duration("elapsed", 1500*time.Millisecond),
	)
	span.SetAttributes(tracer.Attribute{Key: "ignored", Value: struct{}{}})
	span.End(nil)
}
