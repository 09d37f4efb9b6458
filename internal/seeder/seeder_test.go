package seeder

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/audit"
	certservice "registrar/internal/certificate/service"
	"registrar/internal/ledger/ledgertest"
	recordmodels "registrar/internal/record/models"
	recordservice "registrar/internal/record/service"
	"registrar/internal/storage/cas"
	studentservice "registrar/internal/student/service"
)

func TestSeedAll(t *testing.T) {
	ctx := context.Background()
	stack := ledgertest.NewLedgerStack(t)
	trail := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(trail)

	students := studentservice.New(stack.Orchestrator, studentservice.WithAuditor(publisher))
	records := recordservice.New(stack.Orchestrator, recordservice.WithAuditor(publisher))
	certs := certservice.New(stack.Orchestrator, cas.NewMemory(), certservice.WithAuditor(publisher))
	s := New(students, records, certs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	summary, err := s.SeedAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Students)
	assert.Equal(t, 6, summary.Records)
	assert.Equal(t, 2, summary.Certificates)

	all, err := students.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	pending, err := records.Query(ctx, recordservice.Query{Pending: true})
	require.NoError(t, err)
	require.Len(t, pending.Records, 1)
	assert.Equal(t, "REC-21CS1001-S2", pending.Records[0].RecordID)

	first, err := records.Get(ctx, "REC-21CS1001-S1")
	require.NoError(t, err)
	assert.Equal(t, recordmodels.StatusApproved, first.Status)

	for _, id := range summary.CertificateIDs {
		doc, cert, err := certs.Document(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, doc)
		v, err := certs.Verify(ctx, id, doc)
		require.NoError(t, err)
		assert.True(t, v.Verified(), cert.CertificateID)
	}

	events, err := trail.ListBySubject(ctx, "21CS1001")
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	stack.AssertReleased(t)
}

func TestSeedAllIsNotRepeatable(t *testing.T) {
	ctx := context.Background()
	stack := ledgertest.NewLedgerStack(t)
	students := studentservice.New(stack.Orchestrator)
	records := recordservice.New(stack.Orchestrator)
	certs := certservice.New(stack.Orchestrator, cas.NewMemory())
	s := New(students, records, certs, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := s.SeedAll(ctx)
	require.NoError(t, err)
	_, err = s.SeedAll(ctx)
	assert.ErrorContains(t, err, "failed to seed students")
}
