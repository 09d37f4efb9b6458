//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrar/internal/audit"
	"registrar/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = New(s.pg.DB)
}

func (s *StoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background()))
}

func (s *StoreSuite) TestAppendAndListNewestFirst() {
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: base,
		Identity:  "registrar-admin",
		Subject:   "CERT-1",
		Action:    audit.ActionCertificateIssued,
		Decision:  audit.DecisionSucceeded,
		RequestID: "req-1",
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: base.Add(time.Minute),
		Identity:  "verifier",
		Subject:   "CERT-1",
		Action:    audit.ActionCertificateVerified,
		Decision:  audit.DecisionNotVerified,
		Reason:    "hash_mismatch",
		ClientIP:  "203.0.113.0",
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: base,
		Subject:   "CERT-2",
		Action:    audit.ActionCertificateIssued,
		Decision:  audit.DecisionSucceeded,
	}))

	events, err := s.store.ListBySubject(ctx, "CERT-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionCertificateVerified, events[0].Action)
	s.Equal("hash_mismatch", events[0].Reason)
	s.Equal("203.0.113.0", events[0].ClientIP)
	s.Equal(audit.ActionCertificateIssued, events[1].Action)
	s.True(base.Equal(events[1].Timestamp))
}

func (s *StoreSuite) TestListUnknownSubjectIsEmpty() {
	events, err := s.store.ListBySubject(context.Background(), "CERT-none")
	s.Require().NoError(err)
	s.Empty(events)
}
