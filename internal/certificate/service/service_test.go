package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"registrar/internal/audit"
	"registrar/internal/certificate/models"
	"registrar/internal/certificate/store"
	"registrar/internal/ledger"
	"registrar/internal/ledger/ledgertest"
	"registrar/internal/ledger/memledger"
	"registrar/internal/storage/cas"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
	"registrar/pkg/testutil"
)

// ServiceSuite exercises the service against the in-memory contract and
// content store, through the real connection manager and orchestrator.
type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	stack  *ledgertest.LedgerStack
	blobs  *cas.Memory
	cache  *store.MemoryCache
	audits *audit.InMemoryStore
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.stack = ledgertest.NewLedgerStack(s.T(), memledger.WithClock(clock))
	s.blobs = cas.NewMemory()
	s.cache = store.NewMemoryCache(time.Minute).WithClock(clock)
	s.audits = audit.NewInMemoryStore()
	s.svc = s.newService()
	s.createStudent("S1")
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithCache(s.cache),
		WithAuditor(audit.NewPublisher(s.audits)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
		WithDefaultIdentity(memledger.RegistrarIdentity),
	}
	return New(s.stack.Orchestrator, s.blobs, append(base, opts...)...)
}

func (s *ServiceSuite) createStudent(roll string) {
	s.stack.SeedStudent(s.T(), roll, "CSE")
}

func (s *ServiceSuite) issue(id string, doc []byte) *models.Certificate {
	cert, err := s.svc.Issue(s.ctx, IssueCommand{CertificateID: id, StudentID: "S1", Type: "degree", Document: doc})
	s.Require().NoError(err)
	return cert
}

func (s *ServiceSuite) TestIssueAndVerifyScenario() {
	doc := []byte("0123456789")

	cert := s.issue("CERT-1", doc)
	s.Equal("CERT-1", cert.CertificateID)
	s.Equal(models.TypeDegree, cert.Type)
	s.Len(cert.DocumentHash, 64)
	s.Equal(models.DocumentHash(doc), cert.DocumentHash)
	s.NotEmpty(cert.ContentID)
	s.Equal(memledger.RegistrarIdentity, cert.IssuedBy)
	s.Equal(s.now, cert.IssueDate)

	v, err := s.svc.Verify(s.ctx, "CERT-1", doc)
	s.Require().NoError(err)
	s.True(v.Verified())
	s.Equal(models.ReasonMatch, v.Reason)

	flipped := append([]byte(nil), doc...)
	flipped[4] ^= 0x01
	v, err = s.svc.Verify(s.ctx, "CERT-1", flipped)
	s.Require().NoError(err)
	s.False(v.Verified())
	s.Equal(models.ReasonHashMismatch, v.Reason)

	_, err = s.svc.Verify(s.ctx, "CERT-404", doc)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)

	s.stack.AssertReleased(s.T())
}

func (s *ServiceSuite) TestHashBindingAcrossDocuments() {
	docs := [][]byte{
		{0x00},
		[]byte("%PDF-1.7 transcript"),
		make([]byte, 64*1024),
	}
	for i, doc := range docs {
		id := fmt.Sprintf("CERT-HB-%d", i)
		cert := s.issue(id, doc)

		stored, err := cas.Parse(cert.ContentID)
		s.Require().NoError(err)
		bytesAtCID, err := s.blobs.Get(s.ctx, stored)
		s.Require().NoError(err)
		s.Equal(models.DocumentHash(bytesAtCID), cert.DocumentHash, "hash must cover exactly the stored bytes")

		v, err := s.svc.Verify(s.ctx, id, doc)
		s.Require().NoError(err)
		s.True(v.Verified(), "document %d", i)
	}
}

func (s *ServiceSuite) TestTamperDetection() {
	s.issue("CERT-T", []byte("original degree"))

	for _, forged := range [][]byte{
		[]byte("original degreE"),
		[]byte("original degree "),
		[]byte("original"),
	} {
		v, err := s.svc.Verify(s.ctx, "CERT-T", forged)
		s.Require().NoError(err)
		s.Equal(models.OutcomeNotVerified, v.Outcome)
		s.NotEqual(v.DocumentHash, v.PresentedHash)
	}
}

func (s *ServiceSuite) TestVerifyRecomputesDigest() {
	doc := []byte("genuine")
	cert := s.issue("CERT-H", doc)

	// Presenting the recorded digest as if it were the document must not verify.
	v, err := s.svc.Verify(s.ctx, "CERT-H", []byte(cert.DocumentHash))
	s.Require().NoError(err)
	s.False(v.Verified())
	s.Equal(models.DocumentHash([]byte(cert.DocumentHash)), v.PresentedHash)
}

func (s *ServiceSuite) TestIssueValidation() {
	cases := []IssueCommand{
		{StudentID: "S1", Type: "DEGREE", Document: []byte("x")},
		{CertificateID: "C", Type: "DEGREE", Document: []byte("x")},
		{CertificateID: "C", StudentID: "S1", Document: []byte("x")},
		{CertificateID: "C", StudentID: "S1", Type: "DEGREE"},
	}
	for _, cmd := range cases {
		_, err := s.svc.Issue(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "cmd %+v: %v", cmd, err)
	}
	s.Equal(int64(0), s.stack.Sessions.Stats().Acquired, "validation failures must not reach the ledger")

	_, err := s.svc.Verify(s.ctx, "CERT-1", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestDuplicateIssueIsRejected() {
	s.issue("CERT-D", []byte("first"))
	_, err := s.svc.Issue(s.ctx, IssueCommand{CertificateID: "CERT-D", StudentID: "S1", Type: "DEGREE", Document: []byte("second")})
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionRejected))
	s.Contains(err.Error(), "already exists")

	// The losing document stays in the content store.
	id, cidErr := cas.CIDFor([]byte("second"))
	s.Require().NoError(cidErr)
	ok, hasErr := s.blobs.Has(s.ctx, id)
	s.Require().NoError(hasErr)
	s.True(ok)
}

func (s *ServiceSuite) TestConcurrentDuplicateIssue() {
	result := testutil.RunConcurrent(2, func(idx int) error {
		_, err := s.svc.Issue(s.ctx, IssueCommand{
			CertificateID: "CERT-RACE",
			StudentID:     "S1",
			Type:          "DEGREE",
			Document:      []byte(fmt.Sprintf("document-%d", idx)),
		})
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(1), result.Rejections)
	s.Equal(int32(0), result.Errors)
	s.stack.AssertReleased(s.T())
}

func (s *ServiceSuite) TestSessionsReleasedOnEveryPath() {
	s.issue("CERT-R", []byte("doc"))
	_, _ = s.svc.Verify(s.ctx, "CERT-R", []byte("doc"))
	_, _ = s.svc.Verify(s.ctx, "missing", []byte("doc"))
	_, _ = s.svc.Issue(s.ctx, IssueCommand{CertificateID: "CERT-R", StudentID: "S1", Type: "DEGREE", Document: []byte("doc")})
	_, _ = s.svc.Issue(s.ctx, IssueCommand{CertificateID: "CERT-X", StudentID: "nobody", Type: "DEGREE", Document: []byte("doc")})

	s.stack.Ledger.SetInterceptor(func(context.Context, string, string) error {
		return ledger.NewError(ledger.CategoryNetworkUnavailable, "", "peer unreachable", errors.New("dial tcp: refused"))
	})
	_, err := s.svc.Verify(s.ctx, "CERT-R", []byte("doc"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	_, err = s.svc.Issue(s.ctx, IssueCommand{CertificateID: "CERT-N", StudentID: "S1", Type: "DEGREE", Document: []byte("doc")})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	s.stack.AssertReleased(s.T())
}

func (s *ServiceSuite) TestRevokedCertificateDoesNotVerify() {
	doc := []byte("revocable")
	s.issue("CERT-REV", doc)

	_, err := s.svc.Revoke(s.ctx, "CERT-REV", "short")
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionRejected))

	cert, err := s.svc.Revoke(s.ctx, "CERT-REV", "issued in error by examination cell")
	s.Require().NoError(err)
	s.True(cert.Revoked)

	v, err := s.svc.Verify(s.ctx, "CERT-REV", doc)
	s.Require().NoError(err)
	s.False(v.Verified())
	s.Equal(models.ReasonRevoked, v.Reason)

	events, err := s.audits.ListBySubject(s.ctx, "CERT-REV")
	s.Require().NoError(err)
	s.Equal(audit.ActionCertificateVerified, events[0].Action)
	s.Equal(audit.DecisionNotVerified, events[0].Decision)
}

func (s *ServiceSuite) TestExpiredBonafideDoesNotVerify() {
	doc := []byte("bonafide letter")
	cert, err := s.svc.Issue(s.ctx, IssueCommand{CertificateID: "CERT-BF", StudentID: "S1", Type: "bonafide", Document: doc})
	s.Require().NoError(err)
	s.Equal(s.now.AddDate(0, models.BonafideMonths, 0), cert.ExpiryDate)

	s.now = s.now.AddDate(0, models.BonafideMonths, 1)
	v, err := s.svc.Verify(s.ctx, "CERT-BF", doc)
	s.Require().NoError(err)
	s.Equal(models.ReasonExpired, v.Reason)
}

func (s *ServiceSuite) TestGetUsesCacheAndRevokeInvalidates() {
	s.issue("CERT-C", []byte("cached"))

	first, err := s.svc.Get(s.ctx, "CERT-C")
	s.Require().NoError(err)
	acquired := s.stack.Sessions.Stats().Acquired

	second, err := s.svc.Get(s.ctx, "CERT-C")
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(acquired, s.stack.Sessions.Stats().Acquired, "cache hit must not reach the ledger")

	_, err = s.svc.Revoke(s.ctx, "CERT-C", "duplicate issue for the same semester")
	s.Require().NoError(err)
	after, err := s.svc.Get(s.ctx, "CERT-C")
	s.Require().NoError(err)
	s.True(after.Revoked)
}

func (s *ServiceSuite) TestListByStudent() {
	list, err := s.svc.ListByStudent(s.ctx, "S1")
	s.Require().NoError(err)
	s.NotNil(list)
	s.Empty(list)

	s.issue("CERT-L1", []byte("a"))
	s.issue("CERT-L2", []byte("b"))
	list, err = s.svc.ListByStudent(s.ctx, "S1")
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *ServiceSuite) TestDocumentRoundTrip() {
	doc := []byte("%PDF-1.4 provisional")
	s.issue("CERT-DOC", doc)

	data, cert, err := s.svc.Document(s.ctx, "CERT-DOC")
	s.Require().NoError(err)
	s.Equal(doc, data)
	s.Equal("CERT-DOC", cert.CertificateID)
}

func (s *ServiceSuite) TestDocumentMissingFromStore() {
	doc := []byte("lost")
	cert := s.issue("CERT-LOST", doc)

	// A fresh store that never saw the upload.
	svc := New(s.stack.Orchestrator, cas.NewMemory())
	_, _, err := svc.Document(s.ctx, cert.CertificateID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCrossCheckAgreesWithLocalDecision() {
	svc := s.newService(WithLedgerCrossCheck(true))
	doc := []byte("cross checked")
	_, err := svc.Issue(s.ctx, IssueCommand{CertificateID: "CERT-X1", StudentID: "S1", Type: "DEGREE", Document: doc})
	s.Require().NoError(err)

	v, err := svc.Verify(s.ctx, "CERT-X1", doc)
	s.Require().NoError(err)
	s.True(v.Verified())

	v, err = svc.Verify(s.ctx, "CERT-X1", []byte("other"))
	s.Require().NoError(err)
	s.False(v.Verified())
}

func (s *ServiceSuite) TestIssueRunsAsRequestIdentity() {
	ctx := requestcontext.WithIdentity(s.ctx, memledger.VerifierIdentity)
	_, err := s.svc.Issue(ctx, IssueCommand{CertificateID: "CERT-V", StudentID: "S1", Type: "DEGREE", Document: []byte("x")})
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionRejected), "verifiers may not issue: %v", err)

	_, err = s.svc.Issue(requestcontext.WithIdentity(s.ctx, "ghost"),
		IssueCommand{CertificateID: "CERT-G", StudentID: "S1", Type: "DEGREE", Document: []byte("x")})
	s.True(dErrors.HasCode(err, dErrors.CodeIdentityNotFound))
}
