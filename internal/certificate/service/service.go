// Package service binds certificate documents to on-chain records.
//
// Issue stores the document bytes in the content-addressed store first and
// only then submits the record carrying their SHA-256. Verify recomputes the
// digest of the presented bytes and compares it with the on-chain digest; it
// never accepts a digest from the caller and never reads a cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"registrar/internal/audit"
	"registrar/internal/certificate/models"
	"registrar/internal/certificate/store"
	"registrar/internal/ledger"
	"registrar/internal/ledger/txn"
	"registrar/internal/platform/metrics"
	"registrar/internal/storage/cas"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/middleware/requesttime"
	"registrar/pkg/platform/tracer"
	"registrar/pkg/requestcontext"
)

// Ledger operation names exposed by the registrar contract.
const (
	opIssue     = "IssueCertificate"
	opGet       = "GetCertificate"
	opVerify    = "VerifyCertificate"
	opRevoke    = "RevokeCertificate"
	opByStudent = "GetCertificatesByStudent"
)

const defaultStoreTimeout = 30 * time.Second

// Ledger runs one contract operation with session handling included.
type Ledger interface {
	Run(ctx context.Context, req txn.Request) ([]byte, error)
}

// Cache holds recently read certificate records for Get.
// Get returns store.ErrCacheMiss when nothing fresh is cached.
type Cache interface {
	Get(ctx context.Context, certificateID string) (*models.Certificate, error)
	Set(ctx context.Context, cert *models.Certificate) error
	Delete(ctx context.Context, certificateID string) error
}

// AuditPublisher records certificate lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// IssueCommand carries the inputs of Issue. Document is the exact byte
// sequence that will be stored and hashed.
type IssueCommand struct {
	CertificateID string
	StudentID     string
	Type          string
	Document      []byte
}

type Service struct {
	ledger          Ledger
	blobs           cas.Store
	cache           Cache
	auditor         AuditPublisher
	logger          *slog.Logger
	tracer          tracer.Tracer
	metrics         *metrics.Metrics
	now             func() time.Time
	storeTimeout    time.Duration
	defaultIdentity string
	crossCheck      bool
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithStoreTimeout bounds each content store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithDefaultIdentity names the issuer recorded when the request carries no
// identity of its own.
func WithDefaultIdentity(id string) Option {
	return func(s *Service) {
		s.defaultIdentity = id
	}
}

// WithLedgerCrossCheck makes Verify also ask the contract to compare digests
// and fail loudly when the two answers differ.
func WithLedgerCrossCheck(enabled bool) Option {
	return func(s *Service) {
		s.crossCheck = enabled
	}
}

func New(l Ledger, blobs cas.Store, opts ...Option) *Service {
	s := &Service{
		ledger:       l,
		blobs:        blobs,
		logger:       slog.Default(),
		tracer:       tracer.NewNoop(),
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue stores the document, then records its digest and content identifier
// on the ledger. A document stored for a submit that then fails is left in
// place and logged; content addressing makes a retry reuse it.
func (s *Service) Issue(ctx context.Context, cmd IssueCommand) (cert *models.Certificate, err error) {
	certType := models.ParseType(cmd.Type)
	switch {
	case strings.TrimSpace(cmd.CertificateID) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "certificateId is required")
	case strings.TrimSpace(cmd.StudentID) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	case certType == "":
		return nil, dErrors.New(dErrors.CodeValidation, "type is required")
	case len(cmd.Document) == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "document is required")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateIssue,
		tracer.String(tracer.AttrCertificate, cmd.CertificateID),
	)
	defer func() { span.End(err) }()

	contentID, err := s.put(ctx, cmd.Document)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store certificate document",
			"certificate_id", cmd.CertificateID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "document storage unavailable")
	}
	span.SetAttributes(tracer.String(tracer.AttrCID, contentID))

	docHash := models.DocumentHash(cmd.Document)
	args, err := ledger.Args(cmd.CertificateID, cmd.StudentID, string(certType), docHash, contentID)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}

	issuer := s.identity(ctx)
	issuedAt, pinned := requesttime.Pinned(ctx)
	if !pinned {
		issuedAt = s.now()
	}
	issuedAt = issuedAt.UTC()
	result, err := s.ledger.Run(ctx, txn.Request{
		Operation: opIssue,
		Args:      args,
		Mode:      txn.ModeSubmit,
		Identity:  requestcontext.Identity(ctx),
	})
	if err != nil {
		span.AddEvent(tracer.EventDocumentKept, tracer.String(tracer.AttrCID, contentID))
		s.logger.WarnContext(ctx, "document stored but certificate not recorded",
			"certificate_id", cmd.CertificateID,
			"cid", contentID,
			"category", string(ledger.CategoryOf(err)),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		s.emit(ctx, audit.ActionCertificateIssued, cmd.CertificateID, decisionFor(err), err.Error())
		return nil, ledger.ToDomain(err)
	}

	if len(result) > 0 {
		cert, err = ledger.Decode[models.Certificate](opIssue, result)
		if err != nil {
			return nil, ledger.ToDomain(err)
		}
	} else {
		cert = &models.Certificate{
			CertificateID: cmd.CertificateID,
			StudentID:     cmd.StudentID,
			Type:          certType,
			IssueDate:     issuedAt,
			DocumentHash:  docHash,
			ContentID:     contentID,
			IssuedBy:      issuer,
			Verified:      true,
		}
		if certType == models.TypeBonafide {
			cert.ExpiryDate = issuedAt.AddDate(0, models.BonafideMonths, 0)
		}
	}

	s.metrics.IncrementIssued(string(cert.Type), len(cmd.Document))
	s.emit(ctx, audit.ActionCertificateIssued, cmd.CertificateID, audit.DecisionSucceeded, "")
	s.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", cert.CertificateID,
		"student_id", cert.StudentID,
		"cid", cert.ContentID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return cert, nil
}

// Verify decides whether document is the one recorded for certificateID.
func (s *Service) Verify(ctx context.Context, certificateID string, document []byte) (v *models.Verification, err error) {
	if strings.TrimSpace(certificateID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "certificateId is required")
	}
	if len(document) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document is required")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanCertificateVerify,
		tracer.String(tracer.AttrCertificate, certificateID),
	)
	defer func() { span.End(err) }()

	cert, err := s.fetch(ctx, certificateID)
	if err != nil {
		return nil, err
	}

	presented := models.DocumentHash(document)
	match := models.HashesEqual(presented, strings.ToLower(cert.DocumentHash))
	now := s.now()

	v = &models.Verification{
		CertificateID: cert.CertificateID,
		StudentID:     cert.StudentID,
		Type:          cert.Type,
		DocumentHash:  cert.DocumentHash,
		PresentedHash: presented,
		CheckedAt:     now.UTC(),
		Outcome:       models.OutcomeNotVerified,
	}
	switch {
	case !match:
		v.Reason = models.ReasonHashMismatch
	case cert.Revoked:
		v.Reason = models.ReasonRevoked
	case cert.Expired(now):
		v.Reason = models.ReasonExpired
	default:
		v.Outcome = models.OutcomeVerified
		v.Reason = models.ReasonMatch
	}

	if s.crossCheck && (v.Reason == models.ReasonMatch || v.Reason == models.ReasonHashMismatch) {
		if err := s.crossCheckLedger(ctx, certificateID, presented, match); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(tracer.Bool(tracer.AttrVerified, v.Verified()))
	s.metrics.IncrementVerification(string(v.Outcome), string(v.Reason))
	decision := audit.DecisionNotVerified
	if v.Verified() {
		decision = audit.DecisionVerified
	}
	s.emit(ctx, audit.ActionCertificateVerified, certificateID, decision, string(v.Reason))
	return v, nil
}

func (s *Service) crossCheckLedger(ctx context.Context, certificateID, presented string, localMatch bool) error {
	args, err := ledger.Args(certificateID, presented)
	if err != nil {
		return ledger.ToDomain(err)
	}
	result, err := s.ledger.Run(ctx, txn.Request{
		Operation: opVerify,
		Args:      args,
		Mode:      txn.ModeEvaluate,
		Identity:  requestcontext.Identity(ctx),
	})
	if err != nil {
		return ledger.ToDomain(err)
	}
	onChain, err := ledger.Decode[bool](opVerify, result)
	if err != nil {
		return ledger.ToDomain(err)
	}
	if *onChain != localMatch {
		s.logger.ErrorContext(ctx, "ledger verification disagrees with local digest comparison",
			"certificate_id", certificateID,
			"local_match", localMatch,
			"ledger_match", *onChain,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodeInternal, "verification results disagree")
	}
	return nil
}

// Get returns a certificate record, served from the cache when fresh.
func (s *Service) Get(ctx context.Context, certificateID string) (*models.Certificate, error) {
	if strings.TrimSpace(certificateID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "certificateId is required")
	}
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, certificateID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "certificate cache read failed",
				"certificate_id", certificateID,
				"error", err,
			)
		}
	}

	cert, err := s.fetch(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cert); err != nil {
			s.logger.WarnContext(ctx, "certificate cache write failed",
				"certificate_id", certificateID,
				"error", err,
			)
		}
	}
	return cert, nil
}

// ListByStudent returns every certificate issued to a student.
func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]models.Certificate, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	}
	result, err := s.ledger.Run(ctx, txn.Request{
		Operation: opByStudent,
		Args:      []string{studentID},
		Mode:      txn.ModeEvaluate,
		Identity:  requestcontext.Identity(ctx),
	})
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	certs, err := ledger.DecodeList[models.Certificate](opByStudent, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return certs, nil
}

// Revoke marks a certificate revoked on the ledger and returns the updated record.
func (s *Service) Revoke(ctx context.Context, certificateID, reason string) (*models.Certificate, error) {
	if strings.TrimSpace(certificateID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "certificateId is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	_, err := s.ledger.Run(ctx, txn.Request{
		Operation: opRevoke,
		Args:      []string{certificateID, reason},
		Mode:      txn.ModeSubmit,
		Identity:  requestcontext.Identity(ctx),
	})
	if err != nil {
		s.emit(ctx, audit.ActionCertificateRevoked, certificateID, decisionFor(err), err.Error())
		return nil, ledger.ToDomain(err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, certificateID); err != nil {
			s.logger.WarnContext(ctx, "certificate cache invalidation failed",
				"certificate_id", certificateID,
				"error", err,
			)
		}
	}
	s.metrics.IncrementRevoked()
	s.emit(ctx, audit.ActionCertificateRevoked, certificateID, audit.DecisionSucceeded, reason)
	return s.fetch(ctx, certificateID)
}

// Document returns the stored bytes of a certificate after checking them
// against the on-chain digest.
func (s *Service) Document(ctx context.Context, certificateID string) ([]byte, *models.Certificate, error) {
	if strings.TrimSpace(certificateID) == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "certificateId is required")
	}
	cert, err := s.fetch(ctx, certificateID)
	if err != nil {
		return nil, nil, err
	}
	id, err := cas.Parse(cert.ContentID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "certificate has an invalid content identifier")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	data, err := s.blobs.Get(storeCtx, id)
	if err != nil {
		if cas.IsNotFound(err) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeNotFound, "certificate document not found in content store")
		}
		if errors.Is(err, cas.ErrCIDMismatch) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "content store returned corrupt data")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "document storage unavailable")
	}
	if !models.HashesEqual(models.DocumentHash(data), strings.ToLower(cert.DocumentHash)) {
		s.logger.ErrorContext(ctx, "stored document does not match recorded digest",
			"certificate_id", certificateID,
			"cid", cert.ContentID,
		)
		return nil, nil, dErrors.New(dErrors.CodeInternal, "stored document does not match the recorded digest")
	}
	return data, cert, nil
}

func (s *Service) fetch(ctx context.Context, certificateID string) (*models.Certificate, error) {
	result, err := s.ledger.Run(ctx, txn.Request{
		Operation: opGet,
		Args:      []string{certificateID},
		Mode:      txn.ModeEvaluate,
		Identity:  requestcontext.Identity(ctx),
	})
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	cert, err := ledger.Decode[models.Certificate](opGet, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return cert, nil
}

func (s *Service) put(ctx context.Context, data []byte) (string, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCASPut)
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	id, err := s.blobs.Put(storeCtx, data)
	span.End(err)
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	return id.String(), nil
}

func (s *Service) identity(ctx context.Context) string {
	if id := requestcontext.Identity(ctx); id != "" {
		return id
	}
	return s.defaultIdentity
}

func (s *Service) emit(ctx context.Context, action audit.Action, subject string, decision audit.Decision, reason string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, audit.Event{
		Identity: s.identity(ctx),
		Subject:  subject,
		Action:   action,
		Decision: decision,
		Reason:   reason,
	})
}

func decisionFor(err error) audit.Decision {
	if ledger.Is(err, ledger.CategoryAmbiguousOutcome) {
		return audit.DecisionAmbiguous
	}
	return audit.DecisionFailed
}
