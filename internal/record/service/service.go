// Package service maps semester academic records onto the registrar contract.
package service

import (
	"context"
	"log/slog"
	"strings"

	"registrar/internal/audit"
	"registrar/internal/ledger"
	"registrar/internal/ledger/txn"
	"registrar/internal/platform/metrics"
	"registrar/internal/record/models"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

const (
	opCreate     = "CreateAcademicRecord"
	opGet        = "GetAcademicRecord"
	opApprove    = "ApproveAcademicRecord"
	opHistory    = "GetStudentHistory"
	opBySemester = "QueryRecordsBySemester"
	opByStatus   = "QueryRecordsByStatus"
	opPending    = "QueryPendingRecords"
)

type Ledger interface {
	Run(ctx context.Context, req txn.Request) ([]byte, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// CreateCommand carries one semester's results. Grades and credits are
// checked by the contract, which also computes SGPA.
type CreateCommand struct {
	RecordID   string
	StudentID  string
	Semester   int
	Year       int
	Department string
	Courses    []models.Course
}

// Query selects one paginated listing: by Semester, by Status, or Pending.
type Query struct {
	Semester int
	Status   models.Status
	Pending  bool
	Bookmark string
	PageSize int
}

type Service struct {
	ledger  Ledger
	auditor AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(l Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create submits a DRAFT record and returns it as committed.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.AcademicRecord, error) {
	switch {
	case strings.TrimSpace(cmd.RecordID) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "recordId is required")
	case strings.TrimSpace(cmd.StudentID) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	case cmd.Semester == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "semester is required")
	case cmd.Year == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "year is required")
	case strings.TrimSpace(cmd.Department) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "department is required")
	case len(cmd.Courses) == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "at least one course is required")
	}

	args, err := ledger.Args(cmd.RecordID, cmd.StudentID, cmd.Semester, cmd.Year, cmd.Department, cmd.Courses)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	if _, err := s.run(ctx, opCreate, txn.ModeSubmit, args); err != nil {
		s.emit(ctx, audit.ActionRecordCreated, cmd.RecordID, err)
		return nil, ledger.ToDomain(err)
	}
	s.emit(ctx, audit.ActionRecordCreated, cmd.RecordID, nil)
	s.metrics.IncrementRecordsCreated()
	s.logger.InfoContext(ctx, "academic record created",
		"record_id", cmd.RecordID,
		"student_id", cmd.StudentID,
		"semester", cmd.Semester,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.Get(ctx, cmd.RecordID)
}

func (s *Service) Get(ctx context.Context, recordID string) (*models.AcademicRecord, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "recordId is required")
	}
	result, err := s.run(ctx, opGet, txn.ModeEvaluate, []string{recordID})
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	record, err := ledger.Decode[models.AcademicRecord](opGet, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return record, nil
}

// Approve marks a record APPROVED; the contract recomputes CGPA over the
// student's approved semesters.
func (s *Service) Approve(ctx context.Context, recordID string) (*models.AcademicRecord, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "recordId is required")
	}
	if _, err := s.run(ctx, opApprove, txn.ModeSubmit, []string{recordID}); err != nil {
		s.emit(ctx, audit.ActionRecordApproved, recordID, err)
		return nil, ledger.ToDomain(err)
	}
	s.emit(ctx, audit.ActionRecordApproved, recordID, nil)
	s.metrics.IncrementRecordsApproved()
	return s.Get(ctx, recordID)
}

// History returns every record of a student ordered by record ID.
func (s *Service) History(ctx context.Context, studentID string) ([]models.AcademicRecord, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	}
	result, err := s.run(ctx, opHistory, txn.ModeEvaluate, []string{studentID})
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	records, err := ledger.DecodeList[models.AcademicRecord](opHistory, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return records, nil
}

func (s *Service) Query(ctx context.Context, q Query) (*ledger.Page[models.AcademicRecord], error) {
	set := 0
	for _, on := range []bool{q.Semester != 0, q.Status != "", q.Pending} {
		if on {
			set++
		}
	}
	if set != 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "exactly one of semester, status or pending is required")
	}

	size := ledger.NormalizePageSize(q.PageSize)
	var (
		op   string
		args []string
		err  error
	)
	switch {
	case q.Semester != 0:
		op = opBySemester
		args, err = ledger.Args(q.Semester, q.Bookmark, size)
	case q.Status != "":
		if !q.Status.Valid() {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid status '"+string(q.Status)+"'")
		}
		op = opByStatus
		args, err = ledger.Args(string(q.Status), q.Bookmark, size)
	default:
		op = opPending
		args, err = ledger.Args(q.Bookmark, size)
	}
	if err != nil {
		return nil, ledger.ToDomain(err)
	}

	result, err := s.run(ctx, op, txn.ModeEvaluate, args)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	page, err := ledger.DecodePage[models.AcademicRecord](op, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return page, nil
}

func (s *Service) run(ctx context.Context, op string, mode txn.Mode, args []string) ([]byte, error) {
	return s.ledger.Run(ctx, txn.Request{
		Operation: op,
		Args:      args,
		Mode:      mode,
		Identity:  requestcontext.Identity(ctx),
	})
}

func (s *Service) emit(ctx context.Context, action audit.Action, subject string, err error) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Identity: requestcontext.Identity(ctx),
		Subject:  subject,
		Action:   action,
		Decision: audit.DecisionSucceeded,
	}
	if err != nil {
		event.Decision = audit.DecisionFailed
		if ledger.Is(err, ledger.CategoryAmbiguousOutcome) {
			event.Decision = audit.DecisionAmbiguous
		}
		event.Reason = err.Error()
	}
	s.auditor.Emit(ctx, event)
}
