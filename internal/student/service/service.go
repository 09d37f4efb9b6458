// Package service maps student operations onto the registrar contract.
package service

import (
	"context"
	"log/slog"
	"strings"

	"registrar/internal/audit"
	"registrar/internal/ledger"
	"registrar/internal/ledger/txn"
	"registrar/internal/platform/metrics"
	"registrar/internal/student/models"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

const (
	opCreate       = "CreateStudent"
	opGet          = "GetStudent"
	opList         = "GetAllStudents"
	opUpdateStatus = "UpdateStudentStatus"
	opContact      = "UpdateStudentContactInfo"
	opByDepartment = "QueryStudentsByDepartment"
	opByYear       = "QueryStudentsByYear"
	opByStatus     = "QueryStudentsByStatus"
)

type Ledger interface {
	Run(ctx context.Context, req txn.Request) ([]byte, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

type CreateCommand struct {
	StudentID         string
	Name              string
	Department        string
	EnrollmentYear    int
	Email             string
	AadhaarHash       string
	AdmissionCategory string
}

// Query selects one paginated listing. Exactly one of Department, Year or
// Status is set.
type Query struct {
	Department string
	Year       int
	Status     models.Status
	Bookmark   string
	PageSize   int
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

// Create records a new student and returns the committed record.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Student, error) {
	switch {
	case strings.TrimSpace(cmd.StudentID) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	case strings.TrimSpace(cmd.Name) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	case strings.TrimSpace(cmd.Department) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "department is required")
	case cmd.EnrollmentYear == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "enrollmentYear is required")
	case strings.TrimSpace(cmd.Email) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "email is required")
	}

	args, err := ledger.Args(cmd.StudentID, cmd.Name, cmd.Department, cmd.EnrollmentYear,
		cmd.Email, cmd.AadhaarHash, cmd.AdmissionCategory)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	if _, err := s.submit(ctx, opCreate, args); err != nil {
		s.emit(ctx, audit.ActionStudentCreated, cmd.StudentID, err)
		return nil, ledger.ToDomain(err)
	}
	s.emit(ctx, audit.ActionStudentCreated, cmd.StudentID, nil)
	s.metrics.IncrementStudentsCreated()
	s.logger.InfoContext(ctx, "student created",
		"student_id", cmd.StudentID,
		"department", cmd.Department,
		"request_id", requestcontext.RequestID(ctx),
	)
	return s.Get(ctx, cmd.StudentID)
}

func (s *Service) Get(ctx context.Context, studentID string) (*models.Student, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	}
	result, err := s.evaluate(ctx, opGet, []string{studentID})
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	student, err := ledger.Decode[models.Student](opGet, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return student, nil
}

func (s *Service) List(ctx context.Context) ([]models.Student, error) {
	result, err := s.evaluate(ctx, opList, nil)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	students, err := ledger.DecodeList[models.Student](opList, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return students, nil
}

// UpdateStatus changes enrollment status. Cancellation and withdrawal must
// carry a reason.
func (s *Service) UpdateStatus(ctx context.Context, studentID string, status models.Status, reason string) (*models.Student, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	}
	if !status.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid status '"+string(status)+"'")
	}
	if status.RequiresReason() && strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason required for status change to "+string(status))
	}

	if _, err := s.submit(ctx, opUpdateStatus, []string{studentID, string(status), reason}); err != nil {
		s.emit(ctx, audit.ActionStudentStatusUpdated, studentID, err)
		return nil, ledger.ToDomain(err)
	}
	s.emit(ctx, audit.ActionStudentStatusUpdated, studentID, nil)
	return s.Get(ctx, studentID)
}

// UpdateContact sets phone and personal email; an empty value leaves the
// field unchanged.
func (s *Service) UpdateContact(ctx context.Context, studentID, phone, personalEmail string) (*models.Student, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "studentId is required")
	}
	if phone == "" && personalEmail == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "phone or personalEmail is required")
	}

	if _, err := s.submit(ctx, opContact, []string{studentID, phone, personalEmail}); err != nil {
		s.emit(ctx, audit.ActionStudentContactUpdated, studentID, err)
		return nil, ledger.ToDomain(err)
	}
	s.emit(ctx, audit.ActionStudentContactUpdated, studentID, nil)
	return s.Get(ctx, studentID)
}

// Query returns one page of students filtered by department, year or status.
func (s *Service) Query(ctx context.Context, q Query) (*ledger.Page[models.Student], error) {
	var (
		op     string
		filter any
	)
	set := 0
	if q.Department != "" {
		op, filter = opByDepartment, q.Department
		set++
	}
	if q.Year != 0 {
		op, filter = opByYear, q.Year
		set++
	}
	if q.Status != "" {
		if !q.Status.Valid() {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid status '"+string(q.Status)+"'")
		}
		op, filter = opByStatus, string(q.Status)
		set++
	}
	if set != 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "exactly one of department, year or status is required")
	}

	args, err := ledger.Args(filter, q.Bookmark, ledger.NormalizePageSize(q.PageSize))
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	result, err := s.evaluate(ctx, op, args)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	page, err := ledger.DecodePage[models.Student](op, result)
	if err != nil {
		return nil, ledger.ToDomain(err)
	}
	return page, nil
}

func (s *Service) submit(ctx context.Context, op string, args []string) ([]byte, error) {
	return s.ledger.Run(ctx, txn.Request{
		Operation: op,
		Args:      args,
		Mode:      txn.ModeSubmit,
		Identity:  requestcontext.Identity(ctx),
	})
}

func (s *Service) evaluate(ctx context.Context, op string, args []string) ([]byte, error) {
	return s.ledger.Run(ctx, txn.Request{
		Operation: op,
		Args:      args,
		Mode:      txn.ModeEvaluate,
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
