package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"registrar/internal/audit"
	"registrar/internal/ledger"
	"registrar/internal/ledger/ledgertest"
	"registrar/internal/ledger/memledger"
	"registrar/internal/student/models"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	stack  *ledgertest.LedgerStack
	audits *audit.InMemoryStore
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.stack = ledgertest.NewLedgerStack(s.T())
	s.audits = audit.NewInMemoryStore()
	s.svc = New(s.stack.Orchestrator, WithAuditor(audit.NewPublisher(s.audits)))
}

func (s *ServiceSuite) TearDownTest() {
	s.stack.AssertReleased(s.T())
}

func command(id, dept string, year int) CreateCommand {
	return CreateCommand{
		StudentID:         id,
		Name:              "Ananya Rao",
		Department:        dept,
		EnrollmentYear:    year,
		Email:             id + "@student.nitw.ac.in",
		AadhaarHash:       "a1b2c3",
		AdmissionCategory: "GEN",
	}
}

func (s *ServiceSuite) TestCreateAndGet() {
	ctx := context.Background()
	created, err := s.svc.Create(ctx, command("21CS1001", "CSE", 2021))
	s.Require().NoError(err)
	s.Equal(models.StatusActive, created.Status)
	s.Equal(memledger.RegistrarIdentity, created.CreatedBy)

	got, err := s.svc.Get(ctx, "21CS1001")
	s.Require().NoError(err)
	s.Equal("Ananya Rao", got.Name)
	s.Equal(2021, got.EnrollmentYear)

	events, err := s.audits.ListBySubject(ctx, "21CS1001")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionStudentCreated, events[0].Action)
	s.Equal(audit.DecisionSucceeded, events[0].Decision)
}

func (s *ServiceSuite) TestCreateValidation() {
	cmd := command("21CS1001", "CSE", 2021)
	cmd.Email = " "
	_, err := s.svc.Create(context.Background(), cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(int64(0), s.stack.Sessions.Stats().Acquired)
}

func (s *ServiceSuite) TestDuplicateIsRejectedWithContractReason() {
	ctx := context.Background()
	_, err := s.svc.Create(ctx, command("21CS1001", "CSE", 2021))
	s.Require().NoError(err)

	_, err = s.svc.Create(ctx, command("21CS1001", "CSE", 2021))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeTransactionRejected))
	s.Contains(err.Error(), "already exists")

	events, err := s.audits.ListBySubject(ctx, "21CS1001")
	s.Require().NoError(err)
	s.Equal(audit.DecisionFailed, events[0].Decision)
}

func (s *ServiceSuite) TestGetUnknownIsNotFound() {
	_, err := s.svc.Get(context.Background(), "99XX0000")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListEmptyAndPopulated() {
	ctx := context.Background()
	students, err := s.svc.List(ctx)
	s.Require().NoError(err)
	s.NotNil(students)
	s.Empty(students)

	_, err = s.svc.Create(ctx, command("21CS1002", "CSE", 2021))
	s.Require().NoError(err)
	_, err = s.svc.Create(ctx, command("21EC1001", "ECE", 2021))
	s.Require().NoError(err)

	students, err = s.svc.List(ctx)
	s.Require().NoError(err)
	s.Len(students, 2)
	s.Equal("21CS1002", students[0].StudentID)
}

func (s *ServiceSuite) TestUpdateStatus() {
	ctx := context.Background()
	_, err := s.svc.Create(ctx, command("21CS1001", "CSE", 2021))
	s.Require().NoError(err)

	_, err = s.svc.UpdateStatus(ctx, "21CS1001", models.StatusWithdrawn, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "withdrawal needs a reason")

	_, err = s.svc.UpdateStatus(ctx, "21CS1001", models.Status("EXPELLED"), "x")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	updated, err := s.svc.UpdateStatus(ctx, "21CS1001", models.StatusGraduated, "")
	s.Require().NoError(err)
	s.Equal(models.StatusGraduated, updated.Status)

	_, err = s.svc.UpdateStatus(ctx, "99XX0000", models.StatusGraduated, "")
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionRejected), "submit-side missing key stays a rejection")
}

func (s *ServiceSuite) TestUpdateContactKeepsUnsetFields() {
	ctx := context.Background()
	_, err := s.svc.Create(ctx, command("21CS1001", "CSE", 2021))
	s.Require().NoError(err)

	_, err = s.svc.UpdateContact(ctx, "21CS1001", "+91-9000000000", "")
	s.Require().NoError(err)
	updated, err := s.svc.UpdateContact(ctx, "21CS1001", "", "ananya@example.com")
	s.Require().NoError(err)
	s.Equal("+91-9000000000", updated.Phone)
	s.Equal("ananya@example.com", updated.PersonalEmail)

	_, err = s.svc.UpdateContact(ctx, "21CS1001", "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestQueryPagination() {
	ctx := context.Background()
	for i := range 5 {
		_, err := s.svc.Create(ctx, command(fmt.Sprintf("21CS10%02d", i), "CSE", 2021))
		s.Require().NoError(err)
	}
	_, err := s.svc.Create(ctx, command("22EC1001", "ECE", 2022))
	s.Require().NoError(err)

	first, err := s.svc.Query(ctx, Query{Department: "CSE", PageSize: 3})
	s.Require().NoError(err)
	s.Equal(3, first.RecordCount)
	s.True(first.HasMore)
	s.Equal("21CS1002", first.Bookmark)

	second, err := s.svc.Query(ctx, Query{Department: "CSE", PageSize: 3, Bookmark: first.Bookmark})
	s.Require().NoError(err)
	s.Equal(2, second.RecordCount)
	s.False(second.HasMore)
	s.Empty(second.Bookmark)

	byYear, err := s.svc.Query(ctx, Query{Year: 2022})
	s.Require().NoError(err)
	s.Require().Len(byYear.Records, 1)
	s.Equal("22EC1001", byYear.Records[0].StudentID)

	none, err := s.svc.Query(ctx, Query{Status: models.StatusGraduated})
	s.Require().NoError(err)
	s.NotNil(none.Records)
	s.Empty(none.Records)
}

func (s *ServiceSuite) TestQueryNeedsExactlyOneFilter() {
	ctx := context.Background()
	_, err := s.svc.Query(ctx, Query{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.svc.Query(ctx, Query{Department: "CSE", Year: 2021})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = s.svc.Query(ctx, Query{Status: "UNKNOWN"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestVerifierCannotReadStudents() {
	ctx := requestcontext.WithIdentity(context.Background(), memledger.VerifierIdentity)
	_, err := s.svc.List(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeTransactionRejected))
}

func (s *ServiceSuite) TestNetworkFailureIsUnavailable() {
	s.stack.Ledger.SetInterceptor(func(context.Context, string, string) error {
		return ledger.NewError(ledger.CategoryNetworkUnavailable, "", "peer unreachable", nil)
	})
	_, err := s.svc.Get(context.Background(), "21CS1001")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
