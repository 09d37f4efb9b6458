package memledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	certmodels "registrar/internal/certificate/models"
	"registrar/internal/ledger"
	recordmodels "registrar/internal/record/models"
	studentmodels "registrar/internal/student/models"
)

var (
	registrar = Caller{ID: "registrar-admin", MSPID: RegistrarMSP}
	verifier  = Caller{ID: "verifier", MSPID: VerifiersMSP}
)

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *Ledger
	now    time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	s.ledger = New(WithClock(func() time.Time { return s.now }))
}

func (s *LedgerSuite) createStudent(roll string) {
	_, err := s.ledger.Submit(s.ctx, registrar, "CreateStudent",
		roll, "Asha Rao", "CSE", "2021", roll+"@student.nitw.ac.in", "aadhaar-hash", "GEN")
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestStudentLifecycle() {
	s.createStudent("21CS001")

	out, err := s.ledger.Evaluate(s.ctx, registrar, "GetStudent", "21CS001")
	s.Require().NoError(err)
	var st studentmodels.Student
	s.Require().NoError(json.Unmarshal(out, &st))
	s.Equal(studentmodels.StatusActive, st.Status)
	s.Equal("registrar-admin", st.CreatedBy)

	_, err = s.ledger.Submit(s.ctx, registrar, "UpdateStudentStatus", "21CS001", "WITHDRAWN", "")
	s.ErrorContains(err, "reason required")

	_, err = s.ledger.Submit(s.ctx, registrar, "UpdateStudentStatus", "21CS001", "GRADUATED", "")
	s.Require().NoError(err)

	_, err = s.ledger.Submit(s.ctx, registrar, "UpdateStudentContactInfo", "21CS001", "+91-9000000000", "")
	s.Require().NoError(err)

	out, err = s.ledger.Evaluate(s.ctx, registrar, "GetStudent", "21CS001")
	s.Require().NoError(err)
	s.Require().NoError(json.Unmarshal(out, &st))
	s.Equal(studentmodels.StatusGraduated, st.Status)
	s.Equal("+91-9000000000", st.Phone)
}

func (s *LedgerSuite) TestDuplicateStudentRejected() {
	s.createStudent("21CS001")
	_, err := s.ledger.Submit(s.ctx, registrar, "CreateStudent",
		"21CS001", "Other Name", "ECE", "2021", "x@student.nitw.ac.in", "h", "GEN")
	s.True(ledger.Is(err, ledger.CategoryTransaction))
	s.ErrorContains(err, "already exists")
}

func (s *LedgerSuite) TestAccessRules() {
	_, err := s.ledger.Submit(s.ctx, verifier, "CreateStudent",
		"21CS002", "Ravi Kumar", "CSE", "2021", "r@student.nitw.ac.in", "h", "GEN")
	s.ErrorContains(err, "unauthorized")

	s.createStudent("21CS002")
	_, err = s.ledger.Evaluate(s.ctx, verifier, "GetStudent", "21CS002")
	s.ErrorContains(err, "unauthorized")
}

func (s *LedgerSuite) TestWritesCannotBeEvaluated() {
	_, err := s.ledger.Evaluate(s.ctx, registrar, "CreateStudent", "a", "b", "c", "2021", "d", "e", "f")
	s.ErrorContains(err, "must be submitted")

	_, err = s.ledger.Evaluate(s.ctx, registrar, "GetStudent")
	s.ErrorContains(err, "incorrect number of params")

	_, err = s.ledger.Evaluate(s.ctx, registrar, "DropTables")
	s.ErrorContains(err, "not found")
}

func (s *LedgerSuite) TestAcademicRecordApprovalComputesCGPA() {
	s.createStudent("21CS001")
	courses := func(grade string) string {
		list := []recordmodels.Course{
			{CourseCode: "CS101", CourseName: "Programming", Credits: 4, Grade: grade},
			{CourseCode: "CS102", CourseName: "Discrete Maths", Credits: 4, Grade: grade},
			{CourseCode: "CS103", CourseName: "Digital Logic", Credits: 4, Grade: grade},
			{CourseCode: "CS104", CourseName: "Physics", Credits: 4, Grade: grade},
		}
		b, _ := json.Marshal(list)
		return string(b)
	}
	_, err := s.ledger.Submit(s.ctx, registrar, "CreateAcademicRecord", "REC-1", "21CS001", "1", "2021", "CSE", courses("S"))
	s.Require().NoError(err)
	_, err = s.ledger.Submit(s.ctx, registrar, "CreateAcademicRecord", "REC-2", "21CS001", "2", "2022", "CSE", courses("B"))
	s.Require().NoError(err)

	_, err = s.ledger.Submit(s.ctx, registrar, "ApproveAcademicRecord", "REC-1")
	s.Require().NoError(err)
	_, err = s.ledger.Submit(s.ctx, registrar, "ApproveAcademicRecord", "REC-2")
	s.Require().NoError(err)
	_, err = s.ledger.Submit(s.ctx, registrar, "ApproveAcademicRecord", "REC-2")
	s.ErrorContains(err, "already approved")

	out, err := s.ledger.Evaluate(s.ctx, registrar, "GetAcademicRecord", "REC-2")
	s.Require().NoError(err)
	var rec recordmodels.AcademicRecord
	s.Require().NoError(json.Unmarshal(out, &rec))
	s.Equal(recordmodels.StatusApproved, rec.Status)
	s.InDelta(8.0, rec.SGPA, 0.0001)
	s.InDelta(9.0, rec.CGPA, 0.0001)

	out, err = s.ledger.Evaluate(s.ctx, registrar, "GetStudentHistory", "21CS001")
	s.Require().NoError(err)
	var history []recordmodels.AcademicRecord
	s.Require().NoError(json.Unmarshal(out, &history))
	s.Len(history, 2)
}

func (s *LedgerSuite) TestRecordValidation() {
	s.createStudent("21CS001")
	_, err := s.ledger.Submit(s.ctx, registrar, "CreateAcademicRecord", "REC-1", "21CS999", "1", "2021", "CSE", "[]")
	s.ErrorContains(err, "does not exist")

	_, err = s.ledger.Submit(s.ctx, registrar, "CreateAcademicRecord", "REC-1", "21CS001", "9", "2021", "CSE", "[]")
	s.ErrorContains(err, "semester")

	light := `[{"courseCode":"CS101","courseName":"Programming","credits":4,"grade":"A"}]`
	_, err = s.ledger.Submit(s.ctx, registrar, "CreateAcademicRecord", "REC-1", "21CS001", "1", "2021", "CSE", light)
	s.ErrorContains(err, "out of range")
}

func (s *LedgerSuite) TestCertificateIssueVerifyRevoke() {
	s.createStudent("21CS001")
	hash := certmodels.DocumentHash([]byte("%PDF-1.7 degree"))
	_, err := s.ledger.Submit(s.ctx, registrar, "IssueCertificate", "CERT-1", "21CS001", "DEGREE", hash, "bafk-cid")
	s.Require().NoError(err)

	_, err = s.ledger.Submit(s.ctx, registrar, "IssueCertificate", "CERT-1", "21CS001", "DEGREE", hash, "bafk-cid")
	s.ErrorContains(err, "already exists")

	out, err := s.ledger.Evaluate(s.ctx, verifier, "VerifyCertificate", "CERT-1", hash)
	s.Require().NoError(err)
	s.Equal("true", string(out))

	out, err = s.ledger.Evaluate(s.ctx, verifier, "VerifyCertificate", "CERT-1", "deadbeef")
	s.Require().NoError(err)
	s.Equal("false", string(out))

	_, err = s.ledger.Submit(s.ctx, registrar, "RevokeCertificate", "CERT-1", "short")
	s.ErrorContains(err, "at least")
	_, err = s.ledger.Submit(s.ctx, registrar, "RevokeCertificate", "CERT-1", "issued in error to wrong student")
	s.Require().NoError(err)

	out, err = s.ledger.Evaluate(s.ctx, verifier, "GetCertificate", "CERT-1")
	s.Require().NoError(err)
	var cert certmodels.Certificate
	s.Require().NoError(json.Unmarshal(out, &cert))
	s.True(cert.Revoked)
	s.Equal(hash, cert.DocumentHash)

	_, err = s.ledger.Evaluate(s.ctx, verifier, "VerifyCertificate", "CERT-1", hash)
	s.ErrorContains(err, "revoked")

	out, err = s.ledger.Evaluate(s.ctx, verifier, "GetCertificatesByStudent", "21CS001")
	s.Require().NoError(err)
	var certs []certmodels.Certificate
	s.Require().NoError(json.Unmarshal(out, &certs))
	s.Len(certs, 1)
}

func (s *LedgerSuite) TestBonafideExpires() {
	s.createStudent("21CS001")
	_, err := s.ledger.Submit(s.ctx, registrar, "IssueCertificate", "BON-1", "21CS001", "BONAFIDE", "h", "cid")
	s.Require().NoError(err)

	s.now = s.now.AddDate(0, 7, 0)
	out, err := s.ledger.Evaluate(s.ctx, verifier, "GetCertificate", "BON-1")
	s.Require().NoError(err)
	var cert certmodels.Certificate
	s.Require().NoError(json.Unmarshal(out, &cert))
	s.False(cert.Verified)
	s.True(cert.Expired(s.now))
}

func (s *LedgerSuite) TestPagination() {
	for i := range 5 {
		s.createStudent(fmt.Sprintf("21CS%03d", i+1))
	}
	out, err := s.ledger.Evaluate(s.ctx, registrar, "QueryStudentsByDepartment", "CSE", "", "2")
	s.Require().NoError(err)
	var page ledger.Page[studentmodels.Student]
	s.Require().NoError(json.Unmarshal(out, &page))
	s.Equal(2, page.RecordCount)
	s.True(page.HasMore)
	s.Equal("21CS002", page.Bookmark)

	var seen []string
	bookmark := ""
	for {
		out, err := s.ledger.Evaluate(s.ctx, registrar, "QueryStudentsByYear", "2021", bookmark, "2")
		s.Require().NoError(err)
		var p ledger.Page[studentmodels.Student]
		s.Require().NoError(json.Unmarshal(out, &p))
		for _, st := range p.Records {
			seen = append(seen, st.StudentID)
		}
		if !p.HasMore {
			break
		}
		bookmark = p.Bookmark
	}
	s.Equal([]string{"21CS001", "21CS002", "21CS003", "21CS004", "21CS005"}, seen)

	out, err = s.ledger.Evaluate(s.ctx, registrar, "QueryPendingRecords", "", "0")
	s.Require().NoError(err)
	s.JSONEq(`{"records":[],"bookmark":"","recordCount":0,"hasMore":false}`, string(out))
}

func (s *LedgerSuite) TestInterceptorInjectsFaults() {
	boom := errors.New("injected")
	s.ledger.SetInterceptor(func(_ context.Context, mode, op string) error {
		if mode == "submit" && op == "IssueCertificate" {
			return boom
		}
		return nil
	})
	_, err := s.ledger.Submit(s.ctx, registrar, "IssueCertificate", "C", "S", "DEGREE", "h", "cid")
	s.ErrorIs(err, boom)
}
