package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"registrar/internal/ledger"
	"registrar/internal/student/handler/mocks"
	"registrar/internal/student/models"
	"registrar/internal/student/service"
	dErrors "registrar/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func (s *HandlerSuite) TestCreateTrimsAndReturns201() {
	s.service.EXPECT().Create(gomock.Any(), service.CreateCommand{
		StudentID:         "21cs1001",
		Name:              "Ananya Rao",
		Department:        "cse",
		EnrollmentYear:    2021,
		Email:             "ananya@student.nitw.ac.in",
		AdmissionCategory: "GEN",
	}).Return(&models.Student{StudentID: "21CS1001", Status: models.StatusActive}, nil)

	rec := s.do(http.MethodPost, "/api/students", `{
		"studentId": " 21cs1001 ", "name": "Ananya Rao", "department": "cse",
		"enrollmentYear": 2021, "email": "Ananya@Student.NITW.ac.in", "admissionCategory": "GEN"
	}`)

	s.Equal(http.StatusCreated, rec.Code)
	var got models.Student
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("21CS1001", got.StudentID)
}

func (s *HandlerSuite) TestCreateValidation() {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"studentId":`, http.StatusBadRequest},
		{"missing email", `{"studentId":"21CS1001","name":"Ananya","department":"CSE","enrollmentYear":2021}`, http.StatusBadRequest},
		{"bad email", `{"studentId":"21CS1001","name":"Ananya","department":"CSE","enrollmentYear":2021,"email":"nope"}`, http.StatusBadRequest},
		{"short roll number", `{"studentId":"21C","name":"Ananya","department":"CSE","enrollmentYear":2021,"email":"a@b.in"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/api/students", tt.body)
			s.Equal(tt.code, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestCreateDuplicateIs409WithReason() {
	s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeTransactionRejected, "student with roll number 21CS1001 already exists"))

	rec := s.do(http.MethodPost, "/api/students",
		`{"studentId":"21CS1001","name":"Ananya","department":"CSE","enrollmentYear":2021,"email":"a@b.in"}`)

	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), "already exists")
}

func (s *HandlerSuite) TestGetNotFound() {
	s.service.EXPECT().Get(gomock.Any(), "99XX0000").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "student 99XX0000 does not exist"))

	rec := s.do(http.MethodGet, "/api/students/99XX0000", "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", s.errorCode(rec))
}

func (s *HandlerSuite) TestListReturnsArray() {
	s.service.EXPECT().List(gomock.Any()).Return([]models.Student{}, nil)

	rec := s.do(http.MethodGet, "/api/students", "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *HandlerSuite) TestQueryParsesParameters() {
	s.service.EXPECT().Query(gomock.Any(), service.Query{
		Status:   models.StatusGraduated,
		Bookmark: "21CS1002",
		PageSize: 10,
	}).Return(&ledger.Page[models.Student]{Records: []models.Student{}}, nil)

	rec := s.do(http.MethodGet, "/api/students/query?status=graduated&bookmark=21CS1002&pageSize=10", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"hasMore":false`)
}

func (s *HandlerSuite) TestQueryRejectsBadNumbers() {
	rec := s.do(http.MethodGet, "/api/students/query?year=twenty", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/students/query?department=CSE&pageSize=-1", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestUpdateStatus() {
	s.service.EXPECT().UpdateStatus(gomock.Any(), "21CS1001", models.StatusWithdrawn, "transferred").
		Return(&models.Student{StudentID: "21CS1001", Status: models.StatusWithdrawn}, nil)

	rec := s.do(http.MethodPut, "/api/students/21CS1001/status", `{"status":"withdrawn","reason":" transferred "}`)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, "/api/students/21CS1001/status", `{"status":"EXPELLED"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestUpdateContact() {
	s.service.EXPECT().UpdateContact(gomock.Any(), "21CS1001", "+91-9000000000", "").
		Return(&models.Student{StudentID: "21CS1001", Phone: "+91-9000000000"}, nil)

	rec := s.do(http.MethodPut, "/api/students/21CS1001/contact", `{"phone":"+91-9000000000"}`)
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, "/api/students/21CS1001/contact", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestLedgerUnavailableIs503() {
	s.service.EXPECT().List(gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnavailable, "ledger network unavailable"))

	rec := s.do(http.MethodGet, "/api/students", "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal("service_unavailable", s.errorCode(rec))
}
