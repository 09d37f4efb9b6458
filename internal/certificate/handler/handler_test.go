package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"registrar/internal/certificate/handler/mocks"
	"registrar/internal/certificate/models"
	"registrar/internal/certificate/service"
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
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), 1024)
	h.Register(s.router)
	h.RegisterVerify(s.router)
}

func (s *HandlerSuite) multipart(path string, fields map[string]string, document []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		s.Require().NoError(writer.WriteField(k, v))
	}
	if document != nil {
		part, err := writer.CreateFormFile(documentField, "certificate.pdf")
		s.Require().NoError(err)
		_, err = part.Write(document)
		s.Require().NoError(err)
	}
	s.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
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

func (s *HandlerSuite) TestIssuePassesExactBytes() {
	doc := []byte("%PDF-1.7\n\x00\xffbinary")
	s.service.EXPECT().Issue(gomock.Any(), service.IssueCommand{
		CertificateID: "CERT-2025-001",
		StudentID:     "21CS1001",
		Type:          "DEGREE",
		Document:      doc,
	}).Return(&models.Certificate{CertificateID: "CERT-2025-001", DocumentHash: models.DocumentHash(doc)}, nil)

	rec := s.multipart("/api/certificates", map[string]string{
		"certificateId": "CERT-2025-001", "studentId": " 21CS1001 ", "type": "degree",
	}, doc)

	s.Equal(http.StatusCreated, rec.Code)
	var got models.Certificate
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(models.DocumentHash(doc), got.DocumentHash)
}

func (s *HandlerSuite) TestIssueRejectsBadForms() {
	cases := []struct {
		name   string
		fields map[string]string
		doc    []byte
	}{
		{"missing document", map[string]string{"certificateId": "C1", "studentId": "S1", "type": "DEGREE"}, nil},
		{"empty document", map[string]string{"certificateId": "C1", "studentId": "S1", "type": "DEGREE"}, []byte{}},
		{"oversized document", map[string]string{"certificateId": "C1", "studentId": "S1", "type": "DEGREE"}, bytes.Repeat([]byte("x"), 2048)},
		{"unknown type", map[string]string{"certificateId": "C1", "studentId": "S1", "type": "DIPLOMA"}, []byte("doc")},
		{"blank certificate id", map[string]string{"certificateId": " ", "studentId": "S1", "type": "DEGREE"}, []byte("doc")},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.multipart("/api/certificates", tc.fields, tc.doc)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestIssueJSONBodyIsBadRequest() {
	rec := s.do(http.MethodPost, "/api/certificates", `{"certificateId":"C1"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestVerifyReturnsVerdict() {
	doc := []byte("presented")
	s.service.EXPECT().Verify(gomock.Any(), "CERT-1", doc).Return(&models.Verification{
		CertificateID: "CERT-1",
		Outcome:       models.OutcomeNotVerified,
		Reason:        models.ReasonHashMismatch,
	}, nil)

	rec := s.multipart("/api/certificates/CERT-1/verify", nil, doc)

	s.Equal(http.StatusOK, rec.Code)
	var got models.Verification
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(models.OutcomeNotVerified, got.Outcome)
	s.Equal(models.ReasonHashMismatch, got.Reason)
}

func (s *HandlerSuite) TestVerifyUnknownCertificate() {
	s.service.EXPECT().Verify(gomock.Any(), "CERT-X", gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "certificate CERT-X does not exist"))

	rec := s.multipart("/api/certificates/CERT-X/verify", nil, []byte("doc"))

	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("not_found", s.errorCode(rec))
}

func (s *HandlerSuite) TestDocumentServesPDF() {
	doc := []byte("%PDF-1.4 stored")
	s.service.EXPECT().Document(gomock.Any(), "CERT-1").
		Return(doc, &models.Certificate{CertificateID: "CERT-1", DocumentHash: models.DocumentHash(doc)}, nil)

	rec := s.do(http.MethodGet, "/api/certificates/CERT-1/document", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/pdf", rec.Header().Get("Content-Type"))
	s.Equal(`"`+models.DocumentHash(doc)+`"`, rec.Header().Get("ETag"))
	s.Equal(doc, rec.Body.Bytes())
}

func (s *HandlerSuite) TestDocumentFilenameIsEscaped() {
	doc := []byte("%PDF-1.4 stored")
	s.service.EXPECT().Document(gomock.Any(), "CERT-1").
		Return(doc, &models.Certificate{CertificateID: `CERT"1; x=y`, DocumentHash: models.DocumentHash(doc)}, nil)

	rec := s.do(http.MethodGet, "/api/certificates/CERT-1/document", "")

	s.Require().Equal(http.StatusOK, rec.Code)
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	s.Require().NoError(err)
	s.Equal("inline", disposition)
	s.Equal(`CERT"1; x=y.pdf`, params["filename"])
	s.NotContains(params, "x")
}

func (s *HandlerSuite) TestDocumentStorageDown() {
	s.service.EXPECT().Document(gomock.Any(), "CERT-1").
		Return(nil, nil, dErrors.New(dErrors.CodeUnavailable, "document storage unavailable"))

	rec := s.do(http.MethodGet, "/api/certificates/CERT-1/document", "")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *HandlerSuite) TestRevoke() {
	s.service.EXPECT().Revoke(gomock.Any(), "CERT-1", "issued against wrong record").
		Return(&models.Certificate{CertificateID: "CERT-1", Revoked: true}, nil)

	rec := s.do(http.MethodPut, "/api/certificates/CERT-1/revoke", `{"reason":"  issued against wrong record "}`)

	s.Equal(http.StatusOK, rec.Code)
	var got models.Certificate
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.True(got.Revoked)
}

func (s *HandlerSuite) TestRevokeShortReason() {
	rec := s.do(http.MethodPut, "/api/certificates/CERT-1/revoke", `{"reason":"typo"}`)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRevokeAlreadyRevoked() {
	s.service.EXPECT().Revoke(gomock.Any(), "CERT-1", gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeTransactionRejected, "certificate CERT-1 is already revoked"))

	rec := s.do(http.MethodPut, "/api/certificates/CERT-1/revoke", `{"reason":"duplicate issuance found"}`)

	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("transaction_rejected", s.errorCode(rec))
}

func (s *HandlerSuite) TestListByStudent() {
	s.service.EXPECT().ListByStudent(gomock.Any(), "21CS1001").Return([]models.Certificate{}, nil)

	rec := s.do(http.MethodGet, "/api/students/21CS1001/certificates", "")

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}
