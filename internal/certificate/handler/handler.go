package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"registrar/internal/certificate/models"
	"registrar/internal/certificate/service"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	limits "registrar/pkg/platform/validation"
	"registrar/pkg/requestcontext"
)

// documentField is the multipart field carrying the certificate PDF.
const documentField = "pdf"

// Service is the certificate operations the HTTP layer exposes.
type Service interface {
	Issue(ctx context.Context, cmd service.IssueCommand) (*models.Certificate, error)
	Get(ctx context.Context, certificateID string) (*models.Certificate, error)
	Verify(ctx context.Context, certificateID string, document []byte) (*models.Verification, error)
	Revoke(ctx context.Context, certificateID, reason string) (*models.Certificate, error)
	Document(ctx context.Context, certificateID string) ([]byte, *models.Certificate, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Certificate, error)
}

type Handler struct {
	service          Service
	logger           *slog.Logger
	maxDocumentBytes int64
}

// New builds the handler. A non-positive maxDocumentBytes falls back to
// limits.MaxDocumentSize.
func New(service Service, logger *slog.Logger, maxDocumentBytes int64) *Handler {
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = limits.MaxDocumentSize
	}
	return &Handler{service: service, logger: logger, maxDocumentBytes: maxDocumentBytes}
}

// Register mounts the routes that need an authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/certificates", h.HandleIssue)
	r.Get("/api/certificates/{id}", h.HandleGet)
	r.Get("/api/certificates/{id}/document", h.HandleDocument)
	r.Put("/api/certificates/{id}/revoke", h.HandleRevoke)
	r.Get("/api/students/{id}/certificates", h.HandleListByStudent)
}

// RegisterVerify mounts verification, which may run under a fallback identity.
func (h *Handler) RegisterVerify(r chi.Router) {
	r.Post("/api/certificates/{id}/verify", h.HandleVerify)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	document, err := httputil.ReadFormFile(r, documentField, h.maxDocumentBytes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := IssueCertificateRequest{
		CertificateID: r.FormValue("certificateId"),
		StudentID:     r.FormValue("studentId"),
		Type:          r.FormValue("type"),
	}
	if err := httputil.PrepareRequest(&req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	cert, err := h.service.Issue(ctx, service.IssueCommand{
		CertificateID: req.CertificateID,
		StudentID:     req.StudentID,
		Type:          req.Type,
		Document:      document,
	})
	if err != nil {
		h.logFailure(ctx, "issue certificate failed", err, req.CertificateID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cert)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "id")

	cert, err := h.service.Get(ctx, certificateID)
	if err != nil {
		h.logFailure(ctx, "get certificate failed", err, certificateID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

// HandleDocument streams the stored PDF after its digest has been checked.
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "id")

	data, cert, err := h.service.Document(ctx, certificateID)
	if err != nil {
		h.logFailure(ctx, "fetch certificate document failed", err, certificateID)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": cert.CertificateID + ".pdf"}))
	w.Header().Set("ETag", `"`+cert.DocumentHash+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certificateID := chi.URLParam(r, "id")

	document, err := httputil.ReadFormFile(r, documentField, h.maxDocumentBytes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	verification, err := h.service.Verify(ctx, certificateID, document)
	if err != nil {
		h.logFailure(ctx, "verify certificate failed", err, certificateID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	certificateID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cert, err := h.service.Revoke(ctx, certificateID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "revoke certificate failed", err, certificateID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func (h *Handler) HandleListByStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := chi.URLParam(r, "id")

	certs, err := h.service.ListByStudent(ctx, studentID)
	if err != nil {
		h.logFailure(ctx, "list student certificates failed", err, "")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, certs)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, certificateID string) {
	level := slog.LevelWarn
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"certificate_id", certificateID,
		"request_id", requestcontext.RequestID(ctx),
	)
}
