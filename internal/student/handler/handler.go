package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"registrar/internal/ledger"
	"registrar/internal/student/models"
	"registrar/internal/student/service"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	"registrar/pkg/requestcontext"
)

// Service is the student operations the HTTP layer exposes.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Student, error)
	Get(ctx context.Context, studentID string) (*models.Student, error)
	List(ctx context.Context) ([]models.Student, error)
	UpdateStatus(ctx context.Context, studentID string, status models.Status, reason string) (*models.Student, error)
	UpdateContact(ctx context.Context, studentID, phone, personalEmail string) (*models.Student, error)
	Query(ctx context.Context, q service.Query) (*ledger.Page[models.Student], error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/students", h.HandleCreate)
	r.Get("/api/students", h.HandleList)
	r.Get("/api/students/query", h.HandleQuery)
	r.Get("/api/students/{id}", h.HandleGet)
	r.Put("/api/students/{id}/status", h.HandleUpdateStatus)
	r.Put("/api/students/{id}/contact", h.HandleUpdateContact)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateStudentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	student, err := h.service.Create(ctx, req.toCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "create student failed", "error", err, "request_id", requestID, "student_id", req.StudentID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, student)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := chi.URLParam(r, "id")

	student, err := h.service.Get(ctx, studentID)
	if err != nil {
		h.logFailure(ctx, "get student failed", err, studentID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, student)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	students, err := h.service.List(ctx)
	if err != nil {
		h.logFailure(ctx, "list students failed", err, "")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, students)
}

// HandleQuery serves ?department=, ?year= or ?status= with bookmark paging.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	year, err := httputil.IntQueryParam(r, "year")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pageSize, err := httputil.IntQueryParam(r, "pageSize")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := service.Query{
		Department: params.Get("department"),
		Year:       year,
		Status:     models.Status(strings.ToUpper(params.Get("status"))),
		Bookmark:   params.Get("bookmark"),
		PageSize:   pageSize,
	}

	page, err := h.service.Query(ctx, q)
	if err != nil {
		h.logFailure(ctx, "query students failed", err, "")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	studentID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	student, err := h.service.UpdateStatus(ctx, studentID, models.Status(req.Status), req.Reason)
	if err != nil {
		h.logFailure(ctx, "update student status failed", err, studentID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, student)
}

func (h *Handler) HandleUpdateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	studentID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[UpdateContactRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	student, err := h.service.UpdateContact(ctx, studentID, req.Phone, req.PersonalEmail)
	if err != nil {
		h.logFailure(ctx, "update student contact failed", err, studentID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, student)
}

// logFailure logs server-side failures at ERROR and client mistakes at WARN.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, studentID string) {
	level := slog.LevelWarn
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"student_id", studentID,
		"request_id", requestcontext.RequestID(ctx),
	)
}
