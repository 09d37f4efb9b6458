package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"registrar/internal/ledger"
	"registrar/internal/record/models"
	"registrar/internal/record/service"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	"registrar/pkg/requestcontext"
)

// Service is the academic record operations the HTTP layer exposes.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.AcademicRecord, error)
	Get(ctx context.Context, recordID string) (*models.AcademicRecord, error)
	Approve(ctx context.Context, recordID string) (*models.AcademicRecord, error)
	History(ctx context.Context, studentID string) ([]models.AcademicRecord, error)
	Query(ctx context.Context, q service.Query) (*ledger.Page[models.AcademicRecord], error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/records", h.HandleCreate)
	r.Get("/api/records/query", h.HandleQuery)
	r.Get("/api/records/{id}", h.HandleGet)
	r.Put("/api/records/{id}/approve", h.HandleApprove)
	r.Get("/api/students/{id}/history", h.HandleHistory)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Create(ctx, req.toCommand())
	if err != nil {
		h.logFailure(ctx, "create academic record failed", err, req.RecordID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "id")

	record, err := h.service.Get(ctx, recordID)
	if err != nil {
		h.logFailure(ctx, "get academic record failed", err, recordID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID := chi.URLParam(r, "id")

	record, err := h.service.Approve(ctx, recordID)
	if err != nil {
		h.logFailure(ctx, "approve academic record failed", err, recordID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := chi.URLParam(r, "id")

	records, err := h.service.History(ctx, studentID)
	if err != nil {
		h.logFailure(ctx, "student history failed", err, "")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

// HandleQuery serves ?semester=, ?status= or ?pending=true with bookmark paging.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	semester, err := httputil.IntQueryParam(r, "semester")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pageSize, err := httputil.IntQueryParam(r, "pageSize")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var pending bool
	if raw := params.Get("pending"); raw != "" {
		pending, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "pending must be true or false"))
			return
		}
	}

	page, err := h.service.Query(ctx, service.Query{
		Semester: semester,
		Status:   models.Status(strings.ToUpper(params.Get("status"))),
		Pending:  pending,
		Bookmark: params.Get("bookmark"),
		PageSize: pageSize,
	})
	if err != nil {
		h.logFailure(ctx, "query academic records failed", err, "")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, recordID string) {
	level := slog.LevelWarn
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"record_id", recordID,
		"request_id", requestcontext.RequestID(ctx),
	)
}
