package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"registrar/internal/audit"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	"registrar/pkg/requestcontext"
)

// Trail reads back a subject's audit events. The bool is false when the
// configured store is write-only.
type Trail interface {
	List(ctx context.Context, subject string) ([]audit.Event, bool, error)
}

type Handler struct {
	trail  Trail
	logger *slog.Logger
}

func New(trail Trail, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/audit", h.HandleList)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject is required"))
		return
	}

	events, supported, err := h.trail.List(ctx, subject)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit trail read failed",
			"error", err,
			"subject", subject,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store unavailable"))
		return
	}
	if !supported {
		httputil.WriteJSON(w, http.StatusNotImplemented, map[string]string{
			"error":             "not_implemented",
			"error_description": "the configured audit store is write-only",
		})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}
