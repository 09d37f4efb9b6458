package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "registrar/internal/audit/handler"
	certhandler "registrar/internal/certificate/handler"
	"registrar/internal/platform/health"
	recordhandler "registrar/internal/record/handler"
	studenthandler "registrar/internal/student/handler"
	"registrar/pkg/platform/middleware/auth"
	"registrar/pkg/platform/middleware/metadata"
	"registrar/pkg/platform/middleware/request"
	"registrar/pkg/platform/middleware/requesttime"
	limits "registrar/pkg/platform/validation"
)

// multipartOverhead is allowed on top of the document limit for form
// boundaries and text fields.
const multipartOverhead = 1 << 20

// Deps are the handlers and policies the router mounts. A nil Validator
// disables authentication; every call then runs as the ledger default identity.
type Deps struct {
	Logger       *slog.Logger
	Health       *health.Handler
	Students     *studenthandler.Handler
	Records      *recordhandler.Handler
	Certificates *certhandler.Handler
	Audit        *audithandler.Handler

	Validator            auth.JWTValidator
	AllowAnonymousVerify bool
	AnonymousVerifier    string

	TrustedProxies   []netip.Prefix
	RequestTimeout   time.Duration
	MaxDocumentBytes int64
	Metrics          *request.Metrics
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(d.TrustedProxies).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(d.Logger))
	r.Use(request.LatencyMiddleware(d.Metrics))

	d.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxDocument := d.MaxDocumentBytes
	if maxDocument <= 0 {
		maxDocument = limits.MaxDocumentSize
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		if d.Validator != nil {
			r.Use(auth.RequireAuth(d.Validator, d.Logger))
		}

		r.Group(func(r chi.Router) {
			r.Use(request.BodyLimit(limits.MaxBodySize))
			r.Use(request.ContentTypeJSON)
			d.Students.Register(r)
			d.Records.Register(r)
			d.Audit.Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(request.BodyLimit(maxDocument + multipartOverhead))
			d.Certificates.Register(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.BodyLimit(maxDocument + multipartOverhead))
		switch {
		case d.Validator == nil:
		case d.AllowAnonymousVerify:
			r.Use(auth.OptionalAuth(d.Validator, d.AnonymousVerifier, d.Logger))
		default:
			r.Use(auth.RequireAuth(d.Validator, d.Logger))
		}
		d.Certificates.RegisterVerify(r)
	})

	return r
}
