// Package metrics holds the registrar's business counters. Ledger session and
// transport metrics live with the ledger gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method then does nothing.
type Metrics struct {
	CertificatesIssued  *prometheus.CounterVec // by type
	CertificatesRevoked prometheus.Counter
	Verifications       *prometheus.CounterVec // by outcome, reason
	DocumentBytes       prometheus.Histogram
	StudentsCreated     prometheus.Counter
	RecordsCreated      prometheus.Counter
	RecordsApproved     prometheus.Counter
}

// New registers the metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CertificatesIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_certificates_issued_total",
			Help: "Certificates recorded on the ledger, by type",
		}, []string{"type"}),
		CertificatesRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_certificates_revoked_total",
			Help: "Certificates revoked on the ledger",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_certificate_verifications_total",
			Help: "Document verifications by outcome and reason",
		}, []string{"outcome", "reason"}),
		DocumentBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_certificate_document_bytes",
			Help:    "Size of certificate documents stored at issue",
			Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
		}),
		StudentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_students_created_total",
			Help: "Student records created on the ledger",
		}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_academic_records_created_total",
			Help: "Academic records submitted for approval",
		}),
		RecordsApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_academic_records_approved_total",
			Help: "Academic records approved by the registrar",
		}),
	}
}

func (m *Metrics) IncrementIssued(certType string, documentBytes int) {
	if m == nil {
		return
	}
	m.CertificatesIssued.WithLabelValues(certType).Inc()
	m.DocumentBytes.Observe(float64(documentBytes))
}

func (m *Metrics) IncrementRevoked() {
	if m == nil {
		return
	}
	m.CertificatesRevoked.Inc()
}

func (m *Metrics) IncrementVerification(outcome, reason string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) IncrementStudentsCreated() {
	if m == nil {
		return
	}
	m.StudentsCreated.Inc()
}

func (m *Metrics) IncrementRecordsCreated() {
	if m == nil {
		return
	}
	m.RecordsCreated.Inc()
}

func (m *Metrics) IncrementRecordsApproved() {
	if m == nil {
		return
	}
	m.RecordsApproved.Inc()
}
