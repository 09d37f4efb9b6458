package audit

import "time"

// Event records one mutating ledger operation or verification attempt.
// Stores and sinks treat it as opaque and append-only.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Identity  string    `json:"identity"`
	Subject   string    `json:"subject"`
	Action    Action    `json:"action"`
	Decision  Decision  `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	ClientIP  string    `json:"clientIp,omitempty"`
	Client    string    `json:"client,omitempty"`
}

type Action string

const (
	ActionStudentCreated        Action = "student_created"
	ActionStudentStatusUpdated  Action = "student_status_updated"
	ActionStudentContactUpdated Action = "student_contact_updated"
	ActionRecordCreated         Action = "academic_record_created"
	ActionRecordApproved        Action = "academic_record_approved"
	ActionCertificateIssued     Action = "certificate_issued"
	ActionCertificateRevoked    Action = "certificate_revoked"
	ActionCertificateVerified   Action = "certificate_verified"
)

type Decision string

const (
	DecisionSucceeded   Decision = "succeeded"
	DecisionFailed      Decision = "failed"
	DecisionAmbiguous   Decision = "ambiguous"
	DecisionVerified    Decision = "verified"
	DecisionNotVerified Decision = "not_verified"
)
