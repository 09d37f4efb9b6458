package models

import "time"

// Status is a student's enrollment status.
type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusGraduated           Status = "GRADUATED"
	StatusWithdrawn           Status = "WITHDRAWN"
	StatusCancelled           Status = "CANCELLED"
	StatusTemporaryWithdrawal Status = "TEMPORARY_WITHDRAWAL"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusGraduated, StatusWithdrawn, StatusCancelled, StatusTemporaryWithdrawal:
		return true
	}
	return false
}

// RequiresReason reports whether moving to s must be justified.
func (s Status) RequiresReason() bool {
	return s == StatusCancelled || s == StatusWithdrawn
}

// Student is the on-chain student record, keyed by roll number.
type Student struct {
	StudentID         string    `json:"studentId"`
	RollNumber        string    `json:"rollNumber"`
	Name              string    `json:"name"`
	Department        string    `json:"department"`
	EnrollmentYear    int       `json:"enrollmentYear"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	PersonalEmail     string    `json:"personalEmail"`
	AadhaarHash       string    `json:"aadhaarHash"`
	AdmissionCategory string    `json:"admissionCategory"`
	Status            Status    `json:"status"`
	CreatedBy         string    `json:"createdBy"`
	CreatedAt         time.Time `json:"createdAt"`
	ModifiedBy        string    `json:"modifiedBy"`
	ModifiedAt        time.Time `json:"modifiedAt"`
}
