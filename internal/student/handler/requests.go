package handler

import (
	"registrar/internal/student/models"
	"registrar/internal/student/service"
	dErrors "registrar/pkg/domain-errors"
	limits "registrar/pkg/platform/validation"
	s "registrar/pkg/string"
	"registrar/pkg/validation"
)

type CreateStudentRequest struct {
	StudentID         string `json:"studentId" validate:"required,min=5,max=20"`
	Name              string `json:"name" validate:"required,notblank,min=3,max=100"`
	Department        string `json:"department" validate:"required,notblank"`
	EnrollmentYear    int    `json:"enrollmentYear" validate:"required,min=1950"`
	Email             string `json:"email" validate:"required,email"`
	AadhaarHash       string `json:"aadhaarHash"`
	AdmissionCategory string `json:"admissionCategory"`
}

func (r *CreateStudentRequest) Normalize() {
	if r == nil {
		return
	}
	// The roll number is the ledger key and keeps its case.
	s.TrimStrings(&r.StudentID, &r.Name, &r.Department, &r.AadhaarHash, &r.AdmissionCategory)
	s.LowerStrings(&r.Email)
}

func (r *CreateStudentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := limits.CheckStringLength("name", r.Name, limits.MaxNameLength); err != nil {
		return err
	}
	if err := limits.CheckStringLength("email", r.Email, limits.MaxEmailLength); err != nil {
		return err
	}
	return validation.Validate(r)
}

func (r *CreateStudentRequest) toCommand() service.CreateCommand {
	return service.CreateCommand{
		StudentID:         r.StudentID,
		Name:              r.Name,
		Department:        r.Department,
		EnrollmentYear:    r.EnrollmentYear,
		Email:             r.Email,
		AadhaarHash:       r.AadhaarHash,
		AdmissionCategory: r.AdmissionCategory,
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
}

func (r *UpdateStatusRequest) Normalize() {
	if r == nil {
		return
	}
	s.UpperStrings(&r.Status)
	s.TrimStrings(&r.Reason)
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if !models.Status(r.Status).Valid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status '"+r.Status+"'")
	}
	return limits.CheckStringLength("reason", r.Reason, limits.MaxReasonLength)
}

type UpdateContactRequest struct {
	Phone         string `json:"phone" validate:"omitempty,min=7,max=20"`
	PersonalEmail string `json:"personalEmail" validate:"omitempty,email"`
}

func (r *UpdateContactRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.Phone, &r.PersonalEmail)
}

func (r *UpdateContactRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Phone == "" && r.PersonalEmail == "" {
		return dErrors.New(dErrors.CodeValidation, "phone or personalEmail is required")
	}
	return validation.Validate(r)
}
