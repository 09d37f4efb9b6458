package handler

import (
	"fmt"

	"registrar/internal/certificate/models"
	dErrors "registrar/pkg/domain-errors"
	limits "registrar/pkg/platform/validation"
	s "registrar/pkg/string"
	"registrar/pkg/validation"
)

// IssueCertificateRequest holds the text fields of the issue form.
type IssueCertificateRequest struct {
	CertificateID string `form:"certificateId" validate:"required,notblank"`
	StudentID     string `form:"studentId" validate:"required,notblank"`
	Type          string `form:"type" validate:"required"`
}

func (r *IssueCertificateRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.CertificateID, &r.StudentID, &r.Type)
	r.Type = string(models.ParseType(r.Type))
}

func (r *IssueCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := limits.CheckStringLength("certificateId", r.CertificateID, limits.MaxIDLength); err != nil {
		return err
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if !models.Type(r.Type).Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown certificate type %q", r.Type))
	}
	return nil
}

type RevokeRequest struct {
	Reason string `json:"reason" validate:"required,notblank"`
}

func (r *RevokeRequest) Normalize() {
	if r == nil {
		return
	}
	s.TrimStrings(&r.Reason)
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := limits.CheckStringLength("reason", r.Reason, limits.MaxReasonLength); err != nil {
		return err
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if len(r.Reason) < models.MinRevocationReason {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("reason must be at least %d characters", models.MinRevocationReason))
	}
	return nil
}
