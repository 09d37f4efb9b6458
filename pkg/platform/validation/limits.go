package validation

import (
	"fmt"

	dErrors "registrar/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed JSON request body size (64 KB).
	MaxBodySize = 64 * 1024

	// MaxDocumentSize is the maximum certificate document accepted for issue or verify (10 MB).
	MaxDocumentSize = 10 << 20
)

// Slice element count limits
const (
	// MaxCourses is the maximum number of courses in one semester record.
	MaxCourses = 40
)

// String element length limits
const (
	// MaxIDLength bounds student, record and certificate identifiers.
	MaxIDLength = 64

	// MaxCourseCodeLength matches the contract's course code bound.
	MaxCourseCodeLength = 20

	// MaxNameLength is the maximum length of a student name.
	MaxNameLength = 200

	// MaxEmailLength is the maximum length of an email address.
	MaxEmailLength = 255

	// MaxReasonLength is the maximum length of a status change or revocation reason.
	MaxReasonLength = 500
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
