package ledger

import (
	"errors"
	"fmt"

	dErrors "registrar/pkg/domain-errors"
)

// Category is the normalized failure taxonomy for ledger calls.
//
// Every connector and the orchestrator classify failures into one of these so
// services can translate them without inspecting gRPC status codes or the
// contract's free-form messages.
type Category string

const (
	// CategoryIdentityNotFound means the caller identity is absent from the wallet.
	CategoryIdentityNotFound Category = "identity_not_found"

	// CategoryProfileResolution means the channel or contract is not in the connection profile.
	CategoryProfileResolution Category = "profile_resolution"

	// CategoryTransaction means the contract or validation rejected the transaction.
	CategoryTransaction Category = "transaction_rejected"

	// CategoryNetworkUnavailable means the peers could not be reached.
	CategoryNetworkUnavailable Category = "network_unavailable"

	// CategoryAmbiguousOutcome means a transaction reached ordering but its commit state is unknown.
	CategoryAmbiguousOutcome Category = "ambiguous_outcome"

	// CategoryNotFound means the queried key does not exist on the ledger.
	CategoryNotFound Category = "not_found"

	// CategoryMalformedResponse means the contract returned bytes that could not be decoded.
	CategoryMalformedResponse Category = "malformed_response"

	// CategoryValidation means the request was rejected locally before reaching the network.
	CategoryValidation Category = "validation"

	// CategoryCanceled means the caller gave up before the ledger answered.
	// It says nothing about peer health and is never retried.
	CategoryCanceled Category = "canceled"
)

// Error wraps ledger failures with normalized categorization.
type Error struct {
	Category  Category
	Operation string
	Reason    string
	TxID      string
	Err       error
	Retryable bool // set from Category: only network failures are retryable
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ledger %s [%s]", e.Operation, e.Category)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxID != "" {
		msg += " (tx " + e.TxID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a categorized ledger error with automatic retry classification.
func NewError(category Category, operation, reason string, err error) *Error {
	return &Error{
		Category:  category,
		Operation: operation,
		Reason:    reason,
		Err:       err,
		Retryable: category == CategoryNetworkUnavailable,
	}
}

// Ambiguous reports an unknown commit outcome for a dispatched transaction.
func Ambiguous(operation, txID string, err error) *Error {
	e := NewError(CategoryAmbiguousOutcome, operation, "commit status unknown", err)
	e.TxID = txID
	return e
}

// IsRetryable reports whether err is a transient ledger failure.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// CategoryOf extracts the category from err, or "" when err is not a ledger error.
func CategoryOf(err error) Category {
	var le *Error
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// Is reports whether err is a ledger error of the given category.
func Is(err error, category Category) bool {
	return CategoryOf(err) == category
}

// ToDomain translates a ledger failure into a transport-agnostic domain error.
// Non-ledger errors are wrapped as internal.
func ToDomain(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if !errors.As(err, &le) {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger call failed")
	}
	switch le.Category {
	case CategoryValidation:
		return dErrors.Wrap(err, dErrors.CodeValidation, le.Reason)
	case CategoryIdentityNotFound:
		return dErrors.Wrap(err, dErrors.CodeIdentityNotFound, le.Reason)
	case CategoryProfileResolution:
		return dErrors.Wrap(err, dErrors.CodeConfiguration, le.Reason)
	case CategoryNetworkUnavailable:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger network unavailable")
	case CategoryTransaction:
		return dErrors.Wrap(err, dErrors.CodeTransactionRejected, le.Reason)
	case CategoryAmbiguousOutcome:
		return dErrors.Wrap(err, dErrors.CodeAmbiguousOutcome,
			fmt.Sprintf("transaction %s submitted; commit status unknown", le.TxID))
	case CategoryNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, le.Reason)
	case CategoryCanceled:
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request canceled before the ledger answered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "unexpected ledger response")
	}
}
