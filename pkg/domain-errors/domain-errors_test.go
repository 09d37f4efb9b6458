package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite covers the error primitives shared by every service layer.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "certificate CERT-1 does not exist"}
		s.Equal("certificate CERT-1 does not exist", err.Error())
	})

	s.Run("falls back to code", func() {
		err := &Error{Code: CodeAmbiguousOutcome}
		s.Equal("ambiguous_outcome", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	a := &Error{Code: CodeTransactionRejected, Message: "student 21CS001 already exists"}
	b := &Error{Code: CodeTransactionRejected}
	s.True(errors.Is(a, b))
	s.False(errors.Is(a, &Error{Code: CodeNotFound}))
	s.False(a.Is(errors.New("transaction_rejected")))

	wrapped := fmt.Errorf("issue: %w", a)
	s.True(errors.Is(wrapped, b))
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code", func() {
		original := New(CodeNotFound, "record not found")
		wrapped := Wrap(original, CodeInternal, "get record")
		s.True(HasCode(wrapped, CodeNotFound))
		s.Equal("get record", wrapped.Error())
	})

	s.Run("uses provided code for plain errors", func() {
		root := errors.New("dial tcp: connection refused")
		wrapped := Wrap(root, CodeUnavailable, "ledger unavailable")
		s.True(HasCode(wrapped, CodeUnavailable))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeValidation, CodeOf(New(CodeValidation, "type is required")))
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	s.Equal(CodeInternal, CodeOf(nil))
	s.False(HasCode(nil, CodeNotFound))
}
