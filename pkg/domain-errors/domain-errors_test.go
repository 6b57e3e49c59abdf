package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorText() {
	s.Run("message wins over code", func() {
		err := &Error{Code: CodeNotFound, Message: "consent not found"}
		s.Equal("consent not found", err.Error())
	})

	s.Run("falls back to code", func() {
		err := &Error{Code: CodeUnavailable}
		s.Equal("unavailable", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	a := &Error{Code: CodeConflict, Message: "consent already revoked"}
	b := &Error{Code: CodeConflict, Message: "duplicate consent id"}
	s.True(a.Is(b))
	s.False(a.Is(&Error{Code: CodeNotFound}))
	s.False(a.Is(errors.New("conflict")))

	chained := fmt.Errorf("revoke: %w", a)
	s.True(errors.Is(chained, &Error{Code: CodeConflict}))
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the inner domain code", func() {
		inner := New(CodeForbidden, "not the owner")
		wrapped := Wrap(inner, CodeInternal, "revoke failed")

		var de *Error
		s.Require().True(errors.As(wrapped, &de))
		s.Equal(CodeForbidden, de.Code)
		s.Equal("revoke failed", de.Message)
	})

	s.Run("applies the given code to plain errors", func() {
		root := errors.New("connection refused")
		wrapped := Wrap(root, CodeInternal, "failed to append access record")

		s.True(HasCode(wrapped, CodeInternal))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.True(HasCode(New(CodeTimeout, "registry timeout"), CodeTimeout))
	s.False(HasCode(New(CodeTimeout, "registry timeout"), CodeUnavailable))
	s.False(HasCode(errors.New("plain"), CodeInternal))
	s.False(HasCode(nil, CodeInternal))
}
