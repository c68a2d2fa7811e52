package oauth

import (
	"errors"
	"fmt"
)

// Error is an OAuth error response.  Code is one of the RFC 6749 error
// codes the token endpoint emits; Description stays short and never
// carries internal detail.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Description) }

const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidGrant   = "invalid_grant"
)

func invalidRequest(desc string) error { return &Error{Code: CodeInvalidRequest, Description: desc} }
func invalidGrant(desc string) error   { return &Error{Code: CodeInvalidGrant, Description: desc} }

// ErrUnauthorized is returned by Authorize for bad user credentials.
var ErrUnauthorized = errors.New("invalid credentials")

// IsGrantError reports whether err is an *Error with the given code.
func IsGrantError(err error, code string) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == code
}
