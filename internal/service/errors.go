// Package service holds the account, session and journal logic that spans
// several repositories.  Handlers stay thin and translate the sentinel
// errors below into HTTP responses.
package service

import "errors"

var (
	// ErrAlreadyExists is returned when an email or username is taken.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned for an unknown identifier or a wrong
	// password; the two are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for unknown, expired or revoked session
	// tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// ValidationError reports malformed input.  Handlers answer 400 with Msg.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }
