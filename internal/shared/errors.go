package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrSessionMissing occurs when a request carries no known session.
	ErrSessionMissing = errors.New("session missing")
)
