package model

import "errors"

var (
	// ErrInvalidInput marks malformed or missing request fields. 4xx, never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing session, memory, or message.
	ErrNotFound = errors.New("not found")
	// ErrProvider marks an unreachable or unusable completion/embedding provider.
	ErrProvider = errors.New("provider error")
	// ErrNotConfigured marks a feature whose external credential is absent.
	ErrNotConfigured = errors.New("not configured")
	// ErrValidation marks a value that failed domain validation.
	ErrValidation = errors.New("validation error")
)
