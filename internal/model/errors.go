package model

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSession indicates a missing, malformed, or expired session token.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUnauthorized indicates the caller lacks the required credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates bad or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream indicates a dependency (AI backend, search index, identity
	// provider) failed or was unreachable.
	ErrUpstream = errors.New("upstream failure")
)
