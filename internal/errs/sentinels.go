// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/session layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a create lost to an existing record with the same key.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAuthentication indicates the identity provider rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidIdentity indicates an identity without a usable email.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrProvider indicates an identity provider failure other than rejected credentials.
	ErrProvider = errors.New("identity provider error")
)
