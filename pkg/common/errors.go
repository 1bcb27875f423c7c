package common

import "errors"

var (
	// ErrNotFound is returned by repositories when a mutation matched no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (duplicate email, equipment, ...).
	ErrConflict = errors.New("conflict")

	// ErrCacheMiss is returned by the key-value layer when a key does not exist.
	ErrCacheMiss = errors.New("cache miss")

	// ErrSessionExpired means the token is valid but no cached session backs it.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidAuditStatus rejects anything outside yes/no/lock.
	ErrInvalidAuditStatus = errors.New("invalid audit status")

	// ErrStorageDisabled is returned when an optional backend is not configured.
	ErrStorageDisabled = errors.New("storage disabled")
)
