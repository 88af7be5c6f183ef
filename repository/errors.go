package repository

import "errors"

// Common errors for repository operations.
var (
	// ErrNotFound is returned when a conversation does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidStoreType is returned by the quota store factory for an
	// unknown store selection.
	ErrInvalidStoreType = errors.New("invalid quota store type")

	// ErrInvalidConfig is returned when a store is selected without the
	// client it needs.
	ErrInvalidConfig = errors.New("invalid quota store configuration")
)
