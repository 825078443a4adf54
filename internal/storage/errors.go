package storage

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by session lookups when no stored
// session matches the requested id, and by GetLastSession on an empty
// store.
var ErrSessionNotFound = errors.New("session not found")

// StorageError reports a failure of the persistence layer itself:
// unreadable files, failed writes, or malformed session data.
type StorageError struct {
	message string
}

// NewStorageError creates a new storage error
func NewStorageError(format string, args ...interface{}) *StorageError {
	return &StorageError{
		message: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message
func (e *StorageError) Error() string {
	return e.message
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	_, ok := err.(*StorageError)
	return ok
}

// ProfileError reports an invalid profile operation: unknown or
// duplicate profile names, unsupported storage types, guarded deletes,
// or an unreadable/outdated profiles file.
type ProfileError struct {
	message string
}

// NewProfileError creates a new profile error
func NewProfileError(format string, args ...interface{}) *ProfileError {
	return &ProfileError{
		message: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message
func (e *ProfileError) Error() string {
	return e.message
}

// IsProfileError checks if an error is a profile error
func IsProfileError(err error) bool {
	_, ok := err.(*ProfileError)
	return ok
}
