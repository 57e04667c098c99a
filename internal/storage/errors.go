package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a requested artifact doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for empty keys or keys that attempt path
	// traversal ("../").
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an artifact exceeds PutOptions.MaxSize.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the storage provider rejects the
	// operation (bad credentials, bucket policy).
	ErrAccessDenied = errors.New("access denied")
)

// StorageError wraps an operation failure with the key it happened on.
// It supports errors.Unwrap so the sentinels above remain matchable.
type StorageError struct {
	Op  string // failed operation ("Put", "Get", "Delete", "URL")
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the artifact doesn't exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
