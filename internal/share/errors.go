package share

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCodeFormat = errors.New("invalid code format. Code must be 6 characters long")
	ErrNotFound          = errors.New("code not found or has expired")
	ErrExpired           = errors.New("code has expired")
	ErrQuotaExhausted    = errors.New("maximum views reached for this content")
	ErrExhaustedAttempts = errors.New("failed to generate unique code after multiple attempts")

	// ErrDuplicateCode is returned by Store.Insert when the code is taken.
	// The Manager retries with a new code; it never reaches a caller.
	ErrDuplicateCode = errors.New("duplicate share code")

	ErrValidation         = errors.New("validation error")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBlobNotFound is returned by BlobStore.Open when the blob is gone.
	ErrBlobNotFound = errors.New("blob not found")
)

// ValidationError describes a missing or malformed field on creation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unavailable wraps a backend failure so that it matches
// ErrStorageUnavailable while keeping the cause inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
