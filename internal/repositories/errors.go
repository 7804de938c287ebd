package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before reaching the database.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing conversation, message or user.
	ErrNotFound = errors.New("not found")

	ErrEmptyBody            = fmt.Errorf("%w: message body is empty", ErrValidation)
	ErrMissingIdentity      = fmt.Errorf("%w: user id or email required", ErrValidation)
	ErrInvalidRole          = fmt.Errorf("%w: invalid sender role", ErrValidation)
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
)

// StorageError wraps a backend failure. It is never retried by this package.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err came from the backend.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
