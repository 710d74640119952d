package lifecycle

import (
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

var (
	// ErrResourceNotFound indicates that no audit events exist for a resource.
	ErrResourceNotFound = errors.New("resource not found in audit log")

	// ErrInvalidGVK indicates a malformed group-version-kind URL segment.
	ErrInvalidGVK = errors.New("invalid GVK format")

	// ErrSnapshotParsing indicates a resource snapshot could not be decoded.
	ErrSnapshotParsing = errors.New("failed to parse resource snapshot")
)

// ValidationError carries field-level validation failures.
type ValidationError struct {
	Errors field.ErrorList
}

func (e *ValidationError) Error() string {
	return e.Errors.ToAggregate().Error()
}

// NewValidationError returns nil when errs is empty.
func NewValidationError(errs field.ErrorList) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseError wraps a failure to decode a snapshot or identifier.
type ParseError struct {
	Type   string // "snapshot", "GVK"
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %s", e.Type, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StorageError wraps an error returned by an event store.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failing operation name.
func NewStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Err: err}
}

// IsStorageError reports whether err wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
