// Package apierrors converts dashboard errors into metav1.Status responses.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"unicode"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"go.miloapis.com/auditdashboard/internal/cel"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
)

const (
	// msgStorageUnavailable is shown when the event store fails. Backend details are logged, not returned.
	msgStorageUnavailable = "Audit events are temporarily unavailable. Try again or contact support if the problem persists."
	msgInternal           = "An internal error occurred. Try again or contact support if the problem persists."
)

// capitalizeFirst capitalizes the first letter of a string.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// NewValidationError builds a 422 Status with one cause per field error.
func NewValidationError(gk schema.GroupKind, name string, errs field.ErrorList) *metav1.Status {
	causes := make([]metav1.StatusCause, 0, len(errs))
	for _, err := range errs {
		causes = append(causes, metav1.StatusCause{
			Type:    metav1.CauseType(err.Type),
			Message: err.Detail,
			Field:   err.Field,
		})
	}

	var message string
	if len(errs) == 1 {
		message = fmt.Sprintf("%s. Please correct this and try again.", capitalizeFirst(errs[0].Detail))
	} else {
		message = "Some fields are missing or invalid. See the error details for what needs to be corrected."
	}

	status := newStatus(http.StatusUnprocessableEntity, metav1.StatusReasonInvalid, message)
	status.Details = &metav1.StatusDetails{
		Group:  gk.Group,
		Kind:   gk.Kind,
		Name:   name,
		Causes: causes,
	}
	return status
}

// NewBadRequest builds a 400 Status.
func NewBadRequest(message string) *metav1.Status {
	return newStatus(http.StatusBadRequest, metav1.StatusReasonBadRequest, message)
}

// NewNotFound builds a 404 Status for a resource with no recorded audit events.
func NewNotFound(gk schema.GroupKind, name string) *metav1.Status {
	status := newStatus(http.StatusNotFound, metav1.StatusReasonNotFound,
		fmt.Sprintf("No audit events were found for %s %q.", gk.Kind, name))
	status.Details = &metav1.StatusDetails{Group: gk.Group, Kind: gk.Kind, Name: name}
	return status
}

// NewServiceUnavailable builds a 503 Status.
func NewServiceUnavailable(message string) *metav1.Status {
	return newStatus(http.StatusServiceUnavailable, metav1.StatusReasonServiceUnavailable, message)
}

// NewTooManyRequests builds a 429 Status asking the client to retry after
// retryAfterSeconds.
func NewTooManyRequests(retryAfterSeconds int32) *metav1.Status {
	status := newStatus(http.StatusTooManyRequests, metav1.StatusReasonTooManyRequests,
		"Too many requests. Slow down and try again shortly.")
	status.Details = &metav1.StatusDetails{RetryAfterSeconds: retryAfterSeconds}
	return status
}

// NewMethodNotAllowed builds a 405 Status.
func NewMethodNotAllowed(method string) *metav1.Status {
	return newStatus(http.StatusMethodNotAllowed, metav1.StatusReasonMethodNotAllowed,
		fmt.Sprintf("Method %s is not supported for this endpoint.", method))
}

// FromError maps err to the Status sent to clients. gk and name describe the
// requested object and may be empty.
func FromError(err error, gk schema.GroupKind, name string) *metav1.Status {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.Status()
		return &status
	}

	var validationErr *lifecycle.ValidationError
	if errors.As(err, &validationErr) {
		return NewValidationError(gk, name, validationErr.Errors)
	}

	var filterErr *cel.FilterError
	if errors.As(err, &filterErr) {
		return NewBadRequest(filterErr.Message)
	}

	var parseErr *lifecycle.ParseError
	if errors.As(err, &parseErr) {
		return NewBadRequest(capitalizeFirst(parseErr.Error()))
	}

	switch {
	case errors.Is(err, lifecycle.ErrResourceNotFound):
		return NewNotFound(gk, name)
	case lifecycle.IsStorageError(err):
		return NewServiceUnavailable(msgStorageUnavailable)
	}

	return newStatus(http.StatusInternalServerError, metav1.StatusReasonInternalError, msgInternal)
}

func newStatus(code int32, reason metav1.StatusReason, message string) *metav1.Status {
	return &metav1.Status{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Status",
		},
		Status:  metav1.StatusFailure,
		Code:    code,
		Reason:  reason,
		Message: message,
	}
}

// StatusError wraps a Status as an error.
type StatusError struct {
	ErrStatus metav1.Status
}

func (e *StatusError) Error() string {
	return e.ErrStatus.Message
}

// Status returns the Status object.
func (e *StatusError) Status() metav1.Status {
	return e.ErrStatus
}

// NewValidationStatusError creates a StatusError with a user-friendly validation message.
func NewValidationStatusError(gk schema.GroupKind, name string, errs field.ErrorList) *StatusError {
	return &StatusError{ErrStatus: *NewValidationError(gk, name, errs)}
}
