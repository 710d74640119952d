package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"go.miloapis.com/auditdashboard/internal/cel"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
)

func TestNewValidationStatusError_MessageFormat(t *testing.T) {
	gk := schema.GroupKind{Group: "apps", Kind: "Deployment"}

	t.Run("single error includes detail and action in message", func(t *testing.T) {
		errs := field.ErrorList{
			field.Required(field.NewPath("resource", "name"), "name cannot be empty"),
		}

		statusErr := NewValidationStatusError(gk, "", errs)

		expectedMsg := "Name cannot be empty. Please correct this and try again."
		if statusErr.Error() != expectedMsg {
			t.Errorf("unexpected message:\ngot:  %s\nwant: %s", statusErr.Error(), expectedMsg)
		}

		status := statusErr.Status()
		if len(status.Details.Causes) != 1 {
			t.Errorf("expected 1 cause, got %d", len(status.Details.Causes))
		}
	})

	t.Run("multiple errors directs to details", func(t *testing.T) {
		errs := field.ErrorList{
			field.Required(field.NewPath("resource", "kind"), "kind cannot be empty"),
			field.Required(field.NewPath("resource", "version"), "version cannot be empty"),
			field.Required(field.NewPath("resource", "name"), "name cannot be empty"),
		}

		statusErr := NewValidationStatusError(gk, "", errs)

		expectedMsg := "Some fields are missing or invalid. See the error details for what needs to be corrected."
		if statusErr.Error() != expectedMsg {
			t.Errorf("unexpected message:\ngot:  %s\nwant: %s", statusErr.Error(), expectedMsg)
		}

		status := statusErr.Status()
		if len(status.Details.Causes) != 3 {
			t.Fatalf("expected 3 causes, got %d", len(status.Details.Causes))
		}

		expectedCauses := []struct {
			field   string
			message string
		}{
			{"resource.kind", "kind cannot be empty"},
			{"resource.version", "version cannot be empty"},
			{"resource.name", "name cannot be empty"},
		}
		for i, expected := range expectedCauses {
			cause := status.Details.Causes[i]
			if cause.Field != expected.field {
				t.Errorf("cause[%d]: expected field %q, got %q", i, expected.field, cause.Field)
			}
			if cause.Message != expected.message {
				t.Errorf("cause[%d]: expected message %q, got %q", i, expected.message, cause.Message)
			}
		}
	})

	t.Run("causes include error type for client categorization", func(t *testing.T) {
		errs := field.ErrorList{
			field.Required(field.NewPath("resource", "name"), "name required"),
			field.Invalid(field.NewPath("pageSize"), -1, "must be positive"),
			field.NotSupported(field.NewPath("backend"), "foo", []string{"memory", "file"}),
		}

		status := NewValidationStatusError(gk, "", errs).Status()

		expectedTypes := []string{"FieldValueRequired", "FieldValueInvalid", "FieldValueNotSupported"}
		for i, expected := range expectedTypes {
			if string(status.Details.Causes[i].Type) != expected {
				t.Errorf("cause[%d]: expected type %q, got %q", i, expected, status.Details.Causes[i].Type)
			}
		}
	})
}

func TestFromError(t *testing.T) {
	gk := schema.GroupKind{Group: "apps", Kind: "Deployment"}

	validation := lifecycle.NewValidationError(field.ErrorList{
		field.Required(field.NewPath("resource", "name"), "name cannot be empty"),
	})

	tests := []struct {
		name       string
		err        error
		wantCode   int32
		wantReason metav1.StatusReason
		wantMsg    string
	}{
		{
			name:       "validation error",
			err:        fmt.Errorf("parse lifecycle request: %w", validation),
			wantCode:   http.StatusUnprocessableEntity,
			wantReason: metav1.StatusReasonInvalid,
			wantMsg:    "Name cannot be empty",
		},
		{
			name:       "filter error",
			err:        &cel.FilterError{Message: "Invalid filter: bad token"},
			wantCode:   http.StatusBadRequest,
			wantReason: metav1.StatusReasonBadRequest,
			wantMsg:    "Invalid filter: bad token",
		},
		{
			name: "parse error",
			err: &lifecycle.ParseError{
				Type: "GVK", Input: "x", Reason: "expected version-Kind", Err: lifecycle.ErrInvalidGVK,
			},
			wantCode:   http.StatusBadRequest,
			wantReason: metav1.StatusReasonBadRequest,
			wantMsg:    "Failed to parse GVK",
		},
		{
			name:       "not found",
			err:        fmt.Errorf("lifecycle: %w", lifecycle.ErrResourceNotFound),
			wantCode:   http.StatusNotFound,
			wantReason: metav1.StatusReasonNotFound,
			wantMsg:    "No audit events were found for Deployment",
		},
		{
			name:       "storage error hides backend detail",
			err:        lifecycle.NewStorageError("list", errors.New("dial tcp 10.0.0.1:9000: connection refused")),
			wantCode:   http.StatusServiceUnavailable,
			wantReason: metav1.StatusReasonServiceUnavailable,
			wantMsg:    "temporarily unavailable",
		},
		{
			name:       "status error passes through",
			err:        NewValidationStatusError(gk, "web", field.ErrorList{field.Required(field.NewPath("value"), "value is required")}),
			wantCode:   http.StatusUnprocessableEntity,
			wantReason: metav1.StatusReasonInvalid,
			wantMsg:    "Value is required",
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantCode:   http.StatusInternalServerError,
			wantReason: metav1.StatusReasonInternalError,
			wantMsg:    "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := FromError(tt.err, gk, "web")

			assert.Equal(t, tt.wantCode, status.Code)
			assert.Equal(t, tt.wantReason, status.Reason)
			assert.Equal(t, metav1.StatusFailure, status.Status)
			assert.Equal(t, "Status", status.Kind)
			assert.Contains(t, status.Message, tt.wantMsg)
			assert.NotContains(t, status.Message, "10.0.0.1")
		})
	}
}
