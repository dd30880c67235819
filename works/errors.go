/*
errors.go - Centralized error types for the works engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these to status codes and error envelope codes.

ERROR CATEGORIES:
  1. Validation errors - per-field, user-correctable, always collected in full
  2. Lookup errors     - unknown sno / username
  3. Conflict errors   - duplicate username
  4. Backend errors    - the record store could not be reached or failed

  Backend errors are surfaced as-is and never retried here. Callers can tell
  "your input is wrong" (IsClientError) from "the system is down"
  (IsBackendUnreachable).

SEE ALSO:
  - validate.go: Produces ValidationErrors
  - store/sqlite/sqlite.go: Produces BackendError
  - api/errors.go: Maps errors to the JSON envelope
*/
package works

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTaskNotFound is returned when no task has the requested sno.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUserNotFound is returned when no user has the requested username.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUsername is returned when creating a user whose name is taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrBackendUnreachable is returned when the record store fails.
	ErrBackendUnreachable = errors.New("record store unavailable")

	// ErrValidation is the sentinel behind ValidationErrors.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is one violated rule, attached to the field the user must fix.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is the full list of violated rules for one submission,
// in canonical field order.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Fields returns the errors as a field -> message map.
func (v ValidationErrors) Fields() map[string]string {
	m := make(map[string]string, len(v))
	for _, fe := range v {
		m[fe.Field] = fe.Message
	}
	return m
}

// On returns the message attached to field, if any.
func (v ValidationErrors) On(field string) (string, bool) {
	for _, fe := range v {
		if fe.Field == field {
			return fe.Message, true
		}
	}
	return "", false
}

// BackendError wraps a store failure with the operation that hit it.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnreachable, e.Err}
}

// Backend wraps err as a BackendError for op. A nil err stays nil.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateUsername)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsBackendUnreachable returns true if the record store failed.
func IsBackendUnreachable(err error) bool {
	return errors.Is(err, ErrBackendUnreachable)
}
