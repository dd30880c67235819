/*
errors.go - JSON error envelope and error-to-status mapping

ENVELOPE:
  {
    "trace_id": "<uuid>",
    "error": {
      "code": "VALIDATION_ERROR",
      "message": "Validation failed.",
      "field_errors": {"estimate_amount": "Must be non-negative"}
    }
  }

  field_errors is present only for record validation failures.

MAPPING:
  works.ValidationErrors        422 VALIDATION_ERROR (with field_errors)
  queryError                    400 INVALID_QUERY
  bad JSON body                 400 BAD_REQUEST
  works.ErrTaskNotFound/User    404 NOT_FOUND
  works.ErrDuplicateUsername    409 CONFLICT
  works.ErrBackendUnreachable   503 BACKEND_UNREACHABLE
  auth.ErrInvalidCredentials    401 AUTH_FAILED
  auth.ErrInvalidToken          401 AUTH_FAILED
  auth.ErrInactiveUser          403 NOT_AUTHORIZED
  errForbidden                  403 NOT_AUTHORIZED
  auth.ErrRateLimited           429 RATE_LIMITED
  anything else                 500 INTERNAL_ERROR (logged, message hidden)

SEE ALSO:
  - works/errors.go: Domain error types
  - auth/auth.go:    Authentication errors
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/rkv/capital-works/auth"
	"github.com/rkv/capital-works/works"
)

// Error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidQuery       = "INVALID_QUERY"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeBackendUnreachable = "BACKEND_UNREACHABLE"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeNotAuthorized      = "NOT_AUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

var (
	errForbidden        = errors.New("not allowed")
	errNotAuthenticated = errors.New("not authenticated")
)

// ErrorBody is the inner object of the error envelope.
type ErrorBody struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	TraceID string    `json:"trace_id"`
	Error   ErrorBody `json:"error"`
}

// queryError is a rejected query parameter.
type queryError struct {
	Param string
}

func (e *queryError) Error() string {
	return "Invalid " + e.Param + "."
}

func invalidQuery(param string) error {
	return &queryError{Param: param}
}

// apiError is an error with an explicit status, code and client message.
type apiError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *apiError) Error() string {
	return e.Message
}

func (e *apiError) Unwrap() error {
	return e.Err
}

func badRequest(message string, err error) error {
	return &apiError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message, Err: err}
}

// forbidden is a 403 with a specific message. It matches errForbidden.
func forbidden(message string) error {
	return &apiError{Status: http.StatusForbidden, Code: CodeNotAuthorized, Message: message, Err: errForbidden}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status and writes the envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s trace=%s: %v", r.Method, r.URL.Path, TraceID(r.Context()), err)
	}
	writeJSON(w, status, ErrorResponse{
		TraceID: TraceID(r.Context()),
		Error:   body,
	})
}

func classify(err error) (int, ErrorBody) {
	var (
		verrs  works.ValidationErrors
		qerr   *queryError
		aerr   *apiError
		status int
		body   ErrorBody
	)

	switch {
	case errors.As(err, &verrs):
		status = http.StatusUnprocessableEntity
		body = ErrorBody{Code: CodeValidation, Message: "Validation failed.", FieldErrors: verrs.Fields()}
	case errors.As(err, &qerr):
		status = http.StatusBadRequest
		body = ErrorBody{Code: CodeInvalidQuery, Message: qerr.Error()}
	case errors.As(err, &aerr):
		status = aerr.Status
		body = ErrorBody{Code: aerr.Code, Message: aerr.Message}
	case errors.Is(err, auth.ErrRateLimited):
		status = http.StatusTooManyRequests
		body = ErrorBody{Code: CodeRateLimited, Message: "Too many login attempts. Try again later."}
	case errors.Is(err, works.ErrTaskNotFound):
		status = http.StatusNotFound
		body = ErrorBody{Code: CodeNotFound, Message: "Task not found."}
	case errors.Is(err, works.ErrUserNotFound):
		status = http.StatusNotFound
		body = ErrorBody{Code: CodeNotFound, Message: "User not found."}
	case errors.Is(err, works.ErrDuplicateUsername):
		status = http.StatusConflict
		body = ErrorBody{Code: CodeConflict, Message: "Username already exists."}
	case works.IsBackendUnreachable(err):
		status = http.StatusServiceUnavailable
		body = ErrorBody{Code: CodeBackendUnreachable, Message: "Record store unavailable. Try again later."}
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body = ErrorBody{Code: CodeAuthFailed, Message: "Invalid credentials."}
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
		body = ErrorBody{Code: CodeAuthFailed, Message: "Invalid token."}
	case errors.Is(err, errNotAuthenticated):
		status = http.StatusUnauthorized
		body = ErrorBody{Code: CodeAuthFailed, Message: "Not authenticated."}
	case errors.Is(err, auth.ErrInactiveUser):
		status = http.StatusForbidden
		body = ErrorBody{Code: CodeNotAuthorized, Message: "User is inactive."}
	case errors.Is(err, errForbidden):
		status = http.StatusForbidden
		body = ErrorBody{Code: CodeNotAuthorized, Message: "Not allowed."}
	default:
		status = http.StatusInternalServerError
		body = ErrorBody{Code: CodeInternal, Message: "Internal server error."}
	}
	return status, body
}
