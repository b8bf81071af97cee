// Package errors maps the errors of the graph, store and access layers to
// HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/security"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for Facts and Objects missing from the store.
	ErrNotFound = errors.New("not found")
)

// statusRule maps any of its sentinels to one response.
type statusRule struct {
	sentinels []error
	code      int
	message   string
}

// Rules are checked in order; denials win over lookups.
var statusRules = []statusRule{
	{[]error{ErrUnauthorized, security.ErrAuthenticationFailed}, http.StatusUnauthorized, "Unknown subject"},
	{[]error{ErrForbidden, security.ErrAccessDenied}, http.StatusForbidden, "Access denied"},
	{[]error{ErrInvalidInput}, http.StatusBadRequest, "Invalid request"},
	{[]error{ErrNotFound, model.ErrNotFound}, http.StatusNotFound, "Resource not found"},
	{[]error{model.ErrDataIntegrity}, http.StatusInternalServerError, "Data integrity fault"},
}

// AppError carries the HTTP status chosen for an error.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// MapError returns err as an AppError. Errors matching no rule are 500.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, rule := range statusRules {
		for _, sentinel := range rule.sentinels {
			if errors.Is(err, sentinel) {
				return NewAppError(rule.code, rule.message, err)
			}
		}
	}
	return NewAppError(http.StatusInternalServerError, "Internal server error", err)
}
