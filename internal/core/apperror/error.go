// Package apperror defines the error taxonomy. Every error that crosses a
// service boundary is an AppError so callers can branch on Code and the
// HTTP layer can map status without inspecting messages.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	CodeValidation = "VALIDATION_ERROR"

	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeNoHistory         = "NO_HISTORY"

	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"

	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
)

// AppError pairs a machine-readable code with a message, optional
// structured details for the response body, the HTTP status to render
// with, and the wrapped cause.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches one detail entry and returns the error for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// NewValidation reports malformed or inconsistent input. 400.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound reports a missing entity. 404.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInsufficientStock reports that consumption demanded more than the
// item's active batches hold. Details carry the required and available
// quantities so the caller can display the gap. 422.
func NewInsufficientStock(sku, required, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"sku":       sku,
			"required":  required,
			"available": available,
		},
	}
}

// NewNoHistory reports that no qualifying ledger entries exist for the
// item and period. Callers treat it as a skip, not a failure. 422.
func NewNoHistory(sku, period string) *AppError {
	return &AppError{
		Code:       CodeNoHistory,
		Message:    "No ledger history for item in period",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"sku": sku, "period": period},
	}
}

// NewAlreadyExists reports a natural-key collision. Callers that generate
// idempotently treat it as a no-op. 409.
func NewAlreadyExists(entity string, key any) *AppError {
	return &AppError{
		Code:       CodeAlreadyExists,
		Message:    fmt.Sprintf("%s already exists", entity),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "key": key},
	}
}

// NewConcurrencyConflict reports that a concurrent writer invalidated rows
// this operation locked or read. The whole operation is safe to retry. 409.
func NewConcurrencyConflict(entity string, key any) *AppError {
	return &AppError{
		Code:       CodeConcurrencyConflict,
		Message:    "Concurrent modification detected. Retry the operation.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "key": key},
	}
}

// NewDatabase wraps a store failure. 500.
func NewDatabase(err error) *AppError {
	return &AppError{
		Code:       CodeDatabase,
		Message:    "Database error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInternal wraps an unexpected failure, hiding the cause from the
// client. 500.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized reports a missing or failed authentication. 401.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// AsAppError unwraps err to the first AppError in its chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus maps any error to a response status, defaulting to 500.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool            { return IsCode(err, CodeNotFound) }
func IsInsufficientStock(err error) bool   { return IsCode(err, CodeInsufficientStock) }
func IsAlreadyExists(err error) bool       { return IsCode(err, CodeAlreadyExists) }
func IsNoHistory(err error) bool           { return IsCode(err, CodeNoHistory) }
func IsConcurrencyConflict(err error) bool { return IsCode(err, CodeConcurrencyConflict) }
