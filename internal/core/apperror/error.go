// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Business rule violations (422)
	CodeBusinessRule = "BUSINESS_RULE_VIOLATION"

	// Report lifecycle violations (422)
	CodeReportCannotBeRegenerated    = "REPORT_CANNOT_BE_REGENERATED"
	CodeYoungerReportExists          = "YOUNGER_REPORT_EXISTS"
	CodeReportNotCompletelyGenerated = "REPORT_NOT_COMPLETELY_GENERATED"
	CodeReportDoesNotFullyIncludeDay = "REPORT_DOES_NOT_FULLY_INCLUDE_REPORTING_DAY"
	CodeOlderReportCannotBeDeleted   = "OLDER_REPORT_IN_WAREHOUSE_CANNOT_BE_DELETED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, report ids, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Report lifecycle errors ---

// NewReportCannotBeRegenerated is returned when a generation step or persist
// action is requested on a report that already finished generating.
func NewReportCannotBeRegenerated(reportID any) *AppError {
	return &AppError{
		Code:       CodeReportCannotBeRegenerated,
		Message:    "Report is already generated and cannot be regenerated",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"report_id": reportID},
	}
}

// NewYoungerReportExists is returned when a permanent report already covers an
// equal-or-later period for the same warehouse.
func NewYoungerReportExists(warehouseID any, untilDate time.Time) *AppError {
	return &AppError{
		Code:       CodeYoungerReportExists,
		Message:    "A permanent report covering an equal or later period already exists for this warehouse",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"warehouse_id": warehouseID, "until_date": untilDate},
	}
}

// NewReportNotCompletelyGenerated is returned when persisting a report whose
// generation has not finished.
func NewReportNotCompletelyGenerated(reportID any) *AppError {
	return &AppError{
		Code:       CodeReportNotCompletelyGenerated,
		Message:    "Report generation is not complete",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"report_id": reportID},
	}
}

// NewReportDoesNotFullyIncludeReportingDay is returned when persisting a report
// whose cutoff was truncated to "now" and does not yet cover the reporting day.
func NewReportDoesNotFullyIncludeReportingDay(reportID any, untilDate time.Time) *AppError {
	return &AppError{
		Code:       CodeReportDoesNotFullyIncludeDay,
		Message:    "Report does not fully include its reporting day yet",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"report_id": reportID, "until_date": untilDate},
	}
}

// NewOlderReportCannotBeDeleted is returned when deleting a permanent report
// that is not the chronologically newest one for its warehouse.
func NewOlderReportCannotBeDeleted(reportID any) *AppError {
	return &AppError{
		Code:       CodeOlderReportCannotBeDeleted,
		Message:    "Only the newest permanent report of a warehouse can be deleted",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"report_id": reportID},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
