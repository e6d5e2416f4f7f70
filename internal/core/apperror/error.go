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

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnitNotFound = "UNIT_NOT_FOUND"

	// Business rule violations (422)
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeBatchDepleted     = "BATCH_DEPLETED"

	// Consistency failures (500, must alarm)
	CodeSanityViolation = "SANITY_VIOLATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeDuplicateSubmission    = "DUPLICATE_SUBMISSION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
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

// NewUnitNotFound reports an unknown unit name for an item (caller's input error).
func NewUnitNotFound(itemID, unitName string) *AppError {
	return &AppError{
		Code:       CodeUnitNotFound,
		Message:    fmt.Sprintf("unit %q is not configured for this item", unitName),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"item_id": itemID, "unit": unitName},
	}
}

// NewInsufficientStock creates a stock shortage error carrying the shortage
// amounts so the caller can report needed vs available.
func NewInsufficientStock(itemID string, needed, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"item_id":   itemID,
			"needed":    needed,
			"available": available,
		},
	}
}

// NewInvalidTransition reports a document that is not in the required state
// for the requested operation.
func NewInvalidTransition(docType, current, required string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("%s is %s; operation requires %s", docType, current, required),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"document_type":   docType,
			"current_status":  current,
			"required_status": required,
		},
	}
}

// NewSanityViolation reports a post-deduction balance that went negative.
// This is an internal consistency failure: it must abort the transaction and
// alarm, never be surfaced as an ordinary user error.
func NewSanityViolation(itemID, branchID, balance string) *AppError {
	return &AppError{
		Code:       CodeSanityViolation,
		Message:    "stock balance went negative after deduction",
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{
			"item_id":   itemID,
			"branch_id": branchID,
			"balance":   balance,
		},
	}
}

// NewDuplicateSubmission rejects a near-identical request inside the
// double-click dedup window.
func NewDuplicateSubmission(window time.Duration) *AppError {
	return &AppError{
		Code:       CodeDuplicateSubmission,
		Message:    "an identical request was submitted moments ago",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"window_seconds": window.Seconds()},
	}
}

// NewBatchDepleted rejects an operation against a batch with no remaining stock.
func NewBatchDepleted(itemID, batchNumber string) *AppError {
	return &AppError{
		Code:       CodeBatchDepleted,
		Message:    "batch has no remaining stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"item_id": itemID, "batch_number": batchNumber},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
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

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
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

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsInsufficientStock checks if error is CodeInsufficientStock
func IsInsufficientStock(err error) bool {
	return IsCode(err, CodeInsufficientStock)
}

// IsInvalidTransition checks if error is CodeInvalidTransition
func IsInvalidTransition(err error) bool {
	return IsCode(err, CodeInvalidTransition)
}

// IsSanityViolation checks if error is CodeSanityViolation
func IsSanityViolation(err error) bool {
	return IsCode(err, CodeSanityViolation)
}
