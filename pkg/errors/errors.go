package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "RESOURCE_NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeBadRequest      = "BAD_REQUEST"

	// Planning specific codes
	CodeInfeasibleLayout  = "INFEASIBLE_LAYOUT"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeDoubleConsumption = "DOUBLE_CONSUMPTION"
	CodeLockConflict      = "LOCK_CONFLICT"
	CodeLedgerInvariant   = "LEDGER_INVARIANT_VIOLATION"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrConflict creates a conflict error
func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrInfeasibleLayout reports an item that fits no candidate sheet
func ErrInfeasibleLayout(message string) *AppError {
	return NewAppError(CodeInfeasibleLayout, message, http.StatusUnprocessableEntity)
}

// ErrInsufficientStock reports a reservation that exceeds free batch capacity
func ErrInsufficientStock(materialID, requested, available, shortfall string) *AppError {
	return NewAppError(CodeInsufficientStock, "insufficient stock", http.StatusConflict).WithDetails(map[string]string{
		"materialId": materialID,
		"requested":  requested,
		"available":  available,
		"shortfall":  shortfall,
	})
}

// ErrDoubleConsumption reports an attempt to consume a reservation twice
func ErrDoubleConsumption(reservationID string) *AppError {
	return NewAppError(CodeDoubleConsumption, "reservation already consumed", http.StatusConflict).
		WithDetail("reservationId", reservationID)
}

// ErrLockConflict reports an entity lock held by someone else
func ErrLockConflict(entity, holder, expiresAt string) *AppError {
	return NewAppError(CodeLockConflict, fmt.Sprintf("%s is locked", entity), http.StatusLocked).WithDetails(map[string]string{
		"holder":    holder,
		"expiresAt": expiresAt,
	})
}

// ErrLedgerInvariant reports an internal consistency violation in the stock ledger
func ErrLedgerInvariant(message string) *AppError {
	return NewAppError(CodeLedgerInvariant, message, http.StatusInternalServerError)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
