package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeInvalidInput = "INVALID_INPUT"

	// Contention codes: expected under load, the caller decides whether to
	// retry with backoff. Never retried inside the engine.
	CodeBusy             = "BUSY"
	CodeExpired          = "EXPIRED"
	CodeVersionConflict  = "VERSION_CONFLICT"
	CodeAlreadyConverted = "ALREADY_CONVERTED"

	// Infrastructure codes: the system is broken, not "someone else won".
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeLockUnavailable  = "LOCK_SERVICE_UNAVAILABLE"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Retryable  bool           `json:"retryable"`
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

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Busy reports that another live claim already exists for the resource key.
// holderRef identifies the competing claim so the caller can surface it.
func Busy(message string, holderRef string) *AppError {
	return &AppError{
		Code:       CodeBusy,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
		Details: map[string]any{
			"holder_ref": holderRef,
		},
	}
}

func Expired(message string) *AppError {
	return &AppError{
		Code:       CodeExpired,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
	}
}

func VersionConflict(expected, actual int64) *AppError {
	return &AppError{
		Code:       CodeVersionConflict,
		Message:    "Record version changed since it was read",
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
		Details: map[string]any{
			"expected_version": expected,
			"actual_version":   actual,
		},
	}
}

func AlreadyConverted(holdID, bookingID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyConverted,
		Message:    "Hold has already been converted",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"hold_id":    holdID,
			"booking_id": bookingID,
		},
	}
}

func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "Durable store is unreachable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func LockServiceUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeLockUnavailable,
		Message:    "Lock service is unreachable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}
