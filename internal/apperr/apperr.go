// Package apperr defines the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// GetStatus makes AppError a huma.StatusError so handlers can return it directly.
func (e *AppError) GetStatus() int {
	return e.Status
}

// WithStatus returns a copy carrying a different HTTP status.
func (e *AppError) WithStatus(status int) *AppError {
	c := *e
	c.Status = status
	return &c
}

const (
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyCompleted = "ALREADY_COMPLETED"
	CodeExpired          = "EXPIRED"
	CodeHashMismatch     = "HASH_MISMATCH"
	CodeLocationMismatch = "LOCATION_MISMATCH"
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
)

func NotFound(resource string) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Reason:  "not found",
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func AlreadyCompleted(message string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodeAlreadyCompleted,
		Reason:  "already completed",
		Message: message,
	}
}

func Expired(message string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeExpired,
		Reason:  "expired",
		Message: message,
	}
}

func HashMismatch(message string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeHashMismatch,
		Reason:  "invalid",
		Message: message,
	}
}

func LocationMismatch(message string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeLocationMismatch,
		Reason:  "location mismatch",
		Message: message,
	}
}

func Validation(message, details string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Reason:  "invalid request",
		Message: message,
		Details: details,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeUnauthorized,
		Reason:  "unauthorized",
		Message: message,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Reason:  "forbidden",
		Message: message,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Status:  http.StatusConflict,
		Code:    CodeConflict,
		Reason:  "conflict",
		Message: message,
	}
}

func Internal(message string, err error) *AppError {
	e := &AppError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: message,
	}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// Is reports whether err carries an AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}

// From converts any error into an AppError, wrapping unknown errors as internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return Internal("internal server error", err)
}
