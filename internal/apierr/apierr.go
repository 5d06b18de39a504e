// Package apierr defines the closed set of API error codes and their HTTP mapping.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an API error category. The set is closed: handlers must not
// invent new codes.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeDataNotReady        Code = "DATA_NOT_READY"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeRiskCheckFail       Code = "RISK_CHECK_FAIL"
	CodeLiveNotAvailable    Code = "LIVE_NOT_AVAILABLE"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is an API-visible error with a code, message and optional details.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches a details map and returns the error for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Validation builds a VALIDATION_ERROR.
func Validation(format string, args ...interface{}) *Error {
	return Newf(CodeValidation, format, args...)
}

// DataNotReady builds a DATA_NOT_READY error.
func DataNotReady(format string, args ...interface{}) *Error {
	return Newf(CodeDataNotReady, format, args...)
}

// ProviderUnavailable builds a PROVIDER_UNAVAILABLE error.
func ProviderUnavailable(format string, args ...interface{}) *Error {
	return Newf(CodeProviderUnavailable, format, args...)
}

// Internal builds an INTERNAL_ERROR.
func Internal(format string, args ...interface{}) *Error {
	return Newf(CodeInternal, format, args...)
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeDataNotReady, CodeProviderUnavailable, CodeRiskCheckFail, CodeLiveNotAvailable:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// From converts any error into an *Error. Non-API errors become INTERNAL_ERROR.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
