package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// APIError is the normalized failure shape handed to callers of the fetch client.
type APIError struct {
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *APIError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeOfflineNoCache = "OFFLINE_NO_CACHE"
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeRequestFailed  = "REQUEST_FAILED"
	ErrCodeInvalidPath    = "INVALID_PATH"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeDecodeFailed   = "DECODE_FAILED"
)

func NewOfflineNoCacheError() *APIError {
	return &APIError{
		Code:    ErrCodeOfflineNoCache,
		Message: "You are offline and no cached data is available",
	}
}

func NewNetworkError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeNetwork,
		Message: "You are offline. Please check your connection.",
		Err:     err,
	}
}

func NewRequestFailedError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeRequestFailed,
		Message: "The request failed. Please try again later.",
		Err:     err,
	}
}

func NewInvalidPathError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidPath,
		Message: "path is required",
	}
}

func NewInvalidParamsError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidParams,
		Message: "params must hold only string, number or boolean values",
		Err:     err,
	}
}

func NewDecodeFailedError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeDecodeFailed,
		Message: "response payload could not be decoded",
		Err:     err,
	}
}

// NewStatusError builds the error for a non-2xx response. The message from the
// response body wins over the per-status default when it is non-empty.
func NewStatusError(status int, bodyMessage string) *APIError {
	msg := bodyMessage
	if msg == "" {
		msg = DefaultStatusMessage(status)
	}
	return &APIError{
		Code:    strconv.Itoa(status),
		Message: msg,
	}
}

func DefaultStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Bad request"
	case http.StatusUnauthorized:
		return "Unauthorized. Please login again"
	case http.StatusForbidden:
		return "You do not have permission to access this resource"
	case http.StatusNotFound:
		return "The requested resource was not found"
	case http.StatusInternalServerError:
		return "Server error. Please try again later"
	default:
		return "Unknown error occurred"
	}
}

// StatusCode returns the HTTP status carried by an error code like "404", or 0.
func (e *APIError) StatusCode() int {
	status, err := strconv.Atoi(e.Code)
	if err != nil {
		return 0
	}
	return status
}

func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// IsErrorCode checks if an error is an APIError with a specific code
func IsErrorCode(err error, code string) bool {
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.Code == code
	}
	return false
}
