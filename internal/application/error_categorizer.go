package application

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/DanielPopoola/fetchcache/internal/domain"
)

// ErrorCategory represents the nature of an error for retry and fallback decisions
type ErrorCategory string

const (
	CategoryTransient   ErrorCategory = "TRANSIENT"
	CategoryPermanent   ErrorCategory = "PERMANENT"
	CategoryClientError ErrorCategory = "CLIENT_ERROR"
	CategoryOffline     ErrorCategory = "OFFLINE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return CategoryClientError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	if apiErr, ok := domain.IsAPIError(err); ok {
		switch apiErr.Code {
		case domain.ErrCodeOfflineNoCache, domain.ErrCodeNetwork:
			return CategoryOffline
		case domain.ErrCodeRequestFailed:
			return CategoryTransient
		case domain.ErrCodeInvalidPath, domain.ErrCodeInvalidParams, domain.ErrCodeDecodeFailed:
			return CategoryClientError
		}
		if status := apiErr.StatusCode(); status > 0 {
			return categorizeStatus(status)
		}
		return CategoryPermanent
	}

	var statusErr *domain.HTTPStatusError
	if errors.As(err, &statusErr) {
		return categorizeStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransient
	}

	// Default: Transient (safe fallback)
	return CategoryTransient
}

func categorizeStatus(status int) ErrorCategory {
	switch {
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return CategoryTransient
	case status >= 400:
		return CategoryClientError
	default:
		return CategoryPermanent
	}
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}

// ToHTTPStatus maps a client error to the status the sidecar answers with
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if apiErr, ok := domain.IsAPIError(err); ok {
		if status := apiErr.StatusCode(); status >= 400 && status <= 599 {
			return status
		}
		switch apiErr.Code {
		case domain.ErrCodeOfflineNoCache, domain.ErrCodeNetwork:
			return http.StatusServiceUnavailable
		case domain.ErrCodeRequestFailed, domain.ErrCodeDecodeFailed:
			return http.StatusBadGateway
		case domain.ErrCodeInvalidPath, domain.ErrCodeInvalidParams:
			return http.StatusBadRequest
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}

	// Default to 500
	return http.StatusInternalServerError
}

// ToErrorCode returns the code reported to API consumers
func ToErrorCode(err error) string {
	if apiErr, ok := domain.IsAPIError(err); ok {
		return apiErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}

	return "INTERNAL_ERROR"
}

// ToErrorMessage returns the human readable message for API consumers
func ToErrorMessage(err error) string {
	if apiErr, ok := domain.IsAPIError(err); ok {
		return apiErr.Message
	}
	return "An internal error occurred"
}
