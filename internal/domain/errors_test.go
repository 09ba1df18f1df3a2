package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DanielPopoola/fetchcache/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		code    string
		message string
	}{
		{400, "", "400", "Bad request"},
		{401, "", "401", "Unauthorized. Please login again"},
		{403, "", "403", "You do not have permission to access this resource"},
		{404, "", "404", "The requested resource was not found"},
		{500, "", "500", "Server error. Please try again later"},
		{418, "", "418", "Unknown error occurred"},
		{404, "item 7 is gone", "404", "item 7 is gone"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %q", tt.status, tt.body), func(t *testing.T) {
			err := domain.NewStatusError(tt.status, tt.body)

			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.status, err.StatusCode())
		})
	}
}

func TestIsErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("loading feed: %w", domain.NewOfflineNoCacheError())

	assert.True(t, domain.IsErrorCode(wrapped, domain.ErrCodeOfflineNoCache))
	assert.False(t, domain.IsErrorCode(wrapped, domain.ErrCodeNetwork))
	assert.False(t, domain.IsErrorCode(errors.New("plain"), domain.ErrCodeNetwork))
	assert.Equal(t, 0, domain.NewOfflineNoCacheError().StatusCode())
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := domain.NewRequestFailedError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "REQUEST_FAILED")
}
