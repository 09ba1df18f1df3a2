package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/DanielPopoola/fetchcache/internal/domain"
)

// ErrorMapping normalizes every failure of the wrapped transport into a
// *domain.APIError. Failures without a response re-check connectivity to tell
// an offline device apart from a failing upstream.
type ErrorMapping struct {
	next   application.Transport
	prober application.ConnectivityProber
}

func NewErrorMapping(next application.Transport, prober application.ConnectivityProber) application.Transport {
	return &ErrorMapping{
		next:   next,
		prober: prober,
	}
}

func (m *ErrorMapping) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	resp, err := m.next.Do(ctx, req)
	if err == nil {
		return resp, nil
	}
	return nil, m.normalize(ctx, err)
}

func (m *ErrorMapping) normalize(ctx context.Context, err error) error {
	if _, ok := domain.IsAPIError(err); ok {
		return err
	}

	var statusErr *domain.HTTPStatusError
	if errors.As(err, &statusErr) {
		apiErr := domain.NewStatusError(statusErr.StatusCode, extractMessage(statusErr.Body))
		apiErr.Err = err
		return apiErr
	}

	// The caller's deadline may already be spent; the probe gets its own.
	if m.prober != nil && !m.prober.IsOnline(context.WithoutCancel(ctx)) {
		return domain.NewNetworkError(err)
	}
	return domain.NewRequestFailedError(err)
}

func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
