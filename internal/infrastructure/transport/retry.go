package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/application"
	"github.com/DanielPopoola/fetchcache/internal/config"
	"github.com/DanielPopoola/fetchcache/internal/domain"
)

var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

// Retry repeats idempotent requests that failed transiently. Writes always go
// through exactly once.
type Retry struct {
	next        application.Transport
	baseDelay   time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func NewRetry(next application.Transport, cfg config.RetryConfig, logger *slog.Logger) application.Transport {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retry{
		next:        next,
		baseDelay:   cfg.BaseDelay,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (r *Retry) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if r.maxAttempts == 1 || !req.Idempotent() {
		return r.next.Do(ctx, req)
	}

	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		resp, err := r.next.Do(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !application.IsRetryable(err) {
			return nil, err
		}

		if attempt < r.maxAttempts-1 {
			delay := r.backoff(attempt)
			r.logger.Debug("retrying request",
				"method", req.Method,
				"path", req.Path,
				"attempt", attempt+1,
				"delay", delay,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

const (
	maxBackoffShift = 16
	maxBackoff      = 30 * time.Second
)

// Backoff calculation with exponential delay and jitter
func (r *Retry) backoff(attempt int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	base := min(r.baseDelay*time.Duration(1<<min(attempt, maxBackoffShift)), maxBackoff)

	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))

	return base + jitter
}
