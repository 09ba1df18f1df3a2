package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_BackoffGrowsAndStaysBounded(t *testing.T) {
	r := &Retry{baseDelay: 100 * time.Millisecond}

	first := r.backoff(0)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.LessOrEqual(t, first, 150*time.Millisecond)

	second := r.backoff(1)
	assert.GreaterOrEqual(t, second, 200*time.Millisecond)

	for _, attempt := range []int{20, 63, 64, 1000} {
		d := r.backoff(attempt)
		assert.GreaterOrEqual(t, d, maxBackoff, "attempt %d", attempt)
		assert.LessOrEqual(t, d, maxBackoff+maxBackoff/2, "attempt %d", attempt)
	}
}

func TestRetry_NoBaseDelayMeansNoWait(t *testing.T) {
	r := &Retry{}
	assert.Zero(t, r.backoff(5))
}
