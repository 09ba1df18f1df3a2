package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Request is a single outbound call as seen by the transport chain.
type Request struct {
	Method  string
	Path    string
	Params  Params
	Body    any
	Header  http.Header
	Timeout time.Duration
}

// Idempotent reports whether the request may be sent more than once.
func (r *Request) Idempotent() bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

// HTTPStatusError is returned by the base transport for a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// IsRetryable reports whether repeating the request could succeed.
func (e *HTTPStatusError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
)

// FetchResult carries a payload together with where it came from.
type FetchResult struct {
	Data     json.RawMessage
	Source   Source
	StoredAt time.Time
}

// FromCache reports whether the payload was served from the cache in place of a
// network response.
func (r *FetchResult) FromCache() bool {
	return r.Source == SourceCache
}
