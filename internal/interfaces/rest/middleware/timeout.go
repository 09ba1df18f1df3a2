package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/interfaces/rest"
)

// Timeout bounds the whole request, upstream call included. A request that
// runs out of time gets 503 with the standard error envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(rest.APIResponse{
		Error: &rest.ErrorDetail{
			Code:    "TIMEOUT",
			Message: "Request timeout",
		},
	})

	return func(next http.Handler) http.Handler {
		th := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// TimeoutHandler writes its body without headers. Headers set by next
			// replace this one when it finishes in time.
			w.Header().Set("Content-Type", "application/json")
			th.ServeHTTP(w, r)
		})
	}
}
