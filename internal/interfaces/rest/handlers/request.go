package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/application/services"
	"github.com/DanielPopoola/fetchcache/internal/domain"
	"github.com/DanielPopoola/fetchcache/internal/interfaces/rest/middleware"
)

const (
	maxBodyBytes = 1 << 20

	// responseHeadroom is held back from the request deadline so a cached
	// fallback or a mapped error is written before the server gives up.
	responseHeadroom = 250 * time.Millisecond
)

// forwardedHeaders are copied from the sidecar request to the upstream call.
var forwardedHeaders = []string{"Authorization", "Accept-Language"}

type fetchQuery struct {
	Path      string `validate:"required,startswith=/,max=2048"`
	Params    string `validate:"max=8192"`
	TimeoutMS int    `validate:"omitempty,min=1,max=60000"`
}

func parseQuery(r *http.Request) (fetchQuery, error) {
	q := r.URL.Query()
	fq := fetchQuery{
		Path:   q.Get("path"),
		Params: q.Get("params"),
	}
	if raw := q.Get("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return fq, fmt.Errorf("timeout_ms must be an integer")
		}
		fq.TimeoutMS = ms
	}
	return fq, nil
}

// decodeParams reads the params query value as a JSON object. Numbers stay
// json.Number so their text is preserved in the cache key.
func decodeParams(raw string) (domain.Params, error) {
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()

	var params domain.Params
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// readBody returns the request body as raw JSON, or nil when empty.
func readBody(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("body too large")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("body must be valid JSON")
	}
	return json.RawMessage(body), nil
}

func requestOptions(r *http.Request, fq fetchQuery) []services.RequestOption {
	var opts []services.RequestOption
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			opts = append(opts, services.WithHeader(name, v))
		}
	}
	if id := middleware.RequestIDFrom(r.Context()); id != "" {
		opts = append(opts, services.WithHeader(middleware.HeaderRequestID, id))
	}
	if fq.TimeoutMS > 0 {
		opts = append(opts, services.WithTimeout(time.Duration(fq.TimeoutMS)*time.Millisecond))
	}
	return opts
}

// upstreamContext ends the upstream call responseHeadroom before the request
// deadline, when there is one.
func upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-responseHeadroom))
}
