package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DanielPopoola/fetchcache/internal/config"
	"github.com/DanielPopoola/fetchcache/internal/domain"
	"github.com/DanielPopoola/fetchcache/internal/infrastructure/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(baseURL string) *transport.HTTPTransport {
	return transport.NewHTTPTransport(config.ClientConfig{
		BaseURL:  baseURL,
		Timeout:  time.Second,
		Platform: "ios",
	})
}

func TestHTTPTransport_SendsDefaultHeadersAndParams(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[1,2]}`))
	}))
	defer server.Close()

	resp, err := newTransport(server.URL+"/").Do(context.Background(), &domain.Request{
		Method: http.MethodGet,
		Path:   "feed",
		Params: domain.Params{"page": 2, "q": "go"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[1,2]}`, string(resp.Body))

	require.NotNil(t, got)
	assert.Equal(t, "/feed", got.URL.Path)
	assert.Equal(t, "page=2&q=go", got.URL.RawQuery)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "ios", got.Header.Get(transport.HeaderPlatform))
	assert.NotEmpty(t, got.Header.Get(transport.HeaderRequestID))
}

func TestHTTPTransport_SendsJSONBodyAndCallerHeaders(t *testing.T) {
	var body map[string]any
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer abc")

	resp, err := newTransport(server.URL).Do(context.Background(), &domain.Request{
		Method: http.MethodPost,
		Path:   "/orders",
		Body:   map[string]any{"sku": "A1", "qty": 3},
		Header: header,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Bearer abc", auth)
	assert.Equal(t, "A1", body["sku"])
	assert.EqualValues(t, 3, body["qty"])
}

func TestHTTPTransport_Non2xxIsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such feed"}`))
	}))
	defer server.Close()

	_, err := newTransport(server.URL).Do(context.Background(), &domain.Request{Method: http.MethodGet, Path: "/feed"})
	require.Error(t, err)

	var statusErr *domain.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.JSONEq(t, `{"message":"no such feed"}`, string(statusErr.Body))
}

func TestHTTPTransport_EmptyBodyIsNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := newTransport(server.URL).Do(context.Background(), &domain.Request{Method: http.MethodDelete, Path: "/orders/1"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(resp.Body))
}

func TestHTTPTransport_NonJSONBodyIsKeptAsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`<html>"hi"</html>`))
	}))
	defer server.Close()

	resp, err := newTransport(server.URL).Do(context.Background(), &domain.Request{Method: http.MethodGet, Path: "/feed"})
	require.NoError(t, err)

	var text string
	require.NoError(t, json.Unmarshal(resp.Body, &text))
	assert.Equal(t, `<html>"hi"</html>`, text)
}

func TestHTTPTransport_OversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 16<<20+1))
	}))
	defer server.Close()

	_, err := newTransport(server.URL).Do(context.Background(), &domain.Request{Method: http.MethodGet, Path: "/feed"})
	assert.ErrorIs(t, err, transport.ErrBodyTooLarge)
}

func TestHTTPTransport_PerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTransport(server.URL).Do(context.Background(), &domain.Request{
		Method:  http.MethodGet,
		Path:    "/slow",
		Timeout: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
