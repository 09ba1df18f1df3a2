package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DanielPopoola/fetchcache/internal/config"
	"github.com/DanielPopoola/fetchcache/internal/domain"
)

const (
	HeaderPlatform  = "X-Platform"
	HeaderRequestID = "X-Request-ID"

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 16 << 20
)

var ErrBodyTooLarge = errors.New("response body too large")

// HTTPTransport is the base transport: it knows the base URL, the default
// headers and the per-request timeout, and nothing about caching or errors.
type HTTPTransport struct {
	baseURL    string
	timeout    time.Duration
	headers    http.Header
	httpClient *http.Client
}

func NewHTTPTransport(cfg config.ClientConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	headers.Set(HeaderPlatform, cfg.Platform)

	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		headers: headers,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *HTTPTransport) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != nil {
		jsonData, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	for k, v := range c.headers {
		httpReq.Header[k] = v
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	if httpReq.Header.Get(HeaderRequestID) == "" {
		httpReq.Header.Set(HeaderRequestID, uuid.NewString())
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Only the message is read from an error body; a cut one will do.
		return nil, &domain.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       body[:min(len(body), maxBodyBytes)],
		}
	}

	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxBodyBytes)
	}

	payload, err := payloadOf(body)
	if err != nil {
		return nil, err
	}

	return &domain.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
	}, nil
}

// payloadOf turns a success body into a JSON payload. An empty body is null and
// a body that is not JSON is kept as a JSON string.
func payloadOf(body []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	text, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("error encoding text response: %w", err)
	}
	return json.RawMessage(text), nil
}

func (c *HTTPTransport) url(req *domain.Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(req.Params) > 0 {
		u += "?" + req.Params.Query().Encode()
	}
	return u
}
