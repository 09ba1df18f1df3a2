package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/fetchcache/internal/interfaces/rest"
)

// TestClient wraps HTTP calls to the sidecar
type TestClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func fetchQuery(path, params string) string {
	q := url.Values{}
	q.Set("path", path)
	if params != "" {
		q.Set("params", params)
	}
	return q.Encode()
}

func (c *TestClient) do(t *testing.T, method, route, body string) (int, rest.APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+route, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out rest.APIResponse
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

// Get calls GET /v1/fetch
func (c *TestClient) Get(t *testing.T, path, params string) (int, rest.APIResponse) {
	return c.do(t, http.MethodGet, "/v1/fetch?"+fetchQuery(path, params), "")
}

// Post calls POST /v1/fetch
func (c *TestClient) Post(t *testing.T, path, body string) (int, rest.APIResponse) {
	return c.do(t, http.MethodPost, "/v1/fetch?"+fetchQuery(path, ""), body)
}

// Invalidate calls DELETE /v1/cache
func (c *TestClient) Invalidate(t *testing.T, path, params string) {
	status, _ := c.do(t, http.MethodDelete, "/v1/cache?"+fetchQuery(path, params), "")
	require.Equal(t, http.StatusOK, status)
}

// ClearAll calls DELETE /v1/cache/all
func (c *TestClient) ClearAll(t *testing.T) {
	status, _ := c.do(t, http.MethodDelete, "/v1/cache/all", "")
	require.Equal(t, http.StatusOK, status)
}

// Metrics returns the raw exposition text
func (c *TestClient) Metrics(t *testing.T) string {
	resp, err := c.httpClient.Get(c.baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func dataJSON(t *testing.T, resp rest.APIResponse) string {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	return string(raw)
}

func errorCode(resp rest.APIResponse) string {
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}
