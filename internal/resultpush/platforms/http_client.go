package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	userAgent       = "cricket-auction-resultpush/1.0"
	maxErrorBodyLen = 256
)

// StatusError is a non-2xx webhook response. RetryAfter is set when the
// platform rate limited the request.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push failed with status %d", e.Status)
	}
	return fmt.Sprintf("push failed with status %d: %s", e.Status, e.Body)
}

type HTTPClient struct {
	inner *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{inner: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) PostJSON(ctx context.Context, endpoint string, headers map[string]string, body any) error {
	_, _, err := c.PostJSONWithResponse(ctx, endpoint, headers, body)
	return err
}

func (c *HTTPClient) PostJSONWithResponse(ctx context.Context, endpoint string, headers map[string]string, body any) (int, []byte, error) {
	return c.sendJSON(ctx, http.MethodPost, endpoint, headers, body)
}

func (c *HTTPClient) PatchJSONWithResponse(ctx context.Context, endpoint string, headers map[string]string, body any) (int, []byte, error) {
	return c.sendJSON(ctx, http.MethodPatch, endpoint, headers, body)
}

func (c *HTTPClient) sendJSON(ctx context.Context, method, endpoint string, headers map[string]string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.inner.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	bodyRaw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return resp.StatusCode, nil, readErr
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, bodyRaw, nil
	}
	return resp.StatusCode, bodyRaw, &StatusError{
		Status:     resp.StatusCode,
		Body:       truncate(strings.TrimSpace(string(bodyRaw)), maxErrorBodyLen),
		RetryAfter: retryAfter(resp),
	}
}

// retryAfter reads Retry-After in seconds. Only 429 responses carry it.
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
