// Package httpx is a thin helper for outbound HTTP calls. It performs the
// request, reads the body, and raises a typed *StatusError on any non-2xx
// response so callers can branch on status without re-reading the body.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError reports a non-2xx response from an outbound HTTP call.
type StatusError struct {
	// StatusCode is the numeric HTTP status (e.g. 429).
	StatusCode int
	// Status is the full status line (e.g. "429 Too Many Requests").
	Status string
	// Body is the response body, retained so callers can extract a
	// provider-specific error message.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: unexpected status %s", e.Status)
}

// Do performs the request with the given client (http.DefaultClient when nil),
// reads the full body, and returns it. A non-2xx status yields the body
// wrapped in a *StatusError.
func Do(client *http.Client, req *http.Request) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpx: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpx: read body from %s: %w", req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	return body, nil
}

// PostJSON marshals in, POSTs it with the given headers, and unmarshals the
// 2xx response body into out (skipped when out is nil). Non-2xx responses
// surface as *StatusError.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("httpx: marshal request for %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("httpx: create request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := Do(client, req)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpx: decode response from %s: %w", url, err)
	}
	return nil
}

// Get performs a GET with the given headers and returns the raw body.
func Get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: create request for %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return Do(client, req)
}
