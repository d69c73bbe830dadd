package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	followRedirects bool
	timeout         time.Duration
}

// WithFollowRedirects makes the client follow 3xx responses.
func WithFollowRedirects() ClientOption {
	return func(o *clientOptions) { o.followRedirects = true }
}

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = timeout }
}

// Client sends requests to one running application.
type Client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, base *http.Client, opts ...ClientOption) *Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	hc := &http.Client{
		Transport: base.Transport,
		Jar:       base.Jar,
		Timeout:   o.timeout,
	}
	if !o.followRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    hc,
	}
}

// URL returns the absolute URL for path.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// HTTPClient returns the underlying client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do sends req as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Get sends a GET request for path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJSON encodes body as JSON and POSTs it to path.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// DecodeJSON reads and closes resp.Body, decoding it into v.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response body %q: %w", data, err)
	}
	return nil
}
