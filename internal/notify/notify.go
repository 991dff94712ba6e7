// Package notify signals the public site to regenerate cached pages
// after content changes. Delivery is strictly best-effort: a failed or
// unconfigured signal never fails the operation that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	appLog "scoopcms/internal/log"
)

// Client posts cache-invalidation requests to the site's revalidate
// endpoint.
type Client struct {
	url    string
	client *http.Client
}

// NewClient builds a notify client for the given revalidate URL. An
// empty URL yields a client whose Invalidate is a no-op.
func NewClient(url string) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithHTTPClient swaps the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// Invalidate asks the site to regenerate the given paths. Errors are
// logged and swallowed.
func (c *Client) Invalidate(ctx context.Context, paths ...string) {
	if c == nil || c.url == "" || len(paths) == 0 {
		return
	}

	body, err := json.Marshal(struct {
		Paths []string `json:"paths"`
	}{Paths: paths})
	if err != nil {
		appLog.Error("notify: marshal payload failed", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		appLog.Error("notify: build request failed", err, "url", c.url)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		appLog.Error("notify: revalidate request failed", err, "url", c.url)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		appLog.Error("notify: revalidate rejected", errors.New(resp.Status), "url", c.url, "status", resp.StatusCode)
		return
	}

	appLog.Info("notify: revalidated paths", "paths", len(paths))
}
