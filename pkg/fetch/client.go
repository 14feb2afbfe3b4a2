// Package fetch wraps net/http with the browser-like headers, timeouts, and
// typed errors the scraping engines and the downloader share. A Client is
// constructed per run and passed in explicitly; there is no package-level
// session.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "imggrab/pkg/errors"
	"imggrab/pkg/logger"
)

// maxImageBytes caps a single image download (64 MiB).
const maxImageBytes = 64 << 20

// maxHTMLBytes caps a single page fetch (8 MiB).
const maxHTMLBytes = 8 << 20

// Client is an HTTP client with default headers shared across requests.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a client with a per-request timeout and User-Agent.
func NewClient(timeout time.Duration, userAgent string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		},
		logger: log,
	}
}

// SetHeader sets a default header for all subsequent requests.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHTTPClient replaces the underlying http.Client. Used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// doRequest performs an HTTP request with the configured headers.
func (c *Client) doRequest(req *http.Request, extra map[string]string) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range extra {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// statusError converts a non-2xx response status into a typed error.
func statusError(statusCode int) *errs.Error {
	var t errs.ErrorType
	switch {
	case statusCode == http.StatusNotFound:
		t = errs.ErrorTypeNotFound
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		t = errs.ErrorTypeServerError
	default:
		t = errs.ErrorTypeUnknown
	}
	return &errs.Error{
		Type:    t,
		Message: fmt.Sprintf("server returned status %d", statusCode),
		Code:    statusCode,
	}
}

// GetHTML fetches a page and returns its body as a string.
func (c *Client) GetHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	resp, err := c.doRequest(req, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return "", &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
		}
	}

	return string(body), nil
}

// FetchImage downloads an image and returns its bytes and content type.
// The referer header lets hotlink-protected hosts serve the image.
func (c *Client) FetchImage(ctx context.Context, url, referer string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	var extra map[string]string
	if referer != "" {
		extra = map[string]string{"Referer": referer}
	}

	resp, err := c.doRequest(req, extra)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read image body: %v", err),
		}
	}

	return data, resp.Header.Get("Content-Type"), nil
}
