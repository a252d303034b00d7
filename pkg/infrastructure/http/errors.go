// Package httputil provides HTTP error handling utilities.
package httputil

import (
	"fmt"
	"io"
	"net/http"
)

// MaxErrorBodySize is the maximum size of an upstream error body to carry in
// error messages. Google's OAuth and Fitness endpoints return JSON error
// bodies we want surfaced, but never unbounded.
const MaxErrorBodySize = 500

// HTTPError represents an upstream HTTP error with status code and the
// (truncated) response body.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Status, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s (status %d)", e.Status, e.StatusCode)
}

// ErrorFromResponse returns nil for responses below 400; otherwise it drains
// the body and returns a rich *HTTPError. The body is consumed: callers that
// reach an error response have no further use for it.
func ErrorFromResponse(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize+1))
	resp.Body.Close()

	bodyStr := ""
	if err == nil {
		bodyStr = truncate(string(bodyBytes), MaxErrorBodySize)
	}

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       bodyStr,
		URL:        url,
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
