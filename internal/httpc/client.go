// Package httpc builds the HTTP clients used for speech provider calls.
// Always go through NewClient so timeouts are set.
package httpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 15 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient creates an HTTP client with the given overall timeout.
// A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Retry controls DoWithRetry.
type Retry struct {
	MaxRetries int
	Delay      time.Duration // Multiplied by the attempt number

	// OnRetry is called before each retry with the failed status (0 for
	// transport errors).
	OnRetry func(attempt, status int)
}

// Retryable reports whether a status code is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// DoWithRetry sends the request built by newReq, retrying transport errors
// and retryable statuses. newReq is called once per attempt so bodies can be
// re-read. On success the caller owns the response body. When all attempts
// return a retryable status the last response is returned unread.
func DoWithRetry(ctx context.Context, client *http.Client, r Retry, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.Delay * time.Duration(attempt)):
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if r.OnRetry != nil && attempt < r.MaxRetries {
				r.OnRetry(attempt+1, 0)
			}
			continue
		}

		if Retryable(resp.StatusCode) && attempt < r.MaxRetries {
			resp.Body.Close()
			if r.OnRetry != nil {
				r.OnRetry(attempt+1, resp.StatusCode)
			}
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}
