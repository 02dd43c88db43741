package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	maxRetries = 3
	retryDelay = 100 * time.Millisecond
)

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// doWithRetry issues the request built by buildReq, retrying transient
// failures (network errors, 429, 5xx) with exponential backoff. The
// request is rebuilt on every attempt so the body can be re-read.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	delay := retryDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := buildReq()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("status %s", resp.Status)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}
