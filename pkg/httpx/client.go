package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// RequestJSON posts a JSON payload and reads the full response body. The
// gateway's only upstream is the scoring engine, so the retry policy is
// tuned for it: transport errors and 5xx answers are retried with a doubling
// delay, 4xx answers are returned as-is because resending the same
// evaluation cannot fix them. The context deadline bounds the whole exchange
// including the waits between attempts.
func RequestJSON(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string, retries int, retryDelay time.Duration) (int, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if retries < 0 {
		retries = 0
	}
	delay := retryDelay
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := waitRetry(ctx, delay); err != nil {
				return 0, nil, err
			}
			delay *= 2
		}

		status, respBody, err := doJSON(ctx, client, method, url, body, headers)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 500 && attempt < retries {
			lastErr = nil
			continue
		}
		return status, respBody, nil
	}
	return 0, nil, lastErr
}

func doJSON(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// waitRetry sleeps for the backoff interval unless the caller gives up first.
func waitRetry(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
