package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// APIError represents an error from the Binance API.
type APIError struct {
	StatusCode int
	Code       int    // Binance error code, e.g. -1121
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("binance api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
// 418 is Binance's IP ban after ignoring 429s and must not be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// errorBody is the Binance error envelope.
type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// doRequest performs an HTTP request with the given method and path.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Msg != "" {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Msg
		}
		return nil, apiErr
	}

	return body, nil
}

// doWithRetry retries 5xx and 429 responses with jittered exponential backoff.
// Any other error ends the attempt loop immediately.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBackoff
	b.RandomizationFactor = 0.5
	b.Multiplier = 2

	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(c.maxRetries, 0)+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("retrying request",
				"attempt", attempts,
				"backoff", next,
				"path", path,
				"error", err,
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s %s after %d attempt(s): %w", method, path, attempts, err)
	}
	return body, nil
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
