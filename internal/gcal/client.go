package gcal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

// Retry and backoff constants.
const (
	maxRetries       = 4
	baseBackoff      = 1 * time.Second
	maxBackoff       = 32 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	defaultUserAgent = "gcal-go/0.1"
)

// Client is an HTTP client for the Calendar and userinfo APIs. It handles
// header construction, retry with exponential backoff for idempotent
// requests, and error classification. Credentials are chosen per call.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient; an
// empty userAgent uses the built-in one.
func NewClient(httpClient *http.Client, userAgent string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Do executes a request against rawURL. A non-empty bearer is sent as the
// Authorization header. For non-nil bodies Content-Type is application/json.
// Non-2xx responses are returned as *APIError. The caller closes the
// response body on success.
func (c *Client) Do(ctx context.Context, method, rawURL, bearer string, body []byte) (*http.Response, error) {
	retryable := isIdempotent(method)

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, rawURL, bearer, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gcal: request canceled: %w", ctx.Err())
			}

			if retryable && attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("gcal: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("gcal: %s request failed: %w", method, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		apiErr := decodeAPIError(resp)

		if retryable && isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("gcal: request canceled: %w", err)
			}

			attempt++

			continue
		}

		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempts", attempt+1),
			slog.String("message", apiErr.Message),
		)

		return nil, apiErr
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, rawURL, bearer string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeAPIError reads and closes the body of a failed response and turns
// the Google JSON error envelope into an *APIError.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Err:        classifyStatus(resp.StatusCode),
	}

	// CheckResponse reads the body; close it afterwards either way.
	checkErr := googleapi.CheckResponse(resp)
	resp.Body.Close()

	var gErr *googleapi.Error
	if errors.As(checkErr, &gErr) {
		apiErr.Message = gErr.Message
		if apiErr.Message == "" {
			apiErr.Message = gErr.Body
		}

		if len(gErr.Errors) > 0 {
			apiErr.Reason = gErr.Errors[0].Reason
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
