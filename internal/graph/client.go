package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const defaultUserAgent = "sharepoint-sync/dev"

// TokenSource provides OAuth2 bearer tokens. Implementations must be safe
// for concurrent use and must return an error wrapping ErrAuthFailed when
// no token can be obtained.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is an HTTP client for the Microsoft Graph API.
// It handles request construction, authentication, retry with
// exponential backoff, and error classification.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	token      TokenSource
	retry      RetryPolicy
	logger     *slog.Logger

	// sleepFunc waits out a Retry-After hint. Tests replace it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client.
// baseURL is typically DefaultBaseURL.
func NewClient(
	baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string,
) *Client {
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
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: httpClient,
		token:      token,
		retry:      DefaultRetryPolicy(),
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// SetRetryPolicy replaces the policy used by Do.
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

// Do executes an HTTP request against the Graph API, retrying transport
// failures and retryable statuses per the client's RetryPolicy.
// The path is appended to the client's base URL. A non-nil body must be
// an io.Seeker if it is to survive a retry.
// The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path

	var (
		resp    *http.Response
		attempt int
	)

	err := retry.Do(ctx, c.retry.Backoff(), func(ctx context.Context) error {
		if attempt > 0 {
			if err := rewindBody(body); err != nil {
				return err
			}
		}

		attempt++

		r, err := c.doOnce(ctx, method, url, body, "application/json", -1)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrAuthFailed) {
				return err
			}

			c.logger.Warn("request attempt failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)

			return retry.RetryableError(err)
		}

		if r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", r.StatusCode),
			)

			resp = r

			return nil
		}

		graphErr := readGraphError(r)
		if !isRetryable(r.StatusCode) {
			return graphErr
		}

		c.logger.Warn("request attempt failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", r.StatusCode),
			slog.Int("attempt", attempt),
		)

		if graphErr.RetryAfter > 0 {
			if err := c.sleepFunc(ctx, graphErr.RetryAfter); err != nil {
				return err
			}
		}

		return retry.RetryableError(graphErr)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		}

		if attempt > 1 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
		}

		return nil, err
	}

	return resp, nil
}

// doOnce executes a single authenticated request (no retry).
// contentLength < 0 leaves the length to net/http.
func (c *Client) doOnce(
	ctx context.Context, method, url string, body io.Reader, contentType string, contentLength int64,
) (*http.Response, error) {
	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, asAuthError(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	if contentLength >= 0 {
		req.ContentLength = contentLength
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, req.URL.Path, err)
	}

	return resp, nil
}

// asAuthError guarantees err matches ErrAuthFailed.
func asAuthError(err error) error {
	if errors.Is(err, ErrAuthFailed) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrAuthFailed, err)
}

// readGraphError drains and closes resp.Body and wraps it as a GraphError.
func readGraphError(resp *http.Response) *GraphError {
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	return newGraphError(resp, body)
}

// retryAfter parses a Retry-After header given in seconds. HTTP-date
// values are ignored and fall back to the exponential backoff.
func retryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}

	seconds, err := strconv.Atoi(ra)
	if err != nil || seconds <= 0 {
		return 0
	}

	return min(time.Duration(seconds)*time.Second, maxRetryAfterDelay)
}

// rewindBody seeks body back to the start before a retry.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	s, ok := body.(io.Seeker)
	if !ok {
		return errors.New("graph: cannot retry request with non-seekable body")
	}

	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("graph: rewinding request body: %w", err)
	}

	return nil
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
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
