// Package graph is a small Microsoft Graph v1.0 client scoped to the
// SharePoint document-library calls the uploader needs: drive preflight,
// child lookup, folder creation and the two upload flavours.
package graph

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
)

var (
	// ErrAuthFailed marks a failure to obtain an access token. It is never
	// retried by Client.Do.
	ErrAuthFailed = errors.New("graph: authentication failed")

	// ErrTransport marks a request that never produced an HTTP response
	// (DNS, connect, TLS, reset, timeout).
	ErrTransport = errors.New("graph: transport failure")
)

// GraphError carries the HTTP status, the request-id header and the
// response body of a failed Graph call.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
	Err        error // sentinel, for errors.Is()
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth another attempt: a transport
// failure or a retryable HTTP status. Authentication failures never are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrAuthFailed) {
		return false
	}

	if errors.Is(err, ErrTransport) {
		return true
	}

	var ge *GraphError
	if errors.As(err, &ge) {
		return isRetryable(ge.StatusCode)
	}

	return false
}

// newGraphError builds a GraphError from a non-2xx response. The caller
// has already consumed and closed the body.
func newGraphError(resp *http.Response, body []byte) *GraphError {
	return &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		RetryAfter: retryAfter(resp),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		// 509 Bandwidth Limit Exceeded (SharePoint).
		const statusBandwidthExceeded = 509
		return code == statusBandwidthExceeded
	}
}
