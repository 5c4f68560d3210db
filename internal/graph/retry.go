package graph

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxRetries  = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 60 * time.Second
	jitterPercent      = 25
	fallbackBaseDelay  = 10 * time.Millisecond
	maxRetryAfterDelay = 5 * time.Minute
)

// RetryPolicy bounds how often and how patiently a transient failure is
// retried. The zero value means "no retries".
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is 3 retries with exponential backoff starting at one
// second, capped at one minute, with 25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
	}
}

// Backoff returns a fresh backoff for one logical operation. go-retry
// backoffs are stateful, so every call site builds its own.
func (p RetryPolicy) Backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = fallbackBaseDelay
	}

	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(jitterPercent, b)

	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	return retry.WithMaxRetries(p.MaxRetries, b)
}
