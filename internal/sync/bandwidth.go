package sync

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// minBurst keeps the token bucket large enough for ordinary read sizes
// even at very low limits.
const minBurst = 32 * 1024

// BandwidthLimiter caps upload throughput. A nil *BandwidthLimiter means
// unlimited; its methods are nil-safe.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns a limiter for bytesPerSec, or nil when
// bytesPerSec is 0.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	burst := int(max(bytesPerSec, minBurst))

	logger.Info("upload bandwidth limited",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WrapReader throttles reads from r. ctx cancels a pending wait.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &throttledReader{ctx: ctx, src: r, limiter: bl.limiter}
}

// throttledReader never reads more than one burst at a time, so a single
// WaitN always fits in the bucket.
type throttledReader struct {
	ctx     context.Context
	src     io.Reader
	limiter *rate.Limiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := t.src.Read(p)
	if n > 0 {
		if waitErr := t.limiter.WaitN(t.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}
