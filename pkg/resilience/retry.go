// Package resilience provides retry policies for the index pipeline's
// side-effecting calls: catalog writes and other IO that can fail
// transiently. Structural index failures (corrupt segments, format
// mismatches, overlapping docid ranges) are permanent and must never be
// retried, so every policy carries a retryability classifier that knows the
// pipeline's error taxonomy.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	pkgerrors "github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// Policy bounds the retry loop for one class of operation.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Growth    float64
	Jitter    float64
	// Retryable classifies an error as transient. A nil classifier uses
	// RetryableIndexError.
	Retryable func(error) bool
}

// CatalogPolicy is tuned for postgres catalog writes: a handful of quick
// attempts so a segment flush is not stalled behind a long backoff.
func CatalogPolicy() Policy {
	return Policy{
		Attempts:  4,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Growth:    2.0,
		Jitter:    0.1,
	}
}

// SegmentIOPolicy is tuned for segment file operations where the filesystem
// may be briefly unavailable: fewer, slower attempts.
func SegmentIOPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Growth:    2.0,
		Jitter:    0.2,
	}
}

// RetryableIndexError reports whether err is worth retrying. Context
// cancellation and the structural index errors are permanent.
func RetryableIndexError(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, pkgerrors.ErrCorruptSegment),
		errors.Is(err, pkgerrors.ErrFormatMismatch),
		errors.Is(err, pkgerrors.ErrDocIDOverlap),
		errors.Is(err, pkgerrors.ErrTermsOutOfOrder),
		errors.Is(err, pkgerrors.ErrCorruptSpill):
		return false
	default:
		return true
	}
}

// Do runs fn under the policy, backing off with jitter between attempts.
// The first permanent error, a cancelled context, or attempt exhaustion
// ends the loop.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = RetryableIndexError
	}
	logger := slog.Default().With("component", "retry", "operation", op)
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !retryable(lastErr) {
			return fmt.Errorf("%s failed permanently: %w", op, lastErr)
		}
		if attempt == p.Attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s retry aborted: %w", op, ctx.Err())
		}
		delay := p.delay(attempt)
		logger.Warn("transient failure, retrying",
			"attempt", attempt,
			"max_attempts", p.Attempts,
			"error", lastErr,
			"next_delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s retry aborted during backoff: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.Attempts, lastErr)
}

func (p Policy) delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.Growth, float64(attempt-1))
	backoff += backoff * p.Jitter * (2*rand.Float64() - 1)
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if backoff < 0 {
		backoff = float64(p.BaseDelay)
	}
	return time.Duration(backoff)
}
