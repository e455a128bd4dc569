// Package retry wraps cenkalti/backoff/v4 with the two retry shapes the
// node needs: a bounded exponential backoff for rpcclient transport
// errors, and an unbounded retry-forever loop for the importer's
// block/receipt polling (which legitimately waits on upstream mining).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config is the backoff shape. The cmd/ binaries start from DefaultConfig
// and set only InitialInterval from config (BACKOFF, config.RetryConfig).
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig matches the teacher's conservative RPC-client defaults.
var DefaultConfig = Config{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     3 * time.Second,
	Multiplier:      1.5,
}

func (c Config) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Multiplier = c.Multiplier
	b.MaxElapsedTime = 0 // bounded by the caller's context, not a wall-clock cap
	return backoff.WithContext(b, ctx)
}

// Do retries fn with bounded exponential backoff until it succeeds, a
// non-retryable error is returned (fn must wrap it so shouldRetry reports
// false), or ctx is cancelled. Used by eth/rpcclient for transport errors.
func Do(ctx context.Context, cfg Config, shouldRetry func(error) bool, fn func() error) error {
	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, cfg.newBackoff(ctx))
}

// Forever retries fn indefinitely with a fixed sleep between attempts,
// calling onError before each retry. This is the importer's block/receipt
// polling shape: upstream simply hasn't mined the next block yet, and
// that is not a failure worth escalating, just worth waiting out.
func Forever(ctx context.Context, interval time.Duration, fn func() (done bool, err error), onError func(error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn()
		if err != nil {
			if onError != nil {
				onError(err)
			}
		} else if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
