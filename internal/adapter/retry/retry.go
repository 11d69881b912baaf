// Package retry implements the exponential-backoff loop shared by every
// provider adapter and the datastore adapter. Each attempt reports an
// Outcome; the adapters decide which responses back off (429/5xx for the
// HTTP providers) and handle a 401 themselves.
package retry

import (
	"context"
	"time"

	"github.com/anzsic/classify/internal/domain"
)

// Config controls backoff behavior. The zero value is not usable;
// construct via DefaultConfig.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultConfig matches the spec default: max 3 attempts, initial delay
// 2s, multiplier 2.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: 2 * time.Second, Multiplier: 2}
}

// Outcome classifies the result of one attempt so Do knows how to react.
type Outcome int

const (
	// Success ends the retry loop and returns the attempt's result.
	Success Outcome = iota
	// RetryBackoff sleeps with exponential backoff, then retries.
	RetryBackoff
	// RetryImmediate retries without sleeping.
	RetryImmediate
	// Fail ends the retry loop and propagates the attempt's error.
	Fail
)

// Attempt is called once per try. It returns the classification for this
// attempt and, on Fail or Success, the value/error to propagate.
type Attempt func(ctx context.Context, attemptNum int) (result any, outcome Outcome, err error)

// Do runs attempt up to cfg.MaxAttempts times, honoring the outcome it
// reports each time. Context cancellation aborts immediately between
// attempts and during backoff sleeps.
func Do(ctx context.Context, cfg Config, attempt Attempt) (any, error) {
	delay := cfg.InitialDelay
	var lastErr error

	for n := 1; n <= cfg.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, cancellationOrErr(err)
		}

		result, outcome, err := attempt(ctx, n)
		switch outcome {
		case Success:
			return result, nil
		case Fail:
			return nil, err
		case RetryImmediate:
			lastErr = err
			continue
		case RetryBackoff:
			lastErr = err
			if n == cfg.MaxAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, cancellationOrErr(ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
		}
	}
	return nil, lastErr
}

// cancellationOrErr reports err as domain.CancelledError when it stems
// from explicit cancellation, leaving a deadline timeout (or any other
// ctx.Err()) unwrapped so callers can tell the two apart.
func cancellationOrErr(err error) error {
	if err == context.Canceled {
		return domain.NewCancelledError("context cancelled mid-attempt")
	}
	return err
}
