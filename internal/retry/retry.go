// Package retry bounds blocking calls with a per-attempt timeout and a
// capped exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type Policy struct {
	Attempts int           // total tries, at least 1
	Timeout  time.Duration // per attempt; 0 means none
	Initial  time.Duration // first wait
	Max      time.Duration // wait cap
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Timeout: 5 * time.Second, Initial: 200 * time.Millisecond, Max: 2 * time.Second}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do calls fn until it succeeds, returns a Permanent error, runs out of
// attempts or ctx is done. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, log zerolog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = 100 * time.Millisecond
	}
	exp.MaxInterval = p.Max
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = time.Second
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.1
	exp.MaxElapsedTime = 0

	attempts := max(1, p.Attempts)
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()

		v, err := fn(actx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")
	})
	return out, err
}
