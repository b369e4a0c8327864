package gmail

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts bounds every retried call, first attempt included.
const DefaultMaxAttempts = 3

// Retrier retries rate-limit and availability failures with exponential
// backoff: 1s, 2s, 4s and so on, without jitter. Any other failure is returned
// at once.
type Retrier struct {
	MaxAttempts int
	Initial     time.Duration
	// NewTimer overrides the wait timer; tests use it to skip real sleeps.
	NewTimer func() backoff.Timer
	Logger   *slog.Logger
}

// NewRetrier returns a Retrier with DefaultMaxAttempts and a 1s base delay.
func NewRetrier(logger *slog.Logger) *Retrier {
	return &Retrier{MaxAttempts: DefaultMaxAttempts, Initial: time.Second, Logger: logger}
}

// Do runs op until it succeeds, fails permanently, or attempts run out. The
// last failure is returned on exhaustion.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if r == nil {
		r = NewRetrier(nil)
	}
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger().WarnContext(ctx, "retrying gmail call", "error", err, "wait", wait)
	}

	var timer backoff.Timer
	if r.NewTimer != nil {
		timer = r.NewTimer()
	}
	return backoff.RetryNotifyWithTimer(operation, r.policy(ctx, attempts), notify, timer)
}

func (r *Retrier) policy(ctx context.Context, attempts int) backoff.BackOff {
	initial := r.Initial
	if initial <= 0 {
		initial = time.Second
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Hour
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

func (r *Retrier) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// retryValue is Do for operations that produce a value.
func retryValue[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
