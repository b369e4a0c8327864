// Package rate paces Gmail calls under the per-user quota.
package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Limiter interface {
	Wait(ctx context.Context) error
}

// Bucket hands out rps calls per second. Credit accrues from the clock on
// each Wait and is capped at one second's worth, so an idle client may burst
// up to rps calls.
type Bucket struct {
	// Now and Sleep default to the wall clock; tests replace them.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	rps    float64
	credit float64
	last   time.Time
}

// NewBucket returns a Bucket allowing rps calls per second. It starts with
// credit for a single call. rps <= 0 is treated as 1.
func NewBucket(rps int) *Bucket {
	if rps <= 0 {
		rps = 1
	}
	return &Bucket{rps: float64(rps), credit: 1}
}

// Wait takes one call's credit, sleeping until enough has accrued.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rate wait canceled: %w", err)
		}
		short := b.take()
		if short <= 0 {
			return nil
		}
		if err := b.sleep(ctx, short); err != nil {
			return fmt.Errorf("rate wait canceled: %w", err)
		}
	}
}

// take spends one credit if available; otherwise it reports how long until
// one will be.
func (b *Bucket) take() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.last.IsZero() {
		b.credit = min(b.credit+now.Sub(b.last).Seconds()*b.rps, b.rps)
	}
	b.last = now

	if b.credit >= 1 {
		b.credit--
		return 0
	}
	return time.Duration((1 - b.credit) / b.rps * float64(time.Second))
}

func (b *Bucket) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Bucket) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Unlimited only honors cancellation.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

var (
	_ Limiter = (*Bucket)(nil)
	_ Limiter = Unlimited{}
)
