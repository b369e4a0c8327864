package gmail

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantTimer fires immediately and records every requested wait.
type instantTimer struct {
	mu    *sync.Mutex
	waits *[]time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.waits = append(*t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func recordingRetrier() (*Retrier, *[]time.Duration) {
	var mu sync.Mutex
	waits := &[]time.Duration{}
	r := NewRetrier(discardLogger())
	r.NewTimer = func() backoff.Timer {
		return &instantTimer{mu: &mu, waits: waits, c: make(chan time.Time, 1)}
	}
	return r, waits
}

func TestRetryBacksOffExponentially(t *testing.T) {
	r, waits := recordingRetrier()
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &RequestError{Kind: ErrServiceUnavailable, Status: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetryExhaustionReturnsLastFailure(t *testing.T) {
	r, waits := recordingRetrier()
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &RequestError{Kind: ErrRateLimited, Status: 429, Message: fmt.Sprintf("attempt%d", calls)}
	})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt3")
	assert.Len(t, *waits, 2)
}

func TestRetryLongerBudget(t *testing.T) {
	r, waits := recordingRetrier()
	r.MaxAttempts = 4
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return &RequestError{Kind: ErrRateLimited}
	})
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *waits)
}

func TestRetryDoesNotRetryPermanentKinds(t *testing.T) {
	for _, kind := range []error{ErrAuthRequired, ErrPermissionDenied, ErrRequestFailed, ErrProtocol} {
		r, waits := recordingRetrier()
		calls := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return &RequestError{Kind: kind}
		})
		assert.ErrorIs(t, err, kind)
		assert.Equal(t, 1, calls, kind.Error())
		assert.Empty(t, *waits)
	}
}

func TestRetryValue(t *testing.T) {
	r, _ := recordingRetrier()
	calls := 0
	v, err := retryValue(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &RequestError{Kind: ErrRateLimited}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	r, _ := recordingRetrier()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &RequestError{Kind: ErrServiceUnavailable}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
