package rate

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when the bucket sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestBucket(rps int) (*Bucket, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBucket(rps)
	b.Now = clock.Now
	b.Sleep = clock.Sleep
	return b, clock
}

func TestBucketFirstCallImmediate(t *testing.T) {
	b, clock := newTestBucket(1)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("first call slept %v", clock.sleeps)
	}
}

func TestBucketPacesAtRate(t *testing.T) {
	b, clock := newTestBucket(4)
	for i := 0; i < 3; i++ {
		if err := b.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	want := []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("sleeps = %v; want %v", clock.sleeps, want)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Fatalf("sleeps = %v; want %v", clock.sleeps, want)
		}
	}
}

func TestBucketBurstCappedAtOneSecond(t *testing.T) {
	b, clock := newTestBucket(2)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(time.Minute)
	for i := 0; i < 2; i++ {
		if err := b.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("burst slept %v", clock.sleeps)
	}
	if err := b.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 500*time.Millisecond {
		t.Fatalf("sleeps after burst = %v; want [500ms]", clock.sleeps)
	}
}

func TestBucketWaitCanceled(t *testing.T) {
	b := NewBucket(1)
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("drain initial credit: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBucketRealClock(t *testing.T) {
	b := NewBucket(100)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := b.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestUnlimited(t *testing.T) {
	if err := (Unlimited{}).Wait(context.Background()); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Unlimited{}).Wait(ctx); err == nil {
		t.Fatal("expected error on canceled context")
	}
}
