package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives a Limiter deterministically: sleeps advance the clock
// instead of waiting.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1700000000, 0)}
}

func (c *fakeClock) install(l *Limiter) {
	l.now = func() time.Time { return c.current }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		c.slept = append(c.slept, d)
		c.current = c.current.Add(d)
		return nil
	}
}

func TestAcquireBelowLimitIsImmediate(t *testing.T) {
	clock := newFakeClock()
	limiter := New(3, time.Minute)
	clock.install(limiter)

	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if len(clock.slept) != 0 {
		t.Errorf("expected no waits, got %v", clock.slept)
	}
	if limiter.Pending() != 3 {
		t.Errorf("pending = %d, want 3", limiter.Pending())
	}
}

func TestAcquireOverLimitWaitsWindowRemainder(t *testing.T) {
	clock := newFakeClock()
	limiter := New(2, time.Minute)
	clock.install(limiter)

	ctx := context.Background()
	limiter.Acquire(ctx)
	clock.current = clock.current.Add(10 * time.Second)
	limiter.Acquire(ctx)
	clock.current = clock.current.Add(10 * time.Second)

	// Window is full; the oldest admission is 20s old, so the wait is the
	// 40s remainder plus the safety margin. Never a rejection.
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("over-limit acquire should block, not fail: %v", err)
	}

	if len(clock.slept) != 1 {
		t.Fatalf("expected exactly one wait, got %v", clock.slept)
	}
	want := 40*time.Second + waitMargin
	if clock.slept[0] != want {
		t.Errorf("wait = %v, want %v", clock.slept[0], want)
	}
}

func TestOldAdmissionsEvicted(t *testing.T) {
	clock := newFakeClock()
	limiter := New(2, time.Minute)
	clock.install(limiter)

	ctx := context.Background()
	limiter.Acquire(ctx)
	limiter.Acquire(ctx)

	clock.current = clock.current.Add(2 * time.Minute)

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.slept) != 0 {
		t.Errorf("aged-out window should admit immediately, waited %v", clock.slept)
	}
	if limiter.Pending() != 1 {
		t.Errorf("pending = %d, want 1", limiter.Pending())
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	limiter := New(1, time.Minute)

	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Acquire(canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAcquireCancelsDuringWait(t *testing.T) {
	limiter := New(1, time.Minute)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestDefaultsApplied(t *testing.T) {
	limiter := New(0, 0)
	if limiter.limit != DefaultLimit {
		t.Errorf("limit = %d, want %d", limiter.limit, DefaultLimit)
	}
	if limiter.window != DefaultWindow {
		t.Errorf("window = %v, want %v", limiter.window, DefaultWindow)
	}
}

func TestAcquireRecordsPostWaitWithoutRecheck(t *testing.T) {
	// A waiter that finishes its sleep is admitted unconditionally, even if
	// the window did not actually drain while it slept.
	clock := newFakeClock()
	limiter := New(1, time.Minute)
	clock.install(limiter)
	limiter.sleep = func(ctx context.Context, d time.Duration) error {
		return nil // wake without the clock moving
	}

	ctx := context.Background()
	limiter.Acquire(ctx)
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.Pending() != 2 {
		t.Errorf("pending = %d, want 2 (transient overshoot)", limiter.Pending())
	}
}

func TestBlockedCallEventuallyAdmitted(t *testing.T) {
	// Real clock, tiny window: the third acquire must complete after the
	// window remainder rather than erroring.
	limiter := New(2, 50*time.Millisecond)
	ctx := context.Background()

	limiter.Acquire(ctx)
	limiter.Acquire(ctx)

	start := time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("third acquire returned after %v, want >= ~50ms", elapsed)
	}
}
