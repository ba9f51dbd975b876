// Package ratelimit bounds how fast host operations are invoked on behalf of
// a sandboxed script. Admission is blocking: a caller over the limit waits
// out the window remainder instead of being rejected, so every call
// eventually proceeds.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLimit  = 150
	DefaultWindow = time.Minute

	// Safety margin added to computed waits to absorb clock and scheduler
	// jitter around the window edge.
	waitMargin = 10 * time.Millisecond
)

// Limiter admits at most limit calls in any trailing window. A waiter that
// finishes its sleep records its admission without rechecking occupancy, so
// several callers blocked on the same full window can transiently overshoot
// the limit by the number of concurrent waiters; the pacing still holds on
// average. A Limiter is scoped to one invocation by default; callers that
// run invocations concurrently against a shared upstream account can
// construct one Limiter and pass it to each.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Limiter admitting limit calls per window. Non-positive
// arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Acquire blocks until the call is admitted or ctx is done. Admissions older
// than the trailing window are evicted first; if the window is full, the
// caller waits until the oldest admission ages out, then records its own
// post-wait timestamp.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	l.evict(now)

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		l.mu.Unlock()
		return nil
	}

	wait := l.window - now.Sub(l.stamps[0]) + waitMargin
	l.mu.Unlock()

	if err := l.sleep(ctx, wait); err != nil {
		return err
	}

	l.mu.Lock()
	admitted := l.now()
	l.evict(admitted)
	l.stamps = append(l.stamps, admitted)
	l.mu.Unlock()
	return nil
}

// Pending returns how many admissions currently sit inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.stamps)
}

// evict drops timestamps older than now minus the window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
