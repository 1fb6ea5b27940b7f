// Package rate implements the rolling token-rate limiter shared by all
// generation jobs of a query. The ledger is the one piece of mutable state
// shared across concurrent jobs and is guarded by a mutex; it is an explicit
// passed-in object, never ambient global state, so it can be unit-tested with
// a fake clock.
package rate

import (
	"context"
	"sync"
	"time"
)

const (
	minSleep      = 25 * time.Millisecond
	maxSleepSlice = 250 * time.Millisecond
)

type entry struct {
	at     time.Time
	tokens int
}

// Limiter blocks job submission whenever the estimated tokens started within
// the trailing window, plus the new job's estimate, would exceed the budget.
type Limiter struct {
	budget int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries []entry
}

// NewLimiter creates a limiter with a per-window token budget. A nil clock
// defaults to time.Now.
func NewLimiter(budget int, window time.Duration, clock func() time.Time) *Limiter {
	if clock == nil {
		clock = time.Now
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{budget: budget, window: window, now: clock}
}

// Wait blocks until estimate tokens fit the trailing window, then records
// them as started. It sleeps the minimum time needed for enough of the window
// to roll off, and returns early if ctx is cancelled. A single estimate
// larger than the whole budget is admitted alone rather than deadlocking.
func (l *Limiter) Wait(ctx context.Context, estimate int) error {
	if estimate < 0 {
		estimate = 0
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		used := l.used()
		if used+estimate <= l.budget || (used == 0 && estimate >= l.budget) {
			l.entries = append(l.entries, entry{at: now, tokens: estimate})
			l.mu.Unlock()
			return nil
		}
		wait := l.nextExpiry(now, used+estimate-l.budget)
		l.mu.Unlock()

		// Sleep in bounded slices so cancellation and clock movement are
		// observed promptly.
		if wait < minSleep {
			wait = minSleep
		}
		if wait > maxSleepSlice {
			wait = maxSleepSlice
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Record accounts for actual usage observed after a job completes. Only the
// excess over the original estimate is appended, so the window reflects real
// consumption without double counting.
func (l *Limiter) Record(actual, estimate int) {
	delta := actual - estimate
	if delta <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{at: l.now(), tokens: delta})
}

// Used reports the tokens currently counted in the trailing window.
func (l *Limiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return l.used()
}

func (l *Limiter) used() int {
	total := 0
	for _, e := range l.entries {
		total += e.tokens
	}
	return total
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := l.entries[:0]
	for _, e := range l.entries {
		if e.at.After(cutoff) {
			keep = append(keep, e)
		}
	}
	l.entries = keep
}

// nextExpiry returns how long until at least need tokens roll out of the
// window. Entries are in insertion order, which is time order.
func (l *Limiter) nextExpiry(now time.Time, need int) time.Duration {
	freed := 0
	for _, e := range l.entries {
		freed += e.tokens
		if freed >= need {
			return e.at.Add(l.window).Sub(now)
		}
	}
	if len(l.entries) == 0 {
		return minSleep
	}
	last := l.entries[len(l.entries)-1]
	return last.at.Add(l.window).Sub(now)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
