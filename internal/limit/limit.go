// Package limit caps how many sessions a role runs at once.
package limit

import "golang.org/x/sync/semaphore"

// Limiter admits up to a fixed number of concurrent sessions.  A nil
// *Limiter admits everything.
type Limiter struct {
	sem *semaphore.Weighted
	max int
}

// New returns a limiter for n sessions, or nil (unbounded) when n <= 0.
func New(n int) *Limiter {
	if n <= 0 {
		return nil
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), max: n}
}

// TryAcquire takes a slot without blocking.  Every true result must be
// paired with one Release.
func (l *Limiter) TryAcquire() bool {
	if l == nil {
		return true
	}
	return l.sem.TryAcquire(1)
}

// Release returns a slot.
func (l *Limiter) Release() {
	if l == nil {
		return
	}
	l.sem.Release(1)
}

// Cap returns the configured capacity, 0 meaning unbounded.
func (l *Limiter) Cap() int {
	if l == nil {
		return 0
	}
	return l.max
}
