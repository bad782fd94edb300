package util

import (
	"errors"
	"io"
	"net"
	"time"
)

// IsHarmless returns true for errors that are expected when a stream is
// shut down, either by the peer or by our own eager close.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// deadliner is satisfied by net.Conn and by SSH channel wrappers.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// SetDeadline arms an absolute deadline d from now on c when c supports
// it and d is positive.  It returns a func that clears the deadline.
func SetDeadline(c interface{}, d time.Duration) (reset func()) {
	dl, ok := c.(deadliner)
	if !ok || d <= 0 {
		return func() {}
	}
	_ = dl.SetDeadline(time.Now().Add(d))
	return func() { _ = dl.SetDeadline(time.Time{}) }
}
