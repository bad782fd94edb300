package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	ncerr "tlex/internal/errors"
	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/util"
)

// acceptor is the loop every listening role shares: block in accept,
// hand the connection to its own goroutine, go back to accept.  Nothing
// a session does can end the loop; only the listener closing does.
type acceptor struct {
	name    string
	accept  func() (net.Conn, error)
	close   func() error
	handle  func(ctx context.Context, conn net.Conn)
	limiter *limit.Limiter
	logger  *util.Logger
	metrics *metrics.Collector
	grace   time.Duration

	wg sync.WaitGroup
}

// run serves until ctx ends or the listener is closed.  Sessions are
// started on a context that outlives ctx: stopping the listener does not
// cut running sessions, it only waits up to the grace period for them.
func (a *acceptor) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { a.close() }) //nolint:errcheck
	defer stop()
	sessCtx := context.WithoutCancel(ctx)

	var delay time.Duration
	for {
		conn, err := a.accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				a.drain()
				return nil
			}
			if ncerr.IsRetryable(err) {
				delay = nextAcceptDelay(delay)
				a.logger.Warn("%s: accept: %v; retrying in %v", a.name, err, delay)
				time.Sleep(delay)
				continue
			}
			a.drain()
			return ncerr.Wrap("accept", a.name, err)
		}
		delay = 0

		if !a.limiter.TryAcquire() {
			a.logger.Warn("%s: %v (%d), dropping %s", a.name, ncerr.ErrSessionLimit, a.limiter.Cap(), conn.RemoteAddr())
			a.metrics.LimitRejected()
			conn.Close()
			continue
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.limiter.Release()
			a.handle(sessCtx, conn)
		}()
	}
}

// drain waits for running sessions, at most for the grace period.
func (a *acceptor) drain() {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.grace):
		a.logger.Warn("%s: sessions still running after %v, leaving them to finish", a.name, a.grace)
	}
}

// nextAcceptDelay backs off 5ms → 1s, the schedule net/http uses for
// temporary accept errors.
func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// reportSession logs a failed session and counts it by kind.  This is
// the only place session errors go; they never reach the accept loop.
func reportSession(log *util.Logger, m *metrics.Collector, err error) {
	var (
		he *ncerr.HandshakeError
		de *ncerr.DestinationError
		ce *ncerr.ConnectError
		se *ncerr.SSHError
		te *ncerr.TLSError
	)
	switch {
	case errors.Is(err, ncerr.ErrCircuitOpen):
		log.Verbose("dropped: %v", err)
		return
	case errors.As(err, &he):
		m.HandshakeRejected()
		log.Warn("rejected: %v", err)
	case errors.As(err, &de):
		m.DestinationFailed()
		log.Warn("%v", err)
	case errors.As(err, &ce), errors.As(err, &se):
		m.ConnectFailed()
		log.Warn("%v", err)
	case errors.As(err, &te):
		m.HandshakeRejected()
		log.Warn("%v", err)
	default:
		log.Error("session: %v", err)
	}
	m.RecordError(err.Error())
}
