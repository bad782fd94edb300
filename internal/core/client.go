package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"tlex/config"
	ncerr "tlex/internal/errors"
	"tlex/internal/handshake"
	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/internal/retry"
	"tlex/internal/session"
	"tlex/internal/transport"
	"tlex/util"
)

// ClientMode is the Initiator: every local connection gets its own leg
// to the forwarding server, which is asked for the configured remote.
type ClientMode struct {
	Config  *config.ClientConfig
	Logger  *util.Logger
	Metrics *metrics.Collector
	Limiter *limit.Limiter
	Grace   time.Duration

	mu      sync.Mutex
	ln      *transport.Listener
	dialer  transport.Dialer
	breaker *retry.Breaker
}

// Setup loads TLS trust material and binds the local address.
func (m *ClientMode) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		return ncerr.ErrAlreadyBound
	}

	c := m.Config
	dialer, err := transport.NewDialer(c, m.Logger)
	if err != nil {
		return err
	}
	ln, err := transport.Listen(c.Local, transport.ListenOptions{Transport: config.TransportPlain})
	if err != nil {
		dialer.Close()
		return err
	}
	m.ln, m.dialer = ln, dialer

	if c.BreakerThreshold > 0 {
		m.breaker = retry.NewBreaker(retry.BreakerConfig{
			Threshold: c.BreakerThreshold,
			Cooldown:  c.BreakerCooldown,
			IsFailure: unreachable,
			OnStateChange: func(from, to retry.State) {
				m.Logger.Warn("server %s: circuit %s → %s", c.Server, from, to)
			},
		})
	}

	if c.Transport == config.TransportPlain {
		m.Logger.Warn("transport is plain: the secret and %s cross the network unencrypted", c.Remote)
	}
	m.Logger.Info("client listening on %s → %s → %s (%s)", ln.Addr(), c.Server, c.Remote, c.Transport)
	return nil
}

// Addr returns the bound local address, or nil before Setup.
func (m *ClientMode) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Run serves until ctx ends or Stop is called.
func (m *ClientMode) Run(ctx context.Context) error {
	if m.Addr() == nil {
		if err := m.Setup(); err != nil {
			return err
		}
	}
	defer m.dialer.Close()

	a := &acceptor{
		name:    "client " + m.ln.Addr().String(),
		accept:  m.ln.Accept,
		close:   m.ln.Close,
		handle:  m.handle,
		limiter: m.Limiter,
		logger:  m.Logger,
		metrics: m.Metrics,
		grace:   m.Grace,
	}
	return a.run(ctx)
}

// Stop closes the local listener.  Running sessions continue.
func (m *ClientMode) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Close()
}

func (m *ClientMode) handle(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, m.Logger)
	defer sess.Close()
	m.Metrics.SessionOpened()
	defer m.Metrics.SessionClosed()

	sess.Logger.Verbose("local connection from %s", conn.RemoteAddr())
	if err := m.serve(ctx, sess); err != nil {
		reportSession(sess.Logger, m.Metrics, err)
	}
}

func (m *ClientMode) serve(ctx context.Context, sess *session.Session) error {
	if err := sess.Advance(session.Authenticating); err != nil {
		return err
	}

	open := func() error { return m.open(ctx, sess) }
	var err error
	if m.breaker != nil {
		err = m.breaker.Execute(open)
	} else {
		err = open()
	}
	if err != nil {
		return err
	}

	res, err := sess.Relay()
	if err != nil {
		return err
	}
	m.Metrics.BytesReceived(res.AToB)
	m.Metrics.BytesSent(res.BToA)
	sess.Logger.Info("%s closed after %v (out=%d in=%d)",
		m.Config.Remote, res.Duration.Truncate(time.Millisecond), res.AToB, res.BToA)
	if res.Err != nil {
		sess.Logger.Debug("relay: %v", res.Err)
	}
	return nil
}

// open dials the server and runs the Initiator handshake on the new leg.
func (m *ClientMode) open(ctx context.Context, sess *session.Session) error {
	c := m.Config
	server := c.Server.String()

	out, err := m.dialer.Dial(ctx, "tcp", server)
	if err != nil {
		return connectError(server, err)
	}
	sess.SetOutbound(out)

	reset := util.SetDeadline(out, c.HandshakeTimeout)
	if err := handshake.Initiate(out, c.Secret, c.Remote); err != nil {
		return err
	}
	reset()
	return nil
}

// connectError keeps typed transport errors and wraps everything else as
// a ConnectError.
func connectError(addr string, err error) error {
	var (
		ce *ncerr.ConnectError
		se *ncerr.SSHError
		te *ncerr.TLSError
	)
	if errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &te) {
		return err
	}
	return &ncerr.ConnectError{Addr: addr, Err: err}
}

// unreachable decides what counts against the circuit: failing to reach
// the server does, being refused by a server that answered does not.
func unreachable(err error) bool {
	var he *ncerr.HandshakeError
	return !errors.As(err, &he)
}
