package core

import (
	"context"
	"net"
	"sync"
	"time"

	"tlex/config"
	ncerr "tlex/internal/errors"
	"tlex/internal/handshake"
	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/internal/session"
	"tlex/internal/transport"
	"tlex/util"
)

// ServerMode is the Responder: it accepts tunnelled connections, checks
// the secret, dials the destination each one asks for and relays.
type ServerMode struct {
	Config  *config.ServerConfig
	Logger  *util.Logger
	Metrics *metrics.Collector
	Limiter *limit.Limiter
	Grace   time.Duration

	// Dialer reaches destinations; nil means plain TCP with the
	// configured dial timeout.
	Dialer transport.Dialer

	mu sync.Mutex
	ln *transport.Listener
}

// Setup loads the transport's key material and binds the listen address.
func (m *ServerMode) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		return ncerr.ErrAlreadyBound
	}

	c := m.Config
	ln, err := transport.Listen(c.Listen, transport.ListenOptions{
		Transport:   c.Transport,
		TLS:         c.TLS,
		Secret:      c.Secret,
		HostKeyFile: c.SSH.HostKeyFile,
	})
	if err != nil {
		return err
	}
	m.ln = ln
	if m.Dialer == nil {
		m.Dialer = &transport.TCPDialer{Timeout: c.DialTimeout}
	}

	if ln.Transport() == config.TransportPlain {
		m.Logger.Warn("transport is plain: secrets and destinations cross the network unencrypted")
	}
	m.Logger.Info("server listening on %s (%s)", ln.Addr(), ln.Transport())
	return nil
}

// Addr returns the bound address, or nil before Setup.
func (m *ServerMode) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Run serves until ctx ends or Stop is called.
func (m *ServerMode) Run(ctx context.Context) error {
	if m.Addr() == nil {
		if err := m.Setup(); err != nil {
			return err
		}
	}
	a := &acceptor{
		name:    "server " + m.ln.Addr().String(),
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

// Stop closes the listener.  Running sessions continue.
func (m *ServerMode) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Close()
}

func (m *ServerMode) handle(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, m.Logger)
	defer sess.Close()
	m.Metrics.SessionOpened()
	defer m.Metrics.SessionClosed()

	sess.Logger.Verbose("connection from %s", conn.RemoteAddr())
	if err := m.serve(ctx, sess); err != nil {
		reportSession(sess.Logger, m.Metrics, err)
	}
}

// serve runs one session: transport handshake, secret and address,
// destination dial, proof, relay.  The handshake deadline covers every
// step up to the proof.
func (m *ServerMode) serve(ctx context.Context, sess *session.Session) error {
	c := m.Config
	raw := sess.Inbound()
	if err := sess.Advance(session.Authenticating); err != nil {
		return err
	}

	reset := util.SetDeadline(raw, c.HandshakeTimeout)
	conn, err := m.ln.Wrap(raw)
	if err != nil {
		return err
	}
	sess.SetInbound(conn)

	dst, err := handshake.Respond(conn, c.Secret)
	if err != nil {
		return err
	}
	sess.Logger.Verbose("destination %s", dst)

	out, err := m.Dialer.Dial(ctx, "tcp", dst.String())
	if err != nil {
		return &ncerr.DestinationError{Addr: dst.String(), Err: err}
	}
	sess.SetOutbound(out)

	if err := handshake.Confirm(conn, c.Secret); err != nil {
		return err
	}
	reset()

	res, err := sess.Relay()
	if err != nil {
		return err
	}
	m.Metrics.BytesReceived(res.AToB)
	m.Metrics.BytesSent(res.BToA)
	sess.Logger.Info("%s closed after %v (in=%d out=%d)",
		dst, res.Duration.Truncate(time.Millisecond), res.AToB, res.BToA)
	if res.Err != nil {
		sess.Logger.Debug("relay: %v", res.Err)
	}
	return nil
}
