package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"tlex/config"
	ncerr "tlex/internal/errors"
	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/internal/transport"
	"tlex/tunnel"
	"tlex/util"
)

// ── Reverse server ───────────────────────────────────────────────────

// ReverseServerMode runs the SSH gateway reverse clients connect to.
type ReverseServerMode struct {
	Config  *config.ReverseServerConfig
	Logger  *util.Logger
	Metrics *metrics.Collector
	// Limiter caps forwarded connections, not gateway clients.
	Limiter *limit.Limiter
	Grace   time.Duration

	mu sync.Mutex
	ln *transport.Listener
	gw *tunnel.Gateway
}

// Setup loads the host key and binds the gateway port.
func (m *ReverseServerMode) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		return ncerr.ErrAlreadyBound
	}

	c := m.Config
	signer, err := tunnel.LoadHostKey(c.HostKeyFile)
	if err != nil {
		return &ncerr.ConfigError{Field: "host-key", Value: c.HostKeyFile, Message: err.Error()}
	}
	if c.HostKeyFile == "" {
		m.Logger.Warn("no --host-key given: using a throwaway key, clients checking host keys will not recognise it")
	}

	ln, err := transport.Listen(c.Listen, transport.ListenOptions{Transport: config.TransportPlain})
	if err != nil {
		return err
	}
	m.ln = ln
	m.gw = tunnel.NewGateway(tunnel.GatewayConfig{
		Secret:   c.Secret,
		Signer:   signer,
		BindHost: c.BindHost,
		Limiter:  m.Limiter,
	}, m.Logger, m.Metrics)

	m.Logger.Info("reverse gateway listening on %s, forwarding on %s", ln.Addr(), c.BindHost)
	return nil
}

// Addr returns the gateway address, or nil before Setup.
func (m *ReverseServerMode) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Run serves gateway clients until ctx ends or Stop is called.  Each
// client's forwards are torn down with it.
func (m *ReverseServerMode) Run(ctx context.Context) error {
	if m.Addr() == nil {
		if err := m.Setup(); err != nil {
			return err
		}
	}
	// Gateway connections end with the mode; forwarded sessions inside
	// them are capped by the gateway itself.
	a := &acceptor{
		name:    "gateway " + m.ln.Addr().String(),
		accept:  m.ln.Accept,
		close:   m.ln.Close,
		logger:  m.Logger,
		metrics: m.Metrics,
		grace:   m.Grace,
		handle: func(_ context.Context, conn net.Conn) {
			if err := m.gw.ServeConn(ctx, conn); err != nil {
				reportSession(m.Logger.With("peer", conn.RemoteAddr()), m.Metrics, err)
			}
		},
	}
	return a.run(ctx)
}

// Stop closes the gateway listener.
func (m *ReverseServerMode) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Close()
}

// ── Reverse client ───────────────────────────────────────────────────

// ReverseClientMode exposes a local service on a remote SSH gateway, in
// the manner of ssh -R.
type ReverseClientMode struct {
	Config  *config.ReverseClientConfig
	Logger  *util.Logger
	Metrics *metrics.Collector

	mu sync.Mutex
	rt *tunnel.ReverseTunnel
}

// Setup prepares the tunnel.  Nothing is bound locally; the gateway is
// contacted by Run.
func (m *ReverseClientMode) Setup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rt != nil {
		return ncerr.ErrAlreadyBound
	}

	c := m.Config
	m.rt = tunnel.NewReverseTunnel(&tunnel.ReverseTunnelConfig{
		SSHConfig: &tunnel.SSHConfig{
			User:          c.SSH.User,
			Host:          c.Server.Host,
			Port:          c.Server.Port,
			Password:      c.Secret,
			KeyPath:       c.SSH.KeyPath,
			PromptPass:    c.SSH.PromptPass,
			UseAgent:      c.SSH.UseAgent,
			StrictHostKey: c.SSH.StrictHostKey,
			KnownHosts:    c.SSH.KnownHosts,
			ConnTimeout:   config.DefaultDialTimeout,
		},
		RemoteBindAddress: c.RemoteBind.Host,
		RemotePort:        c.RemoteBind.Port,
		LocalAddress:      c.Local.Host,
		LocalPort:         c.Local.Port,
		KeepAliveInterval: c.KeepAlive,
		AutoReconnect:     c.AutoReconnect,
	}, m.Logger, m.Metrics)
	return nil
}

// RemotePort returns the gateway port forwarded to us, or 0.
func (m *ReverseClientMode) RemotePort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rt == nil {
		return 0
	}
	return m.rt.RemotePort()
}

// Run connects to the gateway and blocks until ctx ends or the tunnel
// is lost for good.
func (m *ReverseClientMode) Run(ctx context.Context) error {
	m.mu.Lock()
	ready := m.rt != nil
	m.mu.Unlock()
	if !ready {
		if err := m.Setup(); err != nil {
			return err
		}
	}

	c := m.Config
	m.Logger.Verbose("establishing reverse tunnel: %s@%s remote=%s → local=%s",
		c.SSH.User, c.Server, c.RemoteBind, c.Local)

	if err := m.rt.Start(ctx); err != nil {
		return fmt.Errorf("reverse tunnel: %w", err)
	}
	defer m.rt.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-m.rt.Done():
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("reverse tunnel to %s: %w", c.Server, ncerr.ErrTunnelClosed)
	}
}

// Stop closes the tunnel.
func (m *ReverseClientMode) Stop() error {
	m.mu.Lock()
	rt := m.rt
	m.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Close()
}
