// Package transport decides how the forwarding client reaches its server
// and how the server accepts it: plain TCP, TLS, or one SSH channel per
// connection.  What travels over the connection is the handshake's and
// the relay's business.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"tlex/config"
	"tlex/tunnel"
	"tlex/util"
)

// Dialer opens outbound connections to the forwarding server.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}

// NewDialer returns the dialer for c.Transport.  TLS material is loaded
// here so that a bad CA file fails setup, not the first session.
func NewDialer(c *config.ClientConfig, logger *util.Logger) (Dialer, error) {
	tcp := &TCPDialer{Timeout: c.DialTimeout}

	switch c.Transport {
	case config.TransportPlain:
		return tcp, nil
	case config.TransportTLS, "":
		cfg, err := ClientTLSConfig(c.TLS, c.Server.Host)
		if err != nil {
			return nil, err
		}
		return &TLSDialer{TCP: tcp, Config: cfg}, nil
	case config.TransportSSH:
		return &SSHDialer{
			Config: sshClientConfig(c.SSH, c.Secret, c.DialTimeout),
			Logger: logger,
		}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", c.Transport)
}

func sshClientConfig(s config.SSHConfig, secret string, timeout time.Duration) *tunnel.SSHConfig {
	return &tunnel.SSHConfig{
		User:          s.User,
		Password:      secret,
		KeyPath:       s.KeyPath,
		UseAgent:      s.UseAgent,
		StrictHostKey: s.StrictHostKey,
		KnownHosts:    s.KnownHosts,
		ConnTimeout:   timeout,
	}
}

// SSHDialer opens a fresh SSH connection per Dial and returns its single
// stream channel.  Closing the conn closes the SSH connection.
type SSHDialer struct {
	Config *tunnel.SSHConfig
	Logger *util.Logger
}

// Dial connects to address and opens one stream.
func (d *SSHDialer) Dial(ctx context.Context, _ string, address string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q", address)
	}

	cfg := *d.Config
	cfg.Host, cfg.Port = host, port
	tun := tunnel.NewSSHTunnel(&cfg, d.Logger)
	if err := tun.Connect(ctx); err != nil {
		return nil, err
	}
	conn, err := tun.OpenOwnedStream()
	if err != nil {
		tun.Close()
		return nil, err
	}
	return conn, nil
}

// Close is a no-op; every dialled connection owns its SSH session.
func (d *SSHDialer) Close() error { return nil }
