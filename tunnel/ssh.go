package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlex/internal/errors"
	"tlex/util"
)

// SSHConfig holds everything needed to dial an SSH endpoint.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	Password      string // the shared secret, offered as password auth
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Banner receives the pre-auth banner some gateways send.
	Banner func(message string)
}

func (c *SSHConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel implements [Tunnel] over a single SSH connection.
type SSHTunnel struct {
	config *SSHConfig
	client *ssh.Client
	raw    net.Conn
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// dialClient dials cfg and completes the SSH handshake.  The raw TCP
// connection is returned alongside the client so callers can arm
// deadlines on it.
func dialClient(ctx context.Context, cfg *SSHConfig, logger *util.Logger) (*ssh.Client, net.Conn, error) {
	authMethods, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, nil, ncerr.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}

	hkCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, nil, ncerr.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         cfg.ConnTimeout,
	}
	if cfg.Banner != nil {
		sshCfg.BannerCallback = func(message string) error {
			cfg.Banner(message)
			return nil
		}
	}

	addr := cfg.addr()
	logger.Debug("SSH: dialing %s as %s", addr, cfg.User)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, &ncerr.ConnectError{Addr: addr, Err: err}
	}

	// Bound the SSH handshake by the same timeout as the dial.
	reset := util.SetDeadline(tcpConn, cfg.ConnTimeout)
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	reset()
	if err != nil {
		tcpConn.Close()
		return nil, nil, ncerr.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), tcpConn, nil
}

// Connect dials the SSH endpoint and completes the handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	client, raw, err := dialClient(ctx, t.config, t.logger)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.client = client
	t.raw = raw
	t.alive = true
	t.mu.Unlock()

	go t.monitor()
	return nil
}

// OpenStream opens a tlex stream channel.  Closing the returned conn
// closes only the channel; see [SSHTunnel.OpenOwnedStream].
func (t *SSHTunnel) OpenStream() (net.Conn, error) {
	return t.openStream(nil)
}

// OpenOwnedStream opens a stream whose Close also tears down the tunnel.
// Used when one SSH connection carries exactly one session.
func (t *SSHTunnel) OpenOwnedStream() (net.Conn, error) {
	return t.openStream(t.Close)
}

func (t *SSHTunnel) openStream(onClose func() error) (net.Conn, error) {
	t.mu.RLock()
	client, raw, alive := t.client, t.raw, t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	ch, reqs, err := client.OpenChannel(StreamChannel, nil)
	if err != nil {
		return nil, ncerr.WrapSSH("channel", t.config.Host, t.config.Port, err)
	}
	go ssh.DiscardRequests(reqs)

	return &chanConn{
		Channel: ch,
		conn:    raw,
		laddr:   client.LocalAddr(),
		raddr:   client.RemoteAddr(),
		onClose: onClose,
	}, nil
}

// Client returns the underlying SSH client, or nil before Connect.
func (t *SSHTunnel) Client() *ssh.Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		if util.IsHarmless(err) {
			return nil
		}
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor() {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()
	if client == nil {
		return
	}

	err := client.Wait()

	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("SSH connection to %s closed: %v", t.config.addr(), err)
	} else {
		t.logger.Debug("SSH connection to %s closed", t.config.addr())
	}
}

// String identifies the tunnel in logs.
func (t *SSHTunnel) String() string {
	return fmt.Sprintf("ssh://%s@%s", t.config.User, t.config.addr())
}
