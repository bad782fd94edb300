package tunnel

// reverse_tunnel.go holds the ReverseTunnel type, its lifecycle and the
// accept loop.  Dialling lives in reverse_dial.go, the forwarded-tcpip
// listener in reverse_listener.go, per-connection forwarding in
// reverse_forwarder.go and keepalive/reconnect in reverse_health.go.

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"tlex/config"
	"tlex/internal/metrics"
	"tlex/internal/retry"
	"tlex/util"
)

// ReverseTunnelConfig holds everything needed to expose a local service
// on a remote SSH gateway.
type ReverseTunnelConfig struct {
	SSHConfig *SSHConfig

	// Remote listener requested on the gateway.  Port 0 lets the
	// gateway choose; the chosen port is then reported by RemotePort.
	RemoteBindAddress string
	RemotePort        int

	// Local service every forwarded connection is dialled to.
	LocalAddress string
	LocalPort    int
	DialTimeout  time.Duration

	KeepAliveInterval time.Duration // 0 disables keepalive
	AutoReconnect     bool
	// Backoff is the reconnect schedule; nil means retry.ReconnectBackoff.
	Backoff *retry.Backoff
}

// ReverseTunnel forwards connections arriving on a remote SSH gateway to
// a local TCP service, in the manner of ssh -R.
type ReverseTunnel struct {
	config   *ReverseTunnelConfig
	client   *ssh.Client
	listener *sshForwardListener
	logger   *util.Logger
	metrics  *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	port   int
}

// NewReverseTunnel creates a reverse tunnel ready to [ReverseTunnel.Start].
// The metrics collector is optional.
func NewReverseTunnel(cfg *ReverseTunnelConfig, logger *util.Logger, m *metrics.Collector) *ReverseTunnel {
	if cfg.LocalAddress == "" {
		cfg.LocalAddress = config.DefaultLocalAddress
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = config.DefaultDialTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.ReconnectBackoff()
	}
	return &ReverseTunnel{config: cfg, logger: logger, metrics: m}
}

// Start connects to the gateway, requests the remote listener and begins
// forwarding.  It returns once the listener is in place.
func (rt *ReverseTunnel) Start(ctx context.Context) error {
	rt.ctx, rt.cancel = context.WithCancel(ctx)

	if err := rt.establish(); err != nil {
		rt.cancel()
		return err
	}

	rt.logger.Info("reverse tunnel established: %s (remote) → %s (local)",
		rt.remoteAddr(), rt.localAddr())

	// Unblock Accept when the context goes away.
	go func() {
		<-rt.ctx.Done()
		rt.mu.Lock()
		if rt.listener != nil {
			rt.listener.Close()
		}
		rt.mu.Unlock()
	}()

	if rt.config.KeepAliveInterval > 0 {
		rt.wg.Add(1)
		go rt.keepaliveLoop()
	}

	rt.wg.Add(1)
	go rt.acceptLoop()

	return nil
}

// establish dials the gateway and opens the remote listener, installing
// both on rt.
func (rt *ReverseTunnel) establish() error {
	client, err := rt.dialSSH(rt.ctx)
	if err != nil {
		return fmt.Errorf("SSH connection: %w", err)
	}

	listener, err := listenRemoteForward(client, rt.config.RemoteBindAddress, rt.config.RemotePort)
	if err != nil {
		client.Close()
		return fmt.Errorf("remote listen on %s: %w", rt.requestedAddr(), err)
	}

	rt.mu.Lock()
	rt.client = client
	rt.listener = listener
	rt.port = int(listener.bindPort)
	rt.mu.Unlock()
	return nil
}

// Wait blocks until every forwarding goroutine has returned.
func (rt *ReverseTunnel) Wait() {
	rt.wg.Wait()
}

// Done is closed once the tunnel has stopped for good, either through
// Close or because reconnecting gave up.
func (rt *ReverseTunnel) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// RemotePort returns the gateway port currently forwarded to us.
func (rt *ReverseTunnel) RemotePort() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.port
}

// Close tears down the listener, the SSH client and all active forwards.
func (rt *ReverseTunnel) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	if rt.cancel != nil {
		rt.cancel()
	}

	var errs []error

	rt.mu.Lock()
	if rt.listener != nil {
		rt.listener.Close()
		rt.listener = nil
	}
	rt.mu.Unlock()

	done := make(chan struct{})
	go func() {
		rt.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(config.DefaultGracePeriod):
		errs = append(errs, fmt.Errorf("timeout waiting for handlers to finish"))
	}

	rt.mu.Lock()
	if rt.client != nil {
		if err := rt.client.Close(); !util.IsHarmless(err) {
			errs = append(errs, fmt.Errorf("SSH close: %w", err))
		}
		rt.client = nil
	}
	rt.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("reverse tunnel close: %v", errs)
	}
	return nil
}

// acceptLoop accepts forwarded connections and hands each to its own
// goroutine.  A dead listener triggers a reconnect when enabled.
func (rt *ReverseTunnel) acceptLoop() {
	defer rt.wg.Done()
	defer rt.cancel()

	for {
		rt.mu.Lock()
		listener := rt.listener
		rt.mu.Unlock()

		if listener == nil {
			return
		}

		remoteConn, err := listener.Accept()
		if err != nil {
			if rt.ctx.Err() != nil {
				return
			}
			rt.logger.Warn("reverse tunnel: gateway connection lost: %v", err)
			rt.metrics.RecordError(fmt.Sprintf("accept: %v", err))

			if rt.config.AutoReconnect {
				if reconnErr := rt.reconnect(); reconnErr != nil {
					rt.logger.Error("reconnect failed, giving up: %v", reconnErr)
					return
				}
				continue
			}
			return
		}

		rt.logger.Verbose("reverse tunnel: connection from %s", remoteConn.RemoteAddr())

		rt.wg.Add(1)
		go rt.handleConnection(remoteConn)
	}
}

func (rt *ReverseTunnel) requestedAddr() string {
	return util.FormatAddr(rt.config.RemoteBindAddress, rt.config.RemotePort)
}

func (rt *ReverseTunnel) remoteAddr() string {
	return util.FormatAddr(rt.config.SSHConfig.Host, rt.RemotePort())
}

func (rt *ReverseTunnel) localAddr() string {
	return util.FormatAddr(rt.config.LocalAddress, rt.config.LocalPort)
}

var _ net.Listener = (*sshForwardListener)(nil)
