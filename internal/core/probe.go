package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"tlex/config"
	"tlex/internal/retry"
	"tlex/internal/transport"
	"tlex/util"
)

// tlsLatencyCeiling is the connect latency under which TLS is the
// suggested transport; slower links get SSH.
const tlsLatencyCeiling = 150 * time.Millisecond

// ProbeResult is what a probe found out about an endpoint.
type ProbeResult struct {
	Target    config.Endpoint
	Addrs     []string
	Attempts  int
	Latency   time.Duration
	Suggested config.Transport
}

// SuggestTransport picks a transport for a link with the given connect
// latency.
func SuggestTransport(latency time.Duration) config.Transport {
	if latency < tlsLatencyCeiling {
		return config.TransportTLS
	}
	return config.TransportSSH
}

// ProbeMode measures TCP connect latency to Target and suggests a
// transport.  It binds nothing; Setup and Stop are no-ops.
type ProbeMode struct {
	Target   config.Endpoint
	Attempts int
	Timeout  time.Duration
	Logger   *util.Logger
	// Out receives the human-readable report; nil means os.Stdout.
	Out io.Writer

	Result ProbeResult
}

func (m *ProbeMode) Setup() error { return nil }
func (m *ProbeMode) Stop() error  { return nil }

// Run resolves Target and connects until one attempt succeeds or the
// attempts run out.
func (m *ProbeMode) Run(ctx context.Context) error {
	attempts := m.Attempts
	if attempts <= 0 {
		attempts = config.DefaultProbeAttempts
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	if m.Logger == nil {
		m.Logger = util.Discard()
	}

	addrs, err := util.LookupHost(ctx, m.Target.Host)
	if err != nil {
		return err
	}
	m.Result = ProbeResult{Target: m.Target, Addrs: addrs}

	dialer := &transport.TCPDialer{Timeout: timeout}
	addr := util.FormatAddr(addrs[0], m.Target.Port)

	b := retry.ProbeBackoff(attempts)
	b.OnRetry = func(attempt int, err error, _ time.Duration) {
		m.Logger.Verbose("probe %d/%d: %v", attempt, attempts, err)
	}
	err = b.Do(ctx, func(attempt int) error {
		m.Result.Attempts = attempt
		start := time.Now()
		conn, err := dialer.Dial(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		m.Result.Latency = time.Since(start)
		conn.Close()
		return nil
	})
	if err != nil {
		fmt.Fprintf(out, "%s unreachable after %d attempt(s): %v\n", m.Target, m.Result.Attempts, err)
		return fmt.Errorf("probe %s: %w", m.Target, err)
	}

	m.Result.Suggested = SuggestTransport(m.Result.Latency)
	fmt.Fprintf(out, "%s (%s) reachable in %v, suggested transport: %s\n",
		m.Target, addrs[0], m.Result.Latency.Round(time.Microsecond), m.Result.Suggested)
	return nil
}
