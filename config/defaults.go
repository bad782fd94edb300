package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultListenHost is the wildcard bind address for servers.
	DefaultListenHost = "0.0.0.0"

	// DefaultLocalAddress is the address used for local service binding.
	DefaultLocalAddress = "127.0.0.1"

	// DefaultServerPort is the forwarding server port.
	DefaultServerPort = 443

	// DefaultLocalPort is where the forwarding client listens.
	DefaultLocalPort = 8080

	// DefaultRemotePort is the destination port asked of the server.
	DefaultRemotePort = 80

	// DefaultGatewayPort is the SSH gateway port for reverse tunnels.
	DefaultGatewayPort = 2222

	// DefaultSSHUser is the user name sent on SSH transports.
	DefaultSSHUser = "tlex"

	// BufferSize is the relay chunk size per direction.
	BufferSize = 4096

	// MaxHostLength is the longest destination host the address frame
	// can carry.
	MaxHostLength = 255

	// DefaultHandshakeTimeout bounds the secret/address exchange.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultDialTimeout bounds server and destination dials.
	DefaultDialTimeout = 10 * time.Second

	// DefaultKeepAliveInterval is the SSH keepalive interval.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultProbeTimeout bounds a single latency probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultProbeAttempts is how many probes `tlex probe` sends.
	DefaultProbeAttempts = 3

	// DefaultBreakerCooldown is how long an open circuit stays open.
	DefaultBreakerCooldown = 30 * time.Second

	// DefaultMaxReconnectAttempts is how many times to retry after a
	// reverse tunnel disconnect.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultGracePeriod is how long Stop waits for running sessions.
	DefaultGracePeriod = 5 * time.Second
)
