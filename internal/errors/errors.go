// Package errors provides the error taxonomy for tlex.
//
// Setup-time failures (BindError, TLSError while loading material,
// ConfigError) propagate to whoever started a role. Session-time failures
// (ConnectError, TLSError during a handshake, HandshakeError,
// DestinationError) end one session and are only ever logged by the
// acceptor loop, which pattern-matches on these types.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrAlreadyBound   = errors.New("listener already bound")
	ErrNotConnected   = errors.New("not connected")
	ErrTunnelClosed   = errors.New("tunnel is closed")
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrSessionLimit   = errors.New("session limit reached")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrRejected       = errors.New("peer closed during handshake")
	ErrSecretMismatch = errors.New("shared secret mismatch")
	ErrEmptyHost      = errors.New("destination host is empty")
	ErrHostTooLong    = errors.New("destination host longer than 255 bytes")
)

// ── Setup errors ─────────────────────────────────────────────────────

// BindError means the listener could not bind its endpoint.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }

func (e *BindError) Unwrap() error { return e.Err }

// TLSError covers certificate loading, verification and the TLS
// handshake itself. Op is "load", "ca", "handshake" or "verify".
type TLSError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TLSError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("tls %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tls %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Session errors ───────────────────────────────────────────────────

// ConnectError means the Initiator could not reach the forwarding server.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Addr, e.Err) }

func (e *ConnectError) Unwrap() error { return e.Err }

// DestinationError means the Responder could not dial the requested
// destination. The inbound leg is closed without a proof reply.
type DestinationError struct {
	Addr string
	Err  error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %s: %v", e.Addr, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// HandshakeError is any failure of the secret/address exchange.
// Step names the protocol step: "secret", "address", "proof".
type HandshakeError struct {
	Step string
	Err  error
}

func (e *HandshakeError) Error() string { return fmt.Sprintf("handshake %s: %v", e.Step, e.Err) }

func (e *HandshakeError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "channel", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// NetworkError represents a failure in a generic network operation.
type NetworkError struct {
	Op        string // "dial", "listen", "accept", "write", "read"
	Addr      string
	Err       error
	Retryable bool
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, detecting retryability from err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Handshake creates a HandshakeError for step.
func Handshake(step string, err error) *HandshakeError {
	return &HandshakeError{Step: step, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return true
	}
	return classifyRetryable(err)
}

// IsSetup reports whether err belongs to the setup class, i.e. it must be
// surfaced to whoever started the role rather than logged per session.
func IsSetup(err error) bool {
	var (
		be *BindError
		ce *ConfigError
		te *TLSError
	)
	switch {
	case errors.As(err, &be), errors.As(err, &ce):
		return true
	case errors.As(err, &te):
		return te.Op == "load" || te.Op == "ca"
	}
	return errors.Is(err, ErrAlreadyBound)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // still the best hint available
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
