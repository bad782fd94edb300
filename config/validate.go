package config

import (
	"fmt"
	"time"

	ncerr "tlex/internal/errors"
)

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the server configuration is usable.
func (c *ServerConfig) Validate() error {
	if err := validateListen("listen", c.Listen); err != nil {
		return err
	}
	if err := validateSecret(c.Secret); err != nil {
		return err
	}
	if err := validateTransport(c.Transport); err != nil {
		return err
	}
	if c.Transport == TransportTLS {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return &ncerr.ConfigError{
				Field:   "cert",
				Message: "tls transport needs a certificate and key",
				Hint:    "pass --cert and --key, or --transport plain to disable TLS",
			}
		}
	}
	return validateLimits(c.HandshakeTimeout, c.DialTimeout, c.MaxSessions)
}

// Validate checks that the client configuration is usable.
func (c *ClientConfig) Validate() error {
	if err := validateListen("local", c.Local); err != nil {
		return err
	}
	if err := validateRemote("server", c.Server); err != nil {
		return err
	}
	if err := validateRemote("remote", c.Remote); err != nil {
		return err
	}
	if len(c.Remote.Host) > MaxHostLength {
		return &ncerr.ConfigError{
			Field:   "remote",
			Value:   fmt.Sprintf("<%d bytes>", len(c.Remote.Host)),
			Message: fmt.Sprintf("destination host longer than %d bytes", MaxHostLength),
		}
	}
	if err := validateSecret(c.Secret); err != nil {
		return err
	}
	if err := validateTransport(c.Transport); err != nil {
		return err
	}
	if c.TLS.CAFile != "" && c.TLS.Insecure {
		return &ncerr.ConfigError{
			Field:   "insecure",
			Message: "conflicts with --ca",
			Hint:    "drop --insecure to verify the server against the CA",
		}
	}
	if c.BreakerThreshold < 0 {
		return &ncerr.ConfigError{Field: "breaker-threshold", Value: c.BreakerThreshold, Message: "must not be negative"}
	}
	return validateLimits(c.HandshakeTimeout, c.DialTimeout, c.MaxSessions)
}

// Validate checks that the gateway configuration is usable.
func (c *ReverseServerConfig) Validate() error {
	if err := validateListen("listen", c.Listen); err != nil {
		return err
	}
	if err := validateSecret(c.Secret); err != nil {
		return err
	}
	if c.MaxSessions < 0 {
		return &ncerr.ConfigError{Field: "max-sessions", Value: c.MaxSessions, Message: "must not be negative"}
	}
	return nil
}

// Validate checks that the reverse tunnel configuration is usable.
func (c *ReverseClientConfig) Validate() error {
	if err := validateRemote("server", c.Server); err != nil {
		return err
	}
	if err := validateRemote("local", c.Local); err != nil {
		return err
	}
	if c.RemoteBind.Port < 0 || c.RemoteBind.Port > 65535 {
		return &ncerr.ConfigError{
			Field:   "remote-bind",
			Value:   c.RemoteBind.String(),
			Message: "port out of range 0-65535",
			Hint:    "use 0 to let the gateway pick a port",
		}
	}
	if c.Secret == "" && c.SSH.KeyPath == "" && !c.SSH.UseAgent && !c.SSH.PromptPass {
		return &ncerr.ConfigError{
			Field:   "secret",
			Message: "no SSH credentials configured",
			Hint:    "pass --secret, --ssh-key, --ssh-agent or --ssh-password",
		}
	}
	if c.KeepAlive < 0 {
		return &ncerr.ConfigError{Field: "keep-alive", Value: c.KeepAlive, Message: "must not be negative"}
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func validateListen(field string, ep Endpoint) error {
	if ep.Port < 0 || ep.Port > 65535 {
		return &ncerr.ConfigError{
			Field:   field,
			Value:   ep.String(),
			Message: "port out of range 0-65535",
			Hint:    fmt.Sprintf("use --%s host:port", field),
		}
	}
	return nil
}

func validateRemote(field string, ep Endpoint) error {
	if ep.Host == "" {
		return &ncerr.ConfigError{
			Field:   field,
			Message: "host is required",
			Hint:    fmt.Sprintf("use --%s host:port", field),
		}
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return &ncerr.ConfigError{
			Field:   field,
			Value:   ep.String(),
			Message: "port out of range 1-65535",
		}
	}
	return nil
}

func validateSecret(secret string) error {
	if secret == "" {
		return &ncerr.ConfigError{
			Field:   "secret",
			Message: "a shared secret is required",
			Hint:    "pass --secret or set TLEX_SECRET",
		}
	}
	return nil
}

func validateTransport(t Transport) error {
	if !t.Valid() {
		return &ncerr.ConfigError{
			Field:   "transport",
			Value:   string(t),
			Message: "unknown transport",
			Hint:    "choose one of tls, plain, ssh",
		}
	}
	return nil
}

func validateLimits(handshake, dial time.Duration, maxSessions int) error {
	if handshake < 0 {
		return &ncerr.ConfigError{Field: "handshake-timeout", Value: handshake, Message: "must not be negative", Hint: "use 0 to disable the deadline"}
	}
	if dial < 0 {
		return &ncerr.ConfigError{Field: "dial-timeout", Value: dial, Message: "must not be negative"}
	}
	if maxSessions < 0 {
		return &ncerr.ConfigError{Field: "max-sessions", Value: maxSessions, Message: "must not be negative", Hint: "use 0 for no limit"}
	}
	return nil
}
