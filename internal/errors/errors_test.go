package errors

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestTaxonomy_Format(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"bind", &BindError{Addr: "0.0.0.0:443", Err: fmt.Errorf("address in use")}, "bind 0.0.0.0:443: address in use"},
		{"connect", &ConnectError{Addr: "relay:443", Err: io.EOF}, "connect relay:443: EOF"},
		{"destination", &DestinationError{Addr: "example.com:80", Err: fmt.Errorf("refused")}, "destination example.com:80: refused"},
		{"tls load", &TLSError{Op: "load", Err: fmt.Errorf("no such file")}, "tls load: no such file"},
		{"tls handshake", &TLSError{Op: "handshake", Addr: "1.2.3.4:443", Err: io.EOF}, "tls handshake 1.2.3.4:443: EOF"},
		{"handshake", Handshake("secret", ErrSecretMismatch), "handshake secret: shared secret mismatch"},
		{"network retryable", &NetworkError{Op: "dial", Addr: "example.com:80", Err: io.EOF, Retryable: true}, "dial example.com:80: EOF (retryable)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaxonomy_Unwrap(t *testing.T) {
	errs := []error{
		&BindError{Err: io.EOF},
		&ConnectError{Err: io.EOF},
		&DestinationError{Err: io.EOF},
		&TLSError{Op: "handshake", Err: io.EOF},
		&HandshakeError{Step: "proof", Err: io.EOF},
		&SSHError{Op: "auth", Err: io.EOF},
		&NetworkError{Op: "read", Err: io.EOF},
	}
	for _, err := range errs {
		if !Is(err, io.EOF) {
			t.Errorf("%T should unwrap to io.EOF", err)
		}
	}
}

func TestHandshakeError_DistinguishesCauses(t *testing.T) {
	rejected := fmt.Errorf("session: %w", Handshake("proof", ErrRejected))
	mismatch := fmt.Errorf("session: %w", Handshake("proof", ErrSecretMismatch))

	var he *HandshakeError
	if !As(rejected, &he) || he.Step != "proof" {
		t.Fatalf("As failed: %v", rejected)
	}
	if !Is(rejected, ErrRejected) || Is(rejected, ErrSecretMismatch) {
		t.Error("rejected should match only ErrRejected")
	}
	if !Is(mismatch, ErrSecretMismatch) || Is(mismatch, ErrRejected) {
		t.Error("mismatch should match only ErrSecretMismatch")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "listen",
				Value:   "0.0.0.0:99999",
				Message: "port out of range 0-65535",
				Hint:    "use --listen host:port",
			},
			want: "config: --listen=0.0.0.0:99999: port out of range 0-65535\n  hint: use --listen host:port",
		},
		{
			name: "missing value no hint",
			err:  ConfigError{Field: "secret", Message: "required"},
			want: "config: --secret: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestIsSetup(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bind", &BindError{Err: io.EOF}, true},
		{"config", &ConfigError{Field: "x"}, true},
		{"tls load", &TLSError{Op: "load", Err: io.EOF}, true},
		{"tls handshake", &TLSError{Op: "handshake", Err: io.EOF}, false},
		{"already bound", fmt.Errorf("server: %w", ErrAlreadyBound), true},
		{"handshake", Handshake("secret", ErrSecretMismatch), false},
		{"destination", &DestinationError{Err: io.EOF}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSetup(tt.err); got != tt.want {
				t.Errorf("IsSetup() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "dial", Addr: "x", Err: io.EOF}, false},
		{"connect", &ConnectError{Addr: "x", Err: io.EOF}, true},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyRetryable_NetOpError(t *testing.T) {
	opErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{IsTemporary: true},
	}
	if !classifyRetryable(opErr) {
		t.Error("temporary OpError should be retryable")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrAlreadyBound, ErrNotConnected, ErrTunnelClosed, ErrCircuitOpen,
		ErrSessionLimit, ErrAuthFailed, ErrRejected, ErrSecretMismatch,
		ErrEmptyHost, ErrHostTooLong,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
