package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"tlex/config"
	ncerr "tlex/internal/errors"
)

// ServerTLSConfig loads the server's certificate.  A CA file turns on
// client certificate verification.
func ServerTLSConfig(t config.TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, &ncerr.TLSError{Op: "load", Err: err}
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if t.CAFile != "" {
		pool, err := loadPool(t.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// ClientTLSConfig builds the client side.  With a CA file the server
// must chain to it; with Insecure nothing is checked; otherwise the
// system roots apply.  serverHost is the SNI and verification name
// unless t.ServerName overrides it.
func ClientTLSConfig(t config.TLSConfig, serverHost string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: t.ServerName,
		MinVersion: tls.VersionTLS12,
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverHost
	}

	switch {
	case t.CAFile != "":
		pool, err := loadPool(t.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	case t.Insecure:
		cfg.InsecureSkipVerify = true //nolint:gosec // explicitly requested
	}

	if t.CertFile != "" && t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, &ncerr.TLSError{Op: "load", Err: err}
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, &ncerr.TLSError{Op: "ca", Err: err}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &ncerr.TLSError{Op: "ca", Err: fmt.Errorf("no certificates in %s", path)}
	}
	return pool, nil
}

// TLSDialer dials TCP and runs the TLS client handshake.
type TLSDialer struct {
	TCP    *TCPDialer
	Config *tls.Config
}

// Dial connects and completes the handshake.  A TCP failure comes back
// unwrapped; a TLS failure comes back as *errors.TLSError.
func (d *TLSDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	raw, err := d.TCP.Dial(ctx, network, address)
	if err != nil {
		return nil, err
	}

	cfg := d.Config
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName, _, _ = net.SplitHostPort(address)
	}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, &ncerr.TLSError{Op: handshakeOp(err), Addr: address, Err: err}
	}
	return tc, nil
}

// Close is a no-op.
func (d *TLSDialer) Close() error { return nil }

func handshakeOp(err error) string {
	var ve *tls.CertificateVerificationError
	if errors.As(err, &ve) {
		return "verify"
	}
	return "handshake"
}
