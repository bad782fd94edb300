package transport

import (
	"crypto/tls"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	"tlex/config"
	ncerr "tlex/internal/errors"
	"tlex/tunnel"
)

// ListenOptions selects how accepted connections are wrapped.
type ListenOptions struct {
	Transport config.Transport
	TLS       config.TLSConfig
	// Secret and HostKeyFile are used by the ssh transport.
	Secret      string
	HostKeyFile string
}

// Listener is a bound TCP listener plus the server half of a transport.
// Accept hands out raw connections so the caller can run the TLS or SSH
// handshake inside the session, under its own deadline.
type Listener struct {
	transport config.Transport
	ln        net.Listener
	tls       *tls.Config
	ssh       *ssh.ServerConfig
	closeOnce sync.Once
}

// Listen loads the transport's key material and binds ep.  Bad material
// yields *errors.TLSError (or a host key error); a failed bind yields
// *errors.BindError.
func Listen(ep config.Endpoint, opts ListenOptions) (*Listener, error) {
	l := &Listener{transport: opts.Transport}

	switch opts.Transport {
	case config.TransportTLS, "":
		cfg, err := ServerTLSConfig(opts.TLS)
		if err != nil {
			return nil, err
		}
		l.transport = config.TransportTLS
		l.tls = cfg
	case config.TransportSSH:
		signer, err := tunnel.LoadHostKey(opts.HostKeyFile)
		if err != nil {
			return nil, &ncerr.ConfigError{Field: "ssh-host-key", Value: opts.HostKeyFile, Message: err.Error()}
		}
		l.ssh = tunnel.NewServerConfig(opts.Secret, signer)
	case config.TransportPlain:
	default:
		return nil, &ncerr.ConfigError{Field: "transport", Value: opts.Transport, Message: "unknown transport"}
	}

	ln, err := net.Listen("tcp", ep.String())
	if err != nil {
		return nil, &ncerr.BindError{Addr: ep.String(), Err: err}
	}
	l.ln = ln
	return l, nil
}

// Accept waits for the next raw connection.
func (l *Listener) Accept() (net.Conn, error) {
	return l.ln.Accept()
}

// Wrap runs the server side of the transport on raw.  Plain connections
// come back unchanged.  On failure raw has been closed.
func (l *Listener) Wrap(raw net.Conn) (net.Conn, error) {
	switch l.transport {
	case config.TransportTLS:
		tc := tls.Server(raw, l.tls)
		if err := tc.Handshake(); err != nil {
			raw.Close()
			return nil, &ncerr.TLSError{Op: "handshake", Addr: raw.RemoteAddr().String(), Err: err}
		}
		return tc, nil
	case config.TransportSSH:
		c, err := tunnel.AcceptStream(raw, l.ssh)
		if err != nil {
			raw.Close()
			return nil, ncerr.Handshake("ssh", err)
		}
		return c, nil
	}
	return raw, nil
}

// Transport reports which transport Wrap applies.
func (l *Listener) Transport() config.Transport { return l.transport }

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting.  Connections already handed out are untouched.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() { err = l.ln.Close() })
	return err
}
