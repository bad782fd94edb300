package tunnel

import (
	"crypto/subtle"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlex/internal/errors"
)

// StreamChannel is the SSH channel type that carries one tlex session.
const StreamChannel = "tlex-stream"

// NewServerConfig returns an SSH server config that admits any user whose
// password equals secret, presenting signer as its host key.
func NewServerConfig(secret string, signer ssh.Signer) *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if subtle.ConstantTimeCompare(pass, []byte(secret)) == 1 {
				return nil, nil
			}
			return nil, ncerr.ErrAuthFailed
		},
		ServerVersion: "SSH-2.0-tlex",
	}
	cfg.AddHostKey(signer)
	return cfg
}

// AcceptStream runs the SSH server handshake on raw and waits for the
// first stream channel.  Any further channel on the same connection is
// refused; one SSH connection carries one session.
func AcceptStream(raw net.Conn, cfg *ssh.ServerConfig) (net.Conn, error) {
	sconn, chans, reqs, err := ssh.NewServerConn(raw, cfg)
	if err != nil {
		return nil, err
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != StreamChannel {
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type") //nolint:errcheck
			continue
		}
		ch, creqs, err := newCh.Accept()
		if err != nil {
			sconn.Close()
			return nil, err
		}
		go ssh.DiscardRequests(creqs)
		go func() {
			for extra := range chans {
				extra.Reject(ssh.ResourceShortage, "one stream per connection") //nolint:errcheck
			}
		}()
		return &chanConn{
			Channel: ch,
			conn:    raw,
			laddr:   sconn.LocalAddr(),
			raddr:   sconn.RemoteAddr(),
			onClose: sconn.Close,
		}, nil
	}

	sconn.Close()
	return nil, io.EOF
}

// ── chanConn ─────────────────────────────────────────────────────────

// chanConn adapts an ssh.Channel to net.Conn.  When conn is set the
// channel is the only one on that transport, and deadlines are applied
// to the transport itself: expiry tears the whole connection down, which
// is what a stalled handshake deserves.
type chanConn struct {
	ssh.Channel
	conn    net.Conn
	laddr   net.Addr
	raddr   net.Addr
	onClose func() error
}

func (c *chanConn) Close() error {
	err := c.Channel.Close()
	if c.onClose != nil {
		c.onClose() //nolint:errcheck
	}
	return err
}

func (c *chanConn) LocalAddr() net.Addr  { return c.laddr }
func (c *chanConn) RemoteAddr() net.Addr { return c.raddr }

func (c *chanConn) SetDeadline(t time.Time) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.SetDeadline(t)
}

func (c *chanConn) SetReadDeadline(t time.Time) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.SetReadDeadline(t)
}

func (c *chanConn) SetWriteDeadline(t time.Time) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.SetWriteDeadline(t)
}
