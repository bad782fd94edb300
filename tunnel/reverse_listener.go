package tunnel

// reverse_listener.go: a forwarded-tcpip listener.
//
// ssh.Client.Listen keys forwarded-tcpip channels by the exact bind
// address it sent.  Public tunnel services (serveo.net, localhost.run)
// echo back a different address, e.g. "0.0.0.0" when we sent "", and the
// library then rejects every channel with "no forward for address".  We
// register our own handler, send tcpip-forward ourselves and accept every
// channel.

import (
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// ── Wire format structs (RFC 4254) ──────────────────────────────────

// channelForwardMsg is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardReplyMsg is the success reply to a tcpip-forward that asked
// for port 0.
type forwardReplyMsg struct {
	Port uint32
}

// forwardedTCPPayload is the channel-open payload for
// "forwarded-tcpip" (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ── sshForwardListener ──────────────────────────────────────────────

// sshForwardListener implements [net.Listener] over forwarded-tcpip
// channels, whatever bind address the server reports on them.
type sshForwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept waits for the next forwarded connection.
func (l *sshForwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	case newCh, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var raddr net.Addr = &net.TCPAddr{}
		var payload forwardedTCPPayload
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
			raddr = &net.TCPAddr{
				IP:   net.ParseIP(payload.OriginAddr),
				Port: int(payload.OriginPort),
			}
		}
		return &chanConn{Channel: ch, laddr: l.Addr(), raddr: raddr}, nil
	}
}

// Close cancels the remote forward and unblocks Accept.
func (l *sshForwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		// Best effort; the connection may already be gone.
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// Addr returns the gateway-side address being forwarded.
func (l *sshForwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// ── Constructor ──────────────────────────────────────────────────────

// listenRemoteForward sends a tcpip-forward request and returns a
// listener fed by the resulting forwarded-tcpip channels.  With bindPort
// 0 the port the gateway allocated is read from its reply.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (*sshForwardListener, error) {
	// Register before the library can claim the channel type.
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(bindPort)}
	ok, reply, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward request denied by peer")
	}

	port := uint32(bindPort)
	if port == 0 {
		var r forwardReplyMsg
		if err := ssh.Unmarshal(reply, &r); err != nil {
			return nil, fmt.Errorf("tcpip-forward reply: %w", err)
		}
		port = r.Port
	}

	return &sshForwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}
