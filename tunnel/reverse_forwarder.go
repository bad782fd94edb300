package tunnel

// reverse_forwarder.go: per-connection forwarding for the reverse tunnel.

import (
	"net"
	"time"

	ncerr "tlex/internal/errors"
	"tlex/internal/session"
)

// handleConnection relays one forwarded connection to the local service.
func (rt *ReverseTunnel) handleConnection(remoteConn net.Conn) {
	defer rt.wg.Done()

	sess := session.New(remoteConn, rt.logger)
	defer sess.Close()

	rt.metrics.SessionOpened()
	defer rt.metrics.SessionClosed()

	target := rt.localAddr()
	localConn, err := net.DialTimeout("tcp", target, rt.config.DialTimeout)
	if err != nil {
		derr := &ncerr.DestinationError{Addr: target, Err: err}
		sess.Logger.Error("reverse tunnel: %v", derr)
		rt.metrics.DestinationFailed()
		rt.metrics.RecordError(derr.Error())
		return
	}
	sess.SetOutbound(localConn)

	sess.Logger.Verbose("reverse tunnel: relaying %s ↔ %s", remoteConn.RemoteAddr(), target)

	res, err := sess.Relay()
	if err != nil {
		sess.Logger.Error("reverse tunnel: %v", err)
		return
	}
	rt.metrics.BytesReceived(res.AToB)
	rt.metrics.BytesSent(res.BToA)

	sess.Logger.Verbose("reverse tunnel: closed after %v (in=%d out=%d)",
		res.Duration.Truncate(time.Millisecond), res.AToB, res.BToA)
}
