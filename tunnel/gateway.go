package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlex/internal/errors"
	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/internal/session"
	"tlex/util"
)

// GatewayConfig configures a [Gateway].
type GatewayConfig struct {
	Secret string
	Signer ssh.Signer
	// BindHost is where public listeners are opened, whatever address
	// the client puts in its tcpip-forward request.
	BindHost string
	Limiter  *limit.Limiter
}

// Gateway is the SSH server reverse clients connect to.  It honours
// tcpip-forward by binding a public listener and hands every connection
// accepted there back to the client as a forwarded-tcpip channel.
// Session channels and every other channel type are refused.
type Gateway struct {
	ssh      *ssh.ServerConfig
	bindHost string
	limiter  *limit.Limiter
	logger   *util.Logger
	metrics  *metrics.Collector
}

// NewGateway builds a gateway.  The metrics collector is optional.
func NewGateway(cfg GatewayConfig, logger *util.Logger, m *metrics.Collector) *Gateway {
	return &Gateway{
		ssh:      NewServerConfig(cfg.Secret, cfg.Signer),
		bindHost: cfg.BindHost,
		limiter:  cfg.Limiter,
		logger:   logger,
		metrics:  m,
	}
}

// ServeConn runs one client connection: the SSH handshake, then its
// global requests until it disconnects or ctx ends.  Every listener the
// client opened is closed on return.
func (g *Gateway) ServeConn(ctx context.Context, raw net.Conn) error {
	sconn, chans, reqs, err := ssh.NewServerConn(raw, g.ssh)
	if err != nil {
		raw.Close()
		return ncerr.Handshake("ssh", err)
	}
	defer sconn.Close()
	stop := context.AfterFunc(ctx, func() { sconn.Close() })
	defer stop()

	log := g.logger.With("peer", sconn.RemoteAddr())
	log.Info("gateway: %s authenticated", sconn.User())

	go func() {
		for ch := range chans {
			ch.Reject(ssh.Prohibited, "only remote port forwarding is supported") //nolint:errcheck
		}
	}()

	fw := &forwardSet{listeners: make(map[uint32]net.Listener)}
	defer fw.closeAll()

	for req := range reqs {
		switch req.Type {
		case "tcpip-forward":
			g.openForward(sconn, req, fw, log)
		case "cancel-tcpip-forward":
			var msg channelForwardMsg
			if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
				req.Reply(false, nil) //nolint:errcheck
				continue
			}
			req.Reply(fw.remove(msg.Port), nil) //nolint:errcheck
		default:
			if req.WantReply {
				req.Reply(false, nil) //nolint:errcheck
			}
		}
	}

	log.Info("gateway: %s disconnected", sconn.User())
	return nil
}

// openForward binds the requested port and starts forwarding from it.
// Port 0 binds an ephemeral port and reports it in the reply.
func (g *Gateway) openForward(sconn *ssh.ServerConn, req *ssh.Request, fw *forwardSet, log *util.Logger) {
	var msg channelForwardMsg
	if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
		req.Reply(false, nil) //nolint:errcheck
		return
	}

	addr := util.FormatAddr(g.bindHost, int(msg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Warn("gateway: %v", &ncerr.BindError{Addr: addr, Err: err})
		req.Reply(false, nil) //nolint:errcheck
		return
	}
	port := uint32(util.PortOf(ln.Addr()))

	var reply []byte
	if msg.Port == 0 {
		reply = ssh.Marshal(&forwardReplyMsg{Port: port})
	}
	if err := req.Reply(true, reply); err != nil {
		ln.Close()
		return
	}

	fw.add(port, ln)
	log.Info("gateway: forwarding %s", ln.Addr())

	go func() {
		for {
			pub, err := ln.Accept()
			if err != nil {
				return
			}
			go g.forwardConn(sconn, pub, msg.Addr, port, log)
		}
	}()
}

// forwardConn relays one public connection through a forwarded-tcpip
// channel.
func (g *Gateway) forwardConn(sconn *ssh.ServerConn, pub net.Conn, bindAddr string, port uint32, log *util.Logger) {
	if !g.limiter.TryAcquire() {
		log.Warn("gateway: %v, dropping %s", ncerr.ErrSessionLimit, pub.RemoteAddr())
		g.metrics.LimitRejected()
		pub.Close()
		return
	}
	defer g.limiter.Release()

	sess := session.New(pub, log)
	defer sess.Close()
	g.metrics.SessionOpened()
	defer g.metrics.SessionClosed()

	payload := forwardedTCPPayload{Addr: bindAddr, Port: port}
	if ta, ok := pub.RemoteAddr().(*net.TCPAddr); ok {
		payload.OriginAddr = ta.IP.String()
		payload.OriginPort = uint32(ta.Port)
	}

	ch, reqs, err := sconn.OpenChannel("forwarded-tcpip", ssh.Marshal(&payload))
	if err != nil {
		sess.Logger.Warn("gateway: %v", ncerr.WrapSSH("channel", sconn.RemoteAddr().String(), 0, err))
		g.metrics.RecordError(err.Error())
		return
	}
	go ssh.DiscardRequests(reqs)
	sess.SetOutbound(&chanConn{Channel: ch, laddr: sconn.LocalAddr(), raddr: sconn.RemoteAddr()})

	res, err := sess.Relay()
	if err != nil {
		sess.Logger.Error("gateway: %v", err)
		return
	}
	g.metrics.BytesReceived(res.AToB)
	g.metrics.BytesSent(res.BToA)
	sess.Logger.Verbose("gateway: %s closed after %v (in=%d out=%d)",
		pub.RemoteAddr(), res.Duration.Truncate(time.Millisecond), res.AToB, res.BToA)
}

// forwardSet tracks the public listeners opened for one client.
type forwardSet struct {
	mu        sync.Mutex
	listeners map[uint32]net.Listener
}

func (f *forwardSet) add(port uint32, ln net.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[port] = ln
}

func (f *forwardSet) remove(port uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ln, ok := f.listeners[port]
	if ok {
		ln.Close()
		delete(f.listeners, port)
	}
	return ok
}

func (f *forwardSet) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for port, ln := range f.listeners {
		ln.Close()
		delete(f.listeners, port)
	}
}
