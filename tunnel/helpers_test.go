package tunnel

import (
	"context"
	"io"
	"net"
	"testing"

	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/util"
)

const testSecret = "s3cret"

// startEcho runs a TCP echo service and returns its port.
func startEcho(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c) //nolint:errcheck
			}(c)
		}
	}()
	return util.PortOf(ln.Addr())
}

// startGateway serves a Gateway on an ephemeral loopback port.
func startGateway(t *testing.T, lim *limit.Limiter, m *metrics.Collector) int {
	t.Helper()
	signer, err := LoadHostKey("")
	if err != nil {
		t.Fatal(err)
	}
	gw := NewGateway(GatewayConfig{
		Secret:   testSecret,
		Signer:   signer,
		BindHost: "127.0.0.1",
		Limiter:  lim,
	}, util.Discard(), m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		ln.Close()
	})

	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			go gw.ServeConn(ctx, raw) //nolint:errcheck
		}
	}()
	return util.PortOf(ln.Addr())
}

func clientConfig(port int, secret string) *SSHConfig {
	return &SSHConfig{
		User:     "tlex",
		Host:     "127.0.0.1",
		Port:     port,
		Password: secret,
	}
}
