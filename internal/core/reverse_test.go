package core

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"tlex/config"
	ncerr "tlex/internal/errors"
	"tlex/internal/metrics"
	"tlex/util"
)

func startReverseServer(t *testing.T, m *metrics.Collector) *ReverseServerMode {
	t.Helper()
	c := config.NewReverseServerConfig()
	c.Listen = config.Endpoint{Host: "127.0.0.1", Port: 0}
	c.BindHost = "127.0.0.1"
	c.Secret = testSecret
	rs := &ReverseServerMode{Config: c, Logger: util.Discard(), Metrics: m, Grace: time.Second}
	run(t, rs)
	return rs
}

func reverseClientConfig(gw net.Addr, local config.Endpoint) *config.ReverseClientConfig {
	c := config.NewReverseClientConfig()
	c.Server = config.Endpoint{Host: "127.0.0.1", Port: util.PortOf(gw)}
	c.RemoteBind = config.Endpoint{Host: "127.0.0.1", Port: 0}
	c.Local = local
	c.Secret = testSecret
	c.KeepAlive = 0
	return c
}

func TestReverse_EndToEnd(t *testing.T) {
	local, accepts := startDestination(t)
	sm := metrics.New()
	rs := startReverseServer(t, sm)

	rc := &ReverseClientMode{Config: reverseClientConfig(rs.Addr(), local), Logger: util.Discard()}
	run(t, rc)
	eventually(t, "remote forward", func() bool { return rc.RemotePort() != 0 })

	conn, err := net.Dial("tcp", util.FormatAddr("127.0.0.1", rc.RemotePort()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

	if _, err := conn.Write([]byte("through the gateway")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len("through the gateway"))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "through the gateway" {
		t.Errorf("echo = %q", buf)
	}
	if n := accepts.Load(); n != 1 {
		t.Errorf("local service accepted %d connections, want 1", n)
	}
	if n := sm.TotalSessions(); n != 1 {
		t.Errorf("gateway sessions = %d, want 1", n)
	}
}

func TestReverseClient_WrongSecret(t *testing.T) {
	local, _ := startDestination(t)
	rs := startReverseServer(t, nil)

	c := reverseClientConfig(rs.Addr(), local)
	c.Secret = "wrong"
	rc := &ReverseClientMode{Config: c, Logger: util.Discard()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Run(ctx); err == nil {
		t.Fatal("expected the gateway to refuse the secret")
	}
}

func TestReverseClient_SetupTwice(t *testing.T) {
	rc := &ReverseClientMode{
		Config: reverseClientConfig(&net.TCPAddr{Port: 2222}, config.Endpoint{Host: "127.0.0.1", Port: 3000}),
		Logger: util.Discard(),
	}
	if err := rc.Setup(); err != nil {
		t.Fatal(err)
	}
	if err := rc.Setup(); !ncerr.Is(err, ncerr.ErrAlreadyBound) {
		t.Fatalf("second Setup = %v, want ErrAlreadyBound", err)
	}
	if err := rc.Stop(); err != nil {
		t.Errorf("Stop before Run: %v", err)
	}
}

func TestReverseServer_HostKeyError(t *testing.T) {
	c := config.NewReverseServerConfig()
	c.Listen = config.Endpoint{Host: "127.0.0.1", Port: 0}
	c.Secret = testSecret
	c.HostKeyFile = t.TempDir() + "/missing"
	err := (&ReverseServerMode{Config: c, Logger: util.Discard()}).Setup()
	var ce *ncerr.ConfigError
	if !ncerr.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}
