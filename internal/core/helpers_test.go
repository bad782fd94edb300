package core

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"tlex/config"
	"tlex/internal/metrics"
	"tlex/util"
)

const testSecret = "s3cret"

// startDestination runs an echo server and counts the connections it
// accepts.
func startDestination(t *testing.T) (config.Endpoint, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	var accepts atomic.Int32
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepts.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c) //nolint:errcheck
			}(c)
		}
	}()
	return config.Endpoint{Host: "127.0.0.1", Port: util.PortOf(ln.Addr())}, &accepts
}

// run starts m in the background and stops it when the test ends.
func run(t *testing.T, m Mode) {
	t.Helper()
	if err := m.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("mode did not stop")
		}
	})
}

func serverConfig(transport config.Transport) *config.ServerConfig {
	c := config.NewServerConfig()
	c.Listen = config.Endpoint{Host: "127.0.0.1", Port: 0}
	c.Secret = testSecret
	c.Transport = transport
	c.DialTimeout = 2 * time.Second
	c.HandshakeTimeout = 5 * time.Second
	return c
}

func clientConfig(server net.Addr, remote config.Endpoint, transport config.Transport) *config.ClientConfig {
	c := config.NewClientConfig()
	c.Local = config.Endpoint{Host: "127.0.0.1", Port: 0}
	c.Server = config.Endpoint{Host: "127.0.0.1", Port: util.PortOf(server)}
	c.Remote = remote
	c.Secret = testSecret
	c.Transport = transport
	c.DialTimeout = 2 * time.Second
	c.HandshakeTimeout = 5 * time.Second
	return c
}

func newServer(c *config.ServerConfig, m *metrics.Collector) *ServerMode {
	return &ServerMode{Config: c, Logger: util.Discard(), Metrics: m, Grace: time.Second}
}

func newClient(c *config.ClientConfig, m *metrics.Collector) *ClientMode {
	return &ClientMode{Config: c, Logger: util.Discard(), Metrics: m, Grace: time.Second}
}

// eventually polls cond for up to two seconds.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// expectClosed reads from c until the peer closes it.
func expectClosed(t *testing.T, c net.Conn) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
	_, err := io.Copy(io.Discard, c)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatal("connection was left open")
	}
}
