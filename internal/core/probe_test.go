package core

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"tlex/config"
	"tlex/util"
)

func TestSuggestTransport(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    config.Transport
	}{
		{0, config.TransportTLS},
		{149 * time.Millisecond, config.TransportTLS},
		{150 * time.Millisecond, config.TransportSSH},
		{2 * time.Second, config.TransportSSH},
	}
	for _, tt := range tests {
		if got := SuggestTransport(tt.latency); got != tt.want {
			t.Errorf("SuggestTransport(%v) = %s, want %s", tt.latency, got, tt.want)
		}
	}
}

func TestProbe_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	var out bytes.Buffer
	p := &ProbeMode{
		Target:   config.Endpoint{Host: "127.0.0.1", Port: util.PortOf(ln.Addr())},
		Attempts: 3,
		Timeout:  time.Second,
		Logger:   util.Discard(),
		Out:      &out,
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", p.Result.Attempts)
	}
	if p.Result.Suggested != config.TransportTLS {
		t.Errorf("loopback suggested %s", p.Result.Suggested)
	}
	if !strings.Contains(out.String(), "suggested transport: tls") {
		t.Errorf("report = %q", out.String())
	}
}

func TestProbe_Unreachable(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	p := &ProbeMode{
		Target:   config.Endpoint{Host: "127.0.0.1", Port: port},
		Attempts: 2,
		Timeout:  time.Second,
		Logger:   util.Discard(),
		Out:      &out,
	}
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected an error for a closed port")
	}
	if p.Result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", p.Result.Attempts)
	}
	if !strings.Contains(out.String(), "unreachable") {
		t.Errorf("report = %q", out.String())
	}
}
