package config

import (
	"testing"
)

// ── ParseEndpoint ────────────────────────────────────────────────────

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"host and port", "example.com:80", "example.com", 80, false},
		{"wildcard", "0.0.0.0:443", "0.0.0.0", 443, false},
		{"empty host", ":8080", "", 8080, false},
		{"ipv6", "[::1]:9000", "::1", 9000, false},
		{"ephemeral", "127.0.0.1:0", "127.0.0.1", 0, false},
		{"no port", "example.com", "", 0, true},
		{"bad port", "example.com:http", "", 0, true},
		{"port too high", "example.com:65536", "", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEndpoint(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if ep.Host != tt.wantHost || ep.Port != tt.wantPort {
				t.Errorf("got (%q, %d), want (%q, %d)", ep.Host, ep.Port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestEndpoint_String(t *testing.T) {
	tests := []struct {
		ep   Endpoint
		want string
	}{
		{Endpoint{"example.com", 80}, "example.com:80"},
		{Endpoint{"::1", 443}, "[::1]:443"},
		{Endpoint{"", 8080}, ":8080"},
	}
	for _, tt := range tests {
		if got := tt.ep.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// ── ParseGatewaySpec ─────────────────────────────────────────────────

func TestParseGatewaySpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@gw.example.com:2200", "admin", "gw.example.com", 2200, false},
		{"no port", "root@gateway", "root", "gateway", DefaultGatewayPort, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", DefaultGatewayPort, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"port zero", "host:0", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
		{"no host", ":22", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseGatewaySpec(tt.input, DefaultGatewayPort)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── Tunnel variants ──────────────────────────────────────────────────

func TestTunnel_RoleFromType(t *testing.T) {
	tests := []struct {
		tun  Tunnel
		want Role
	}{
		{NewServerConfig(), RoleServer},
		{NewClientConfig(), RoleClient},
		{NewReverseServerConfig(), RoleReverseServer},
		{NewReverseClientConfig(), RoleReverseClient},
	}
	for _, tt := range tests {
		if got := tt.tun.Role(); got != tt.want {
			t.Errorf("%T.Role() = %q, want %q", tt.tun, got, tt.want)
		}
		if got := tt.tun.Label(); got != string(tt.want) {
			t.Errorf("%T.Label() = %q, want role fallback", tt.tun, got)
		}
	}

	named := NewClientConfig()
	named.Name = "web"
	if named.Label() != "web" {
		t.Errorf("Label() = %q, want web", named.Label())
	}
}

func TestDefaults(t *testing.T) {
	c := NewClientConfig()
	if c.Local.String() != "127.0.0.1:8080" {
		t.Errorf("Local = %s", c.Local)
	}
	if c.Server.Port != 443 || c.Remote.Port != 80 {
		t.Errorf("Server/Remote ports = %d/%d", c.Server.Port, c.Remote.Port)
	}
	if c.Transport != TransportTLS {
		t.Errorf("Transport = %q, want tls", c.Transport)
	}

	s := NewServerConfig()
	if s.Listen.String() != "0.0.0.0:443" {
		t.Errorf("Listen = %s", s.Listen)
	}
	if s.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v", s.HandshakeTimeout)
	}
}
