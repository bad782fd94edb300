package cmd

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"tlex/config"
	"tlex/internal/core"
)

func single(t config.Tunnel) func([]string) (*plan, error) {
	return func(args []string) (*plan, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("unexpected arguments: %v", args)
		}
		return &plan{tunnels: []config.Tunnel{t}}, nil
	}
}

// ── server ───────────────────────────────────────────────────────────

func serverCommand(fs *flag.FlagSet) func([]string) (*plan, error) {
	c := config.NewServerConfig()
	fs.StringVar(&c.Name, "name", "", "Name used in logs")
	endpointVar(fs, &c.Listen, "listen", "Address to accept tunnels on (default 0.0.0.0:443)")
	fs.StringVar(&c.Secret, "secret", "", "Shared secret (or TLEX_SECRET)")
	fs.Var(transportValue{&c.Transport}, "transport", "Transport: tls, plain or ssh")
	fs.StringVar(&c.TLS.CertFile, "cert", "", "TLS certificate file")
	fs.StringVar(&c.TLS.KeyFile, "key", "", "TLS private key file")
	fs.StringVar(&c.TLS.CAFile, "ca", "", "Require client certificates signed by this CA")
	fs.StringVar(&c.SSH.HostKeyFile, "host-key", "", "SSH host key for --transport ssh (ephemeral if unset)")
	fs.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "Deadline for the transport and secret handshake (0 disables)")
	fs.DurationVar(&c.DialTimeout, "dial-timeout", c.DialTimeout, "Timeout for destination dials")
	fs.IntVar(&c.MaxSessions, "max-sessions", 0, "Concurrent session cap (0 = unlimited)")
	return single(c)
}

// ── client ───────────────────────────────────────────────────────────

func clientCommand(fs *flag.FlagSet) func([]string) (*plan, error) {
	c := config.NewClientConfig()
	fs.StringVar(&c.Name, "name", "", "Name used in logs")
	endpointVar(fs, &c.Local, "local", "Local address to accept on (default 127.0.0.1:8080)")
	endpointVar(fs, &c.Server, "server", "Server address (port defaults to 443)")
	endpointVar(fs, &c.Remote, "remote", "Destination the server should dial (port defaults to 80)")
	fs.StringVar(&c.Secret, "secret", "", "Shared secret (or TLEX_SECRET)")
	fs.Var(transportValue{&c.Transport}, "transport", "Transport: tls, plain or ssh")
	fs.StringVar(&c.TLS.CAFile, "ca", "", "Verify the server against this CA")
	fs.BoolVar(&c.TLS.Insecure, "insecure", false, "Accept any server certificate")
	fs.StringVar(&c.TLS.ServerName, "server-name", "", "TLS server name to verify (default: server host)")
	fs.StringVar(&c.TLS.CertFile, "cert", "", "Client certificate for mutual TLS")
	fs.StringVar(&c.TLS.KeyFile, "key", "", "Client key for mutual TLS")
	sshFlags(fs, &c.SSH)
	fs.DurationVar(&c.HandshakeTimeout, "handshake-timeout", c.HandshakeTimeout, "Deadline for the transport and secret handshake (0 disables)")
	fs.DurationVar(&c.DialTimeout, "dial-timeout", c.DialTimeout, "Timeout for server dials")
	fs.IntVar(&c.MaxSessions, "max-sessions", 0, "Concurrent session cap (0 = unlimited)")
	fs.IntVar(&c.BreakerThreshold, "breaker-threshold", 0, "Stop dialling after this many consecutive server failures (0 = off)")
	fs.DurationVar(&c.BreakerCooldown, "breaker-cooldown", c.BreakerCooldown, "How long the breaker stays open")
	return single(c)
}

// ── reverse-server ───────────────────────────────────────────────────

func reverseServerCommand(fs *flag.FlagSet) func([]string) (*plan, error) {
	c := config.NewReverseServerConfig()
	fs.StringVar(&c.Name, "name", "", "Name used in logs")
	endpointVar(fs, &c.Listen, "listen", "SSH gateway address (default 0.0.0.0:2222)")
	fs.StringVar(&c.Secret, "secret", "", "Shared secret clients authenticate with (or TLEX_SECRET)")
	fs.StringVar(&c.HostKeyFile, "host-key", "", "SSH host key (ephemeral if unset)")
	fs.StringVar(&c.BindHost, "bind-host", c.BindHost, "Interface forwarded ports are opened on")
	fs.IntVar(&c.MaxSessions, "max-sessions", 0, "Concurrent forwarded connection cap (0 = unlimited)")
	return single(c)
}

// ── reverse-client ───────────────────────────────────────────────────

func reverseClientCommand(fs *flag.FlagSet) func([]string) (*plan, error) {
	c := config.NewReverseClientConfig()
	var gateway string
	fs.StringVar(&c.Name, "name", "", "Name used in logs")
	fs.StringVar(&gateway, "server", "", "Gateway as [user@]host[:port]")
	endpointVar(fs, &c.RemoteBind, "remote-bind", "Address to open on the gateway (port 0 = gateway picks)")
	endpointVar(fs, &c.Local, "local", "Local service to expose")
	fs.StringVar(&c.Secret, "secret", "", "Shared secret, sent as the SSH password (or TLEX_SECRET)")
	sshFlags(fs, &c.SSH)
	fs.DurationVar(&c.KeepAlive, "keep-alive", c.KeepAlive, "SSH keepalive interval (0 disables)")
	fs.BoolVar(&c.AutoReconnect, "auto-reconnect", false, "Reconnect with backoff when the gateway is lost")

	return func(args []string) (*plan, error) {
		if gateway != "" {
			user, host, port, err := config.ParseGatewaySpec(gateway, config.DefaultGatewayPort)
			if err != nil {
				return nil, err
			}
			if user != "" {
				c.SSH.User = user
			}
			c.Server = config.Endpoint{Host: host, Port: port}
		}
		return single(c)(args)
	}
}

// ── run ──────────────────────────────────────────────────────────────

func runCommand(fs *flag.FlagSet) func([]string) (*plan, error) {
	var path string
	fs.StringVarP(&path, "file", "f", "", "Tunnels file (YAML)")

	return func(args []string) (*plan, error) {
		if path == "" && len(args) == 1 {
			path = args[0]
		} else if len(args) > 0 {
			return nil, fmt.Errorf("unexpected arguments: %v", args)
		}
		if path == "" {
			return nil, fmt.Errorf("run needs --file")
		}
		f, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return &plan{base: f.Options, tunnels: f.Tunnels}, nil
	}
}

// ── probe ────────────────────────────────────────────────────────────

func probeCommand(fs *flag.FlagSet) func([]string) (*plan, error) {
	p := &core.ProbeMode{}
	fs.IntVar(&p.Attempts, "attempts", config.DefaultProbeAttempts, "Connection attempts before giving up")
	fs.DurationVar(&p.Timeout, "timeout", config.DefaultProbeTimeout, "Timeout per attempt")

	return func(args []string) (*plan, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("probe needs <host> <port>")
		}
		port, err := parsePort(args[1])
		if err != nil {
			return nil, err
		}
		p.Target = config.Endpoint{Host: args[0], Port: port}
		p.Out = stdout
		return &plan{mode: p}, nil
	}
}
