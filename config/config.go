// Package config defines the tunnel descriptors for tlex and provides
// helpers for parsing endpoints and SSH gateway specifications.
//
// A Tunnel is a tagged variant: exactly one of ServerConfig, ClientConfig,
// ReverseServerConfig or ReverseClientConfig. The role is decided by the
// concrete type, never by inspecting which fields happen to be set.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Endpoint ─────────────────────────────────────────────────────────

// Endpoint is an immutable (host, port) pair.
type Endpoint struct {
	Host string
	Port int
}

// String returns host:port, bracketing IPv6 literals.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// IsZero reports whether e was never set.
func (e Endpoint) IsZero() bool { return e.Host == "" && e.Port == 0 }

// ParseEndpoint parses "host:port". An empty host is kept empty so callers
// can apply their own default.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q – expected host:port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port %q in %q", portStr, s)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// UnmarshalYAML accepts either "host:port" or a {host, port} mapping.
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		ep, err := ParseEndpoint(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*e = ep
		return nil
	}
	var raw struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*e = Endpoint{Host: raw.Host, Port: raw.Port}
	return nil
}

// MarshalYAML renders the endpoint as "host:port".
func (e Endpoint) MarshalYAML() (interface{}, error) { return e.String(), nil }

// ── Transport ────────────────────────────────────────────────────────

// Transport selects how the forwarding client and server talk.
type Transport string

const (
	// TransportTLS wraps the leg in TLS. This is the default.
	TransportTLS Transport = "tls"
	// TransportPlain sends the secret and destination in clear text.
	TransportPlain Transport = "plain"
	// TransportSSH carries the leg inside a single SSH channel.
	TransportSSH Transport = "ssh"
)

// Valid reports whether t names a supported transport.
func (t Transport) Valid() bool {
	switch t {
	case TransportTLS, TransportPlain, TransportSSH:
		return true
	}
	return false
}

// TLSConfig holds certificate material for either side.
type TLSConfig struct {
	CertFile   string `yaml:"cert"`
	KeyFile    string `yaml:"key"`
	CAFile     string `yaml:"ca"`
	ServerName string `yaml:"server_name"`
	// Insecure accepts any server certificate. It has to be asked for
	// explicitly; without it and without a CA the system roots are used.
	Insecure bool `yaml:"insecure"`
}

// SSHConfig holds SSH options shared by the ssh transport and the
// reverse tunnel roles.
type SSHConfig struct {
	User          string `yaml:"user"`
	HostKeyFile   string `yaml:"host_key"`
	KeyPath       string `yaml:"key"`
	UseAgent      bool   `yaml:"agent"`
	PromptPass    bool   `yaml:"prompt_password"`
	StrictHostKey bool   `yaml:"strict_host_key"`
	KnownHosts    string `yaml:"known_hosts"`
}

// ── Tunnel variants ──────────────────────────────────────────────────

// Role names a Tunnel variant.
type Role string

const (
	RoleServer        Role = "server"
	RoleClient        Role = "client"
	RoleReverseServer Role = "reverse-server"
	RoleReverseClient Role = "reverse-client"
)

// Tunnel is one configured role. The set of implementations is closed.
type Tunnel interface {
	Role() Role
	// Label is the user-facing name, falling back to the role.
	Label() string
	Validate() error
	isTunnel()
}

// ServerConfig configures the forwarding server (handshake Responder).
type ServerConfig struct {
	Name             string        `yaml:"name"`
	Listen           Endpoint      `yaml:"listen"`
	Secret           string        `yaml:"secret"`
	Transport        Transport     `yaml:"transport"`
	TLS              TLSConfig     `yaml:"tls"`
	SSH              SSHConfig     `yaml:"ssh"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	MaxSessions      int           `yaml:"max_sessions"`
}

// ClientConfig configures the forwarding client (handshake Initiator).
type ClientConfig struct {
	Name             string        `yaml:"name"`
	Local            Endpoint      `yaml:"local"`
	Server           Endpoint      `yaml:"server"`
	Remote           Endpoint      `yaml:"remote"`
	Secret           string        `yaml:"secret"`
	Transport        Transport     `yaml:"transport"`
	TLS              TLSConfig     `yaml:"tls"`
	SSH              SSHConfig     `yaml:"ssh"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	MaxSessions      int           `yaml:"max_sessions"`
	// BreakerThreshold opens the circuit after that many consecutive
	// server dial failures. Zero disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// ReverseServerConfig configures the SSH gateway that accepts remote
// forward requests.
type ReverseServerConfig struct {
	Name        string   `yaml:"name"`
	Listen      Endpoint `yaml:"listen"`
	Secret      string   `yaml:"secret"`
	HostKeyFile string   `yaml:"host_key"`
	// BindHost is the interface public listeners are opened on,
	// regardless of what the client asks for.
	BindHost    string `yaml:"bind_host"`
	MaxSessions int    `yaml:"max_sessions"`
}

// ReverseClientConfig configures an ssh -R style reverse tunnel.
type ReverseClientConfig struct {
	Name          string        `yaml:"name"`
	Server        Endpoint      `yaml:"server"`
	Secret        string        `yaml:"secret"`
	RemoteBind    Endpoint      `yaml:"remote_bind"`
	Local         Endpoint      `yaml:"local"`
	SSH           SSHConfig     `yaml:"ssh"`
	KeepAlive     time.Duration `yaml:"keep_alive"`
	AutoReconnect bool          `yaml:"auto_reconnect"`
}

func (*ServerConfig) Role() Role        { return RoleServer }
func (*ClientConfig) Role() Role        { return RoleClient }
func (*ReverseServerConfig) Role() Role { return RoleReverseServer }
func (*ReverseClientConfig) Role() Role { return RoleReverseClient }

func (c *ServerConfig) Label() string        { return label(c.Name, c.Role()) }
func (c *ClientConfig) Label() string        { return label(c.Name, c.Role()) }
func (c *ReverseServerConfig) Label() string { return label(c.Name, c.Role()) }
func (c *ReverseClientConfig) Label() string { return label(c.Name, c.Role()) }

func (*ServerConfig) isTunnel()        {}
func (*ClientConfig) isTunnel()        {}
func (*ReverseServerConfig) isTunnel() {}
func (*ReverseClientConfig) isTunnel() {}

func label(name string, r Role) string {
	if name != "" {
		return name
	}
	return string(r)
}

// ── Defaults ─────────────────────────────────────────────────────────

// NewServerConfig returns a ServerConfig with every default applied.
func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen:           Endpoint{Host: DefaultListenHost, Port: DefaultServerPort},
		Transport:        TransportTLS,
		SSH:              SSHConfig{User: DefaultSSHUser},
		HandshakeTimeout: DefaultHandshakeTimeout,
		DialTimeout:      DefaultDialTimeout,
	}
}

// NewClientConfig returns a ClientConfig with every default applied.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		Local:            Endpoint{Host: DefaultLocalAddress, Port: DefaultLocalPort},
		Server:           Endpoint{Port: DefaultServerPort},
		Remote:           Endpoint{Port: DefaultRemotePort},
		Transport:        TransportTLS,
		SSH:              SSHConfig{User: DefaultSSHUser},
		HandshakeTimeout: DefaultHandshakeTimeout,
		DialTimeout:      DefaultDialTimeout,
		BreakerCooldown:  DefaultBreakerCooldown,
	}
}

// NewReverseServerConfig returns a ReverseServerConfig with defaults.
func NewReverseServerConfig() *ReverseServerConfig {
	return &ReverseServerConfig{
		Listen:   Endpoint{Host: DefaultListenHost, Port: DefaultGatewayPort},
		BindHost: DefaultListenHost,
	}
}

// NewReverseClientConfig returns a ReverseClientConfig with defaults.
func NewReverseClientConfig() *ReverseClientConfig {
	return &ReverseClientConfig{
		Server:     Endpoint{Port: DefaultGatewayPort},
		RemoteBind: Endpoint{Host: DefaultListenHost},
		Local:      Endpoint{Host: DefaultLocalAddress},
		SSH:        SSHConfig{User: DefaultSSHUser},
		KeepAlive:  DefaultKeepAliveInterval,
	}
}

// ── Gateway-spec parser ──────────────────────────────────────────────

// gatewayRe matches [user@]host[:port].
var gatewayRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseGatewaySpec extracts user, host, and port from a string such as
// "tlex@gw.example.com:2222". Port defaults to defPort.
func ParseGatewaySpec(spec string, defPort int) (user, host string, port int, err error) {
	m := gatewayRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = defPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	return user, host, port, nil
}
