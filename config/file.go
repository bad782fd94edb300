package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form read by `tlex run`.
//
//	verbose: 1
//	metrics_addr: 127.0.0.1:9100
//	tunnels:
//	  - role: server
//	    listen: 0.0.0.0:443
//	    secret: s3cret
//	    tls: {cert: /etc/tlex/cert.pem, key: /etc/tlex/key.pem}
//	  - role: client
//	    local: 127.0.0.1:8080
//	    server: relay.example.com:443
//	    remote: example.com:80
//	    secret: s3cret
type File struct {
	Options `yaml:",inline"`
	Tunnels []Tunnel `yaml:"-"`
}

type fileDoc struct {
	Options `yaml:",inline"`
	Tunnels []tunnelEntry `yaml:"tunnels"`
}

// tunnelEntry decodes one descriptor, picking the variant from `role`.
type tunnelEntry struct {
	Tunnel Tunnel
}

func (e *tunnelEntry) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Role Role `yaml:"role"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}

	var t Tunnel
	switch head.Role {
	case RoleServer:
		t = NewServerConfig()
	case RoleClient:
		t = NewClientConfig()
	case RoleReverseServer:
		t = NewReverseServerConfig()
	case RoleReverseClient:
		t = NewReverseClientConfig()
	case "":
		return fmt.Errorf("line %d: tunnel entry has no role", node.Line)
	default:
		return fmt.Errorf("line %d: unknown role %q", node.Line, head.Role)
	}
	if err := node.Decode(t); err != nil {
		return fmt.Errorf("line %d: %s: %w", node.Line, head.Role, err)
	}
	e.Tunnel = t
	return nil
}

// LoadFile reads and parses a tunnels file. Defaults are applied per
// variant before the file's values; Validate is left to the caller.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses the YAML document in data.
func ParseFile(data []byte) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(doc.Tunnels) == 0 {
		return nil, fmt.Errorf("parse config: no tunnels defined")
	}
	f := &File{Options: doc.Options}
	for _, e := range doc.Tunnels {
		f.Tunnels = append(f.Tunnels, e.Tunnel)
	}
	return f, nil
}
