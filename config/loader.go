package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Options are the process-wide settings that are not part of any tunnel.
type Options struct {
	Verbose     int           `yaml:"verbose"`
	LogJSON     bool          `yaml:"log_json"`
	MetricsAddr string        `yaml:"metrics_addr"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TLEX_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto opts.  Only non-empty
// env vars override the existing value.  Call it BEFORE CLI flag parsing
// so that flags take precedence.
func LoadFromEnv(opts *Options) {
	if v := envInt("TLEX_VERBOSE"); v > 0 {
		opts.Verbose = v
	}
	if envBool("TLEX_LOG_JSON") {
		opts.LogJSON = true
	}
	if v := os.Getenv("TLEX_METRICS_ADDR"); v != "" {
		opts.MetricsAddr = v
	}
	if v := envInt("TLEX_GRACE_PERIOD"); v > 0 {
		opts.GracePeriod = secondsDuration(v)
	}
}

// ApplyEnv fills the secret and TLS material of t from the environment
// where the tunnel leaves them empty.
func ApplyEnv(t Tunnel) {
	secret := os.Getenv("TLEX_SECRET")
	switch c := t.(type) {
	case *ServerConfig:
		setIfEmpty(&c.Secret, secret)
		setIfEmpty(&c.TLS.CertFile, os.Getenv("TLEX_TLS_CERT"))
		setIfEmpty(&c.TLS.KeyFile, os.Getenv("TLEX_TLS_KEY"))
	case *ClientConfig:
		setIfEmpty(&c.Secret, secret)
		setIfEmpty(&c.TLS.CAFile, os.Getenv("TLEX_TLS_CA"))
		if envBool("TLEX_TLS_INSECURE") {
			c.TLS.Insecure = true
		}
	case *ReverseServerConfig:
		setIfEmpty(&c.Secret, secret)
		setIfEmpty(&c.HostKeyFile, os.Getenv("TLEX_SSH_HOST_KEY"))
	case *ReverseClientConfig:
		setIfEmpty(&c.Secret, secret)
		setIfEmpty(&c.SSH.KeyPath, os.Getenv("TLEX_SSH_KEY"))
		setIfEmpty(&c.SSH.KnownHosts, os.Getenv("TLEX_KNOWN_HOSTS"))
		if envBool("TLEX_SSH_AGENT") {
			c.SSH.UseAgent = true
		}
		if envBool("TLEX_STRICT_HOSTKEY") {
			c.SSH.StrictHostKey = true
		}
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
