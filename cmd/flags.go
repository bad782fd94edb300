package cmd

import (
	"strings"

	flag "github.com/spf13/pflag"

	"tlex/config"
)

// endpointValue lets a flag fill a config.Endpoint in place.  A bare
// host keeps the endpoint's default port.
type endpointValue struct{ ep *config.Endpoint }

func (v endpointValue) String() string {
	if v.ep == nil || v.ep.IsZero() {
		return ""
	}
	return v.ep.String()
}

func (v endpointValue) Set(s string) error {
	if !strings.Contains(s, ":") {
		v.ep.Host = s
		return nil
	}
	ep, err := config.ParseEndpoint(s)
	if err != nil {
		return err
	}
	*v.ep = ep
	return nil
}

func (endpointValue) Type() string { return "host:port" }

func endpointVar(fs *flag.FlagSet, ep *config.Endpoint, name, usage string) {
	fs.Var(endpointValue{ep}, name, usage)
}

// transportValue normalises --transport; Validate rejects unknown names.
type transportValue struct{ t *config.Transport }

func (v transportValue) String() string {
	if v.t == nil {
		return ""
	}
	return string(*v.t)
}

func (v transportValue) Set(s string) error {
	*v.t = config.Transport(strings.ToLower(s))
	return nil
}

func (transportValue) Type() string { return "tls|plain|ssh" }

// ── common flags ─────────────────────────────────────────────────────

// common are the flags every subcommand accepts.
type common struct {
	opts   config.Options
	dryRun bool
	help   bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.CountVarP(&c.opts.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&c.opts.LogJSON, "log-json", false, "Log one JSON object per line")
	fs.StringVar(&c.opts.MetricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and /stats on this address")
	fs.DurationVar(&c.opts.GracePeriod, "grace-period", config.DefaultGracePeriod, "How long shutdown waits for running sessions")
	fs.BoolVar(&c.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVarP(&c.help, "help", "h", false, "Show this help")
}

// resolve layers the sources: base (file or defaults), then the
// environment, then any flag given explicitly.
func (c *common) resolve(fs *flag.FlagSet, base config.Options) config.Options {
	out := base
	config.LoadFromEnv(&out)
	if fs.Changed("verbose") {
		out.Verbose = c.opts.Verbose
	}
	if fs.Changed("log-json") {
		out.LogJSON = c.opts.LogJSON
	}
	if fs.Changed("metrics-addr") {
		out.MetricsAddr = c.opts.MetricsAddr
	}
	if fs.Changed("grace-period") || out.GracePeriod == 0 {
		out.GracePeriod = c.opts.GracePeriod
	}
	return out
}

// sshFlags binds the SSH client options shared by the ssh transport and
// reverse-client.
func sshFlags(fs *flag.FlagSet, s *config.SSHConfig) {
	fs.StringVar(&s.User, "ssh-user", s.User, "SSH user name")
	fs.StringVar(&s.KeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&s.UseAgent, "ssh-agent", false, "Use the SSH agent")
	fs.BoolVar(&s.PromptPass, "ssh-password", false, "Prompt for an SSH password")
	fs.BoolVar(&s.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&s.KnownHosts, "known-hosts", "", "Custom known_hosts path")
}
