// Package cmd wires up the CLI flags and dispatches to the core roles.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	flag "github.com/spf13/pflag"

	"tlex/config"
	"tlex/internal/core"
	"tlex/internal/metrics"
	"tlex/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X tlex/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives reports such as probe results and dry-run summaries.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// command builds the flag set for one subcommand and, after parsing,
// the tunnels it describes.
type command struct {
	summary string
	setup   func(fs *flag.FlagSet) (build func(args []string) (*plan, error))
}

// plan is what a parsed subcommand wants run.
type plan struct {
	base    config.Options
	tunnels []config.Tunnel
	// mode, when set, replaces tunnels (probe).
	mode core.Mode
}

var commands = map[string]command{ //nolint:gochecknoglobals
	"server":         {"Accept tunnelled connections and dial their destinations", serverCommand},
	"client":         {"Forward a local port through a server", clientCommand},
	"reverse-server": {"Run an SSH gateway for reverse tunnels", reverseServerCommand},
	"reverse-client": {"Expose a local service on a remote gateway (ssh -R)", reverseClientCommand},
	"run":            {"Run every tunnel described in a YAML file", runCommand},
	"probe":          {"Measure connect latency and suggest a transport", probeCommand},
}

// Execute parses args and runs the selected subcommand.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}
	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return nil
	case "--version", "version":
		fmt.Fprintf(stdout, "tlex %s\n", version)
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (use --help for usage)", name)
	}

	fs := flag.NewFlagSet("tlex "+name, flag.ContinueOnError)
	var c common
	c.register(fs)
	build := cmd.setup(fs)
	fs.Usage = func() { printCommandUsage(name, cmd.summary, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if c.help {
		fs.Usage()
		return nil
	}

	p, err := build(fs.Args())
	if err != nil {
		return err
	}
	return launch(ctx, &c, c.resolve(fs, p.base), p)
}

// launch builds every mode, validates, and runs them until ctx ends.
func launch(ctx context.Context, c *common, opts config.Options, p *plan) error {
	logger := newLogger(opts)
	defer logger.Sync()

	if p.mode != nil {
		if pm, ok := p.mode.(*core.ProbeMode); ok {
			pm.Logger = logger
		}
		if c.dryRun {
			return nil
		}
		return p.mode.Run(ctx)
	}

	m := metrics.New()
	deps := core.Deps{Logger: logger, Metrics: m, GracePeriod: opts.GracePeriod}

	modes := make([]core.Mode, 0, len(p.tunnels))
	for _, t := range p.tunnels {
		config.ApplyEnv(t)
		if !c.dryRun {
			if err := promptSecret(t); err != nil {
				return err
			}
		}
		mode, err := core.Build(t, deps)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Label(), err)
		}
		modes = append(modes, mode)
	}

	if c.dryRun {
		for _, t := range p.tunnels {
			fmt.Fprintf(stdout, "%s: ok\n", t.Label())
		}
		return nil
	}

	if opts.MetricsAddr != "" {
		if err := metrics.Serve(ctx, opts.MetricsAddr, m, logger); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	return core.RunAll(ctx, modes)
}

// ── helpers ──────────────────────────────────────────────────────────

func newLogger(opts config.Options) *util.Logger {
	if opts.LogJSON {
		return util.NewJSONLogger(opts.Verbose+1, os.Stderr)
	}
	return util.NewLogger(opts.Verbose + 1)
}

// promptSecret asks for the shared secret on the terminal when the
// tunnel needs one and none was given.
func promptSecret(t config.Tunnel) error {
	var secret *string
	switch c := t.(type) {
	case *config.ServerConfig:
		secret = &c.Secret
	case *config.ClientConfig:
		secret = &c.Secret
	case *config.ReverseServerConfig:
		secret = &c.Secret
	case *config.ReverseClientConfig:
		if c.SSH.KeyPath != "" || c.SSH.UseAgent || c.SSH.PromptPass {
			return nil
		}
		secret = &c.Secret
	}
	if secret == nil || *secret != "" || !util.IsTerminal() {
		return nil
	}
	s, err := util.ReadSecret(fmt.Sprintf("Shared secret for %s: ", t.Label()))
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	*secret = s
	return nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return p, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `tlex – secure TCP tunnels v%s

Forwards TCP connections through a TLS, SSH or plain transport after a
shared-secret handshake.

Usage:
  tlex <command> [options]

Commands:
`, version)
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", n, commands[n].summary)
	}
	fmt.Fprint(os.Stderr, `
Examples:
  tlex server --listen 0.0.0.0:443 --cert cert.pem --key key.pem --secret s3cret
  tlex client --local 127.0.0.1:8080 --server relay.example.com:443 --remote example.com:80 --ca cert.pem --secret s3cret
  tlex reverse-server --listen 0.0.0.0:2222 --host-key host_ed25519 --secret s3cret
  tlex reverse-client --server tlex@gw.example.com:2222 --remote-bind 0.0.0.0:8080 --local 127.0.0.1:3000 --secret s3cret
  tlex run --file tunnels.yaml
  tlex probe relay.example.com 443

Run "tlex <command> --help" for the options of one command.
`)
}

func printCommandUsage(name, summary string, fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "%s\n\nUsage:\n  tlex %s [options]\n\nOptions:\n", summary, name)
	fs.PrintDefaults()
}
