// Package core is the orchestration layer.  It composes the transport,
// the handshake, sessions and the relay into the roles a tlex process
// can run, and provides the single dispatch point that picks a role from
// a tunnel descriptor.
//
// Architecture layers (bottom → top):
//
//	transport, handshake, relay  →  session  →  core  →  cmd (CLI)
package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tlex/config"
	"tlex/internal/limit"
	"tlex/internal/metrics"
	"tlex/util"
)

// Mode is one running role.  Setup binds whatever the role listens on
// and surfaces setup errors (bind, certificate loading) to the caller;
// it succeeds at most once.  Run serves until ctx ends or Stop is
// called.  Run performs Setup itself when the caller has not.
type Mode interface {
	Setup() error
	Run(ctx context.Context) error
	Stop() error
}

// Deps are the collaborators shared by every mode of one process.
type Deps struct {
	Logger  *util.Logger
	Metrics *metrics.Collector
	// GracePeriod bounds how long a stopping mode waits for running
	// sessions.  Zero means config.DefaultGracePeriod.
	GracePeriod time.Duration
}

func (d Deps) grace() time.Duration {
	if d.GracePeriod > 0 {
		return d.GracePeriod
	}
	return config.DefaultGracePeriod
}

// Build validates t and constructs its mode.
func Build(t config.Tunnel, d Deps) (Mode, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if d.Logger == nil {
		d.Logger = util.Discard()
	}
	log := d.Logger
	if name, ok := named(t); ok {
		log = log.With("tunnel", name)
	}

	switch c := t.(type) {
	case *config.ServerConfig:
		return &ServerMode{Config: c, Logger: log, Metrics: d.Metrics, Limiter: limit.New(c.MaxSessions), Grace: d.grace()}, nil
	case *config.ClientConfig:
		return &ClientMode{Config: c, Logger: log, Metrics: d.Metrics, Limiter: limit.New(c.MaxSessions), Grace: d.grace()}, nil
	case *config.ReverseServerConfig:
		return &ReverseServerMode{Config: c, Logger: log, Metrics: d.Metrics, Limiter: limit.New(c.MaxSessions), Grace: d.grace()}, nil
	case *config.ReverseClientConfig:
		return &ReverseClientMode{Config: c, Logger: log, Metrics: d.Metrics}, nil
	}
	return nil, fmt.Errorf("unsupported tunnel type %T", t)
}

func named(t config.Tunnel) (string, bool) {
	l := t.Label()
	return l, l != string(t.Role())
}

// RunAll sets up and runs every mode concurrently.  The first mode to
// fail, including a setup failure, cancels the others; RunAll returns
// that error once all of them have stopped.
func RunAll(ctx context.Context, modes []Mode) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range modes {
		m := m
		g.Go(func() error {
			if err := m.Setup(); err != nil {
				return err
			}
			return m.Run(gctx)
		})
	}
	return g.Wait()
}
