// Package session represents one forwarded connection: the inbound leg
// accepted by a listener, the outbound leg dialled for it, and the state
// the pair is in.
//
// A Session exclusively owns both legs.  Close releases both exactly once,
// whichever exit path the owner takes.
package session

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tlex/internal/relay"
	"tlex/util"
)

// State is the lifecycle position of a Session.
type State int32

const (
	Created State = iota
	Authenticating
	Relaying
	Closed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Authenticating:
		return "authenticating"
	case Relaying:
		return "relaying"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID      string
	Started time.Time
	Logger  *util.Logger

	mu       sync.Mutex
	inbound  net.Conn
	outbound net.Conn
	state    atomic.Int32
	once     sync.Once
}

// New creates a Session around an accepted connection.  The returned
// session's logger is tagged with its ID.
func New(inbound net.Conn, logger *util.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		Started: time.Now(),
		Logger:  logger.With("session", id[:8]),
		inbound: inbound,
	}
}

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Advance moves the session forward to next.  Moving backwards, or out
// of Closed, is refused.
func (s *Session) Advance(next State) error {
	for {
		cur := s.state.Load()
		if State(cur) == Closed || int32(next) <= cur {
			return fmt.Errorf("session %s: cannot move from %s to %s", s.ID, State(cur), next)
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return nil
		}
	}
}

// Inbound returns the accepted leg.
func (s *Session) Inbound() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbound
}

// Outbound returns the dialled leg, or nil before it exists.
func (s *Session) Outbound() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbound
}

// SetInbound replaces the accepted leg, typically with its TLS or SSH
// wrapped form.  The old leg is not closed; wrapping owns it.
func (s *Session) SetInbound(c net.Conn) {
	s.mu.Lock()
	s.inbound = c
	s.mu.Unlock()
	s.closeIfDone(c)
}

// SetOutbound attaches the dialled leg.
func (s *Session) SetOutbound(c net.Conn) {
	s.mu.Lock()
	s.outbound = c
	s.mu.Unlock()
	s.closeIfDone(c)
}

// closeIfDone closes c when it was attached after Close already ran.
func (s *Session) closeIfDone(c net.Conn) {
	if s.State() == Closed && c != nil {
		c.Close()
	}
}

// Relay moves the session to Relaying, pipes the two legs until either
// side stops, and closes the session.
func (s *Session) Relay() (relay.Result, error) {
	in, out := s.Inbound(), s.Outbound()
	if in == nil || out == nil {
		s.Close()
		return relay.Result{}, fmt.Errorf("session %s: relay needs both legs", s.ID)
	}
	if err := s.Advance(Relaying); err != nil {
		s.Close()
		return relay.Result{}, err
	}
	res := relay.Pipe(in, out)
	s.Close()
	return res, nil
}

// Close releases both legs.  It is idempotent.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.state.Store(int32(Closed))
		s.mu.Lock()
		in, out := s.inbound, s.outbound
		s.mu.Unlock()
		if in != nil {
			err = in.Close()
		}
		if out != nil {
			if cerr := out.Close(); err == nil {
				err = cerr
			}
		}
	})
	if util.IsHarmless(err) {
		return nil
	}
	return err
}

// Age returns how long the session has existed.
func (s *Session) Age() time.Duration { return time.Since(s.Started) }
