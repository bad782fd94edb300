package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"tlex/config"
	ncerr "tlex/internal/errors"
)

var errDial = errors.New("connection refused")

func fail() error { return errDial }
func pass() error { return nil }

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	if b.cfg.Threshold != 5 || b.cfg.Trials != 1 || b.cfg.Cooldown != config.DefaultBreakerCooldown {
		t.Errorf("defaults = %+v", b.cfg)
	}
	if err := b.Execute(pass); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("state = %s, want closed", b.CurrentState())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		b.Execute(fail) //nolint:errcheck
	}
	if b.CurrentState() != StateClosed {
		t.Fatalf("opened after 2 of 3 failures")
	}
	b.Execute(fail) //nolint:errcheck
	if b.CurrentState() != StateOpen || b.Failures() != 3 {
		t.Errorf("state=%s failures=%d, want open/3", b.CurrentState(), b.Failures())
	}
}

func TestBreaker_OpenSkipsCall(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	b.Execute(fail) //nolint:errcheck

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if called {
		t.Error("fn ran through an open circuit")
	}
	if !ncerr.Is(err, ncerr.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	var oe *OpenError
	if !errors.As(err, &oe) || oe.Failures != 1 || oe.RetryIn <= 0 {
		t.Errorf("OpenError = %+v", oe)
	}
}

func TestBreaker_Trials(t *testing.T) {
	tests := []struct {
		name   string
		trials int
		calls  []func() error
		want   State
	}{
		{"one trial closes", 1, []func() error{pass}, StateClosed},
		{"second trial needed", 2, []func() error{pass}, StateHalfOpen},
		{"two trials close", 2, []func() error{pass, pass}, StateClosed},
		{"failed trial reopens", 2, []func() error{fail}, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond, Trials: tt.trials})
			b.Execute(fail) //nolint:errcheck
			time.Sleep(20 * time.Millisecond)

			for _, fn := range tt.calls {
				b.Execute(fn) //nolint:errcheck
			}
			if got := b.CurrentState(); got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	b.Execute(fail) //nolint:errcheck
	b.Reset()
	if b.CurrentState() != StateClosed || b.Failures() != 0 {
		t.Errorf("after Reset: state=%s failures=%d", b.CurrentState(), b.Failures())
	}
}

func TestBreaker_StateChange(t *testing.T) {
	var seen []string
	b := NewBreaker(BreakerConfig{
		Threshold: 1,
		Cooldown:  10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			seen = append(seen, fmt.Sprintf("%s→%s", from, to))
		},
	})

	b.Execute(fail) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)
	b.Execute(pass) //nolint:errcheck

	want := []string{"closed→open", "open→half-open", "half-open→closed"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreaker_SuccessClearsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 3})
	b.Execute(fail) //nolint:errcheck
	b.Execute(fail) //nolint:errcheck
	b.Execute(pass) //nolint:errcheck
	if b.Failures() != 0 {
		t.Errorf("failures = %d after a success", b.Failures())
	}
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	refused := errors.New("refused by server")
	b := NewBreaker(BreakerConfig{
		Threshold: 2,
		Cooldown:  time.Hour,
		IsFailure: func(err error) bool { return !errors.Is(err, refused) },
	})

	for i := 0; i < 5; i++ {
		if err := b.Execute(func() error { return refused }); !errors.Is(err, refused) {
			t.Fatalf("Execute returned %v, want the dial error unchanged", err)
		}
	}
	if b.CurrentState() != StateClosed || b.Failures() != 0 {
		t.Errorf("filtered errors counted: state=%s failures=%d", b.CurrentState(), b.Failures())
	}

	b.Execute(fail) //nolint:errcheck
	b.Execute(fail) //nolint:errcheck
	if b.CurrentState() != StateOpen {
		t.Errorf("state = %s, want open", b.CurrentState())
	}
}
