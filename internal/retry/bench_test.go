package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func BenchmarkBackoff_FirstProbeSucceeds(b *testing.B) {
	bo := ProbeBackoff(3)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(_ int) error { return nil }) //nolint:errcheck
	}
}

func BenchmarkBackoff_PermanentError(b *testing.B) {
	bo := ReconnectBackoff()
	ctx := context.Background()
	fatal := Permanent(errors.New("auth failed"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(_ int) error { return fatal }) //nolint:errcheck
	}
}

// BenchmarkBreaker_Closed is the per-connection cost a client pays with
// --breaker-threshold set and a healthy server.
func BenchmarkBreaker_Closed(b *testing.B) {
	br := NewBreaker(BreakerConfig{Threshold: 5})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		br.Execute(pass) //nolint:errcheck
	}
}

func BenchmarkBreaker_Open(b *testing.B) {
	br := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	br.Execute(fail) //nolint:errcheck

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		br.Execute(pass) //nolint:errcheck
	}
}
