// Package ktest contains helpers for tests driving a kernel.System.
package ktest

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chibi/kernel"
)

// Timeout bounds every wait done by the helpers.
const Timeout = 1 * time.Second

// NewSystem returns a system with state checks enabled and logging
// discarded. The system is stopped when the test ends.
func NewSystem(t testing.TB, threads ...kernel.ThreadConfig) *kernel.System {
	t.Helper()
	s, err := kernel.New(kernel.Config{
		Debug:   true,
		Threads: threads,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

// Start starts s and waits for every thread to block.
func Start(t testing.TB, s *kernel.System) {
	t.Helper()
	require.NoError(t, s.Start())
	Settle(t, s)
}

// Settle waits until the idle context owns the processor.
func Settle(t testing.TB, s *kernel.System) {
	t.Helper()
	done := make(chan struct{})
	timer := time.AfterFunc(Timeout, func() { close(done) })
	defer timer.Stop()
	require.True(t, s.WaitIdle(done), "system did not go idle")
}

// Tick runs n system ticks, settling after each one.
func Tick(t testing.TB, s *kernel.System, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.Tick()
		Settle(t, s)
	}
}

// Recv returns the next value from ch, failing the test after Timeout.
func Recv[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(Timeout):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

// RequireEmpty fails the test if a value is pending on ch.
func RequireEmpty[T any](t testing.TB, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	default:
	}
}
