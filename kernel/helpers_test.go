package kernel

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 1 * time.Second

func newTestSystem(t *testing.T, threads ...ThreadConfig) *System {
	t.Helper()
	s, err := New(Config{
		MaxThreads: 8,
		Debug:      true,
		Threads:    threads,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

// startSystem starts s and waits for all the threads to block.
func startSystem(t *testing.T, s *System) {
	t.Helper()
	require.NoError(t, s.Start())
	settle(t, s)
}

// settle waits until the idle context owns the processor.
func settle(t *testing.T, s *System) {
	t.Helper()
	done := make(chan struct{})
	timer := time.AfterFunc(testTimeout, func() { close(done) })
	defer timer.Stop()
	require.True(t, s.WaitIdle(done), "system did not go idle")
}

// tick runs n system ticks, settling after each one.
func tick(t *testing.T, s *System, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.Tick()
		settle(t, s)
	}
}

func recvWithTimeout[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for message")
		var zero T
		return zero
	}
}

func requireEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected message %v", v)
	default:
	}
}
