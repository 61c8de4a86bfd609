package kernel

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	noop := func(any) {}

	_, err := New(Config{MaxThreads: MaxThreadsLimit + 1})
	require.ErrorIs(t, err, ErrTooManyThreads)

	_, err = New(Config{MaxThreads: 4, Threads: []ThreadConfig{{Name: "a", Prio: 4, Func: noop}}})
	require.ErrorIs(t, err, ErrBadPriority)

	_, err = New(Config{Threads: []ThreadConfig{{Name: "a", Prio: 1}}})
	require.ErrorIs(t, err, ErrNilFunc)

	_, err = New(Config{Threads: []ThreadConfig{
		{Name: "a", Prio: 1, Func: noop},
		{Name: "b", Prio: 1, Func: noop},
	}})
	require.ErrorIs(t, err, ErrPrioTaken)
}

func TestStartRunsThreadsByPriority(t *testing.T) {
	order := make(chan string, 3)
	mk := func(name string, prio int) ThreadConfig {
		return ThreadConfig{Name: name, Prio: prio, Func: func(any) { order <- name }}
	}
	s := newTestSystem(t, mk("low", 5), mk("high", 0), mk("mid", 2))
	startSystem(t, s)

	assert.Equal(t, "high", recvWithTimeout(t, order))
	assert.Equal(t, "mid", recvWithTimeout(t, order))
	assert.Equal(t, "low", recvWithTimeout(t, order))

	code, ok := s.ThreadAt(0).ExitCode()
	require.True(t, ok)
	assert.Equal(t, MsgOK, code)
	assert.Equal(t, StateFinal, s.ThreadAt(5).State())
	assert.ErrorIs(t, s.Start(), ErrStarted)
}

func TestSleepWakesAfterTimeout(t *testing.T) {
	woke := make(chan Systime, 1)
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "sleeper", Prio: 1, Func: func(any) {
		s.Sleep(5)
		woke <- s.GetSystemTime()
	}})
	startSystem(t, s)

	assert.Equal(t, StateSleeping, s.ThreadAt(1).State())
	tick(t, s, 4)
	requireEmpty(t, woke)
	tick(t, s, 1)
	assert.Equal(t, Systime(5), recvWithTimeout(t, woke))
}

func TestSleepUntil(t *testing.T) {
	woke := make(chan Systime, 1)
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "sleeper", Prio: 1, Func: func(any) {
		s.Sleep(2)
		s.SleepUntil(TimeAdd(s.GetSystemTime(), 3))
		woke <- s.GetSystemTime()
	}})
	startSystem(t, s)

	tick(t, s, 4)
	requireEmpty(t, woke)
	tick(t, s, 1)
	assert.Equal(t, Systime(5), recvWithTimeout(t, woke))
}

func TestSuspendResume(t *testing.T) {
	var ref ThreadReference
	got := make(chan Msg, 1)
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "waiter", Prio: 3, Func: func(any) {
		s.Lock()
		msg := s.SuspendTimeoutS(&ref, TimeInfinite)
		s.Unlock()
		got <- msg
	}})
	startSystem(t, s)

	require.Equal(t, StateSuspended, s.ThreadAt(3).State())
	s.ISR(func() { s.ResumeI(&ref, Msg(7)) })
	settle(t, s)

	assert.Equal(t, Msg(7), recvWithTimeout(t, got))
	assert.Nil(t, ref.Thread())
}

func TestSuspendTimeoutClearsReference(t *testing.T) {
	var ref ThreadReference
	got := make(chan Msg, 2)
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "waiter", Prio: 0, Func: func(any) {
		s.Lock()
		got <- s.SuspendTimeoutS(&ref, TimeImmediate)
		got <- s.SuspendTimeoutS(&ref, 10)
		s.Unlock()
	}})
	startSystem(t, s)

	assert.Equal(t, MsgTimeout, recvWithTimeout(t, got))
	tick(t, s, 10)
	assert.Equal(t, MsgTimeout, recvWithTimeout(t, got))
	assert.Nil(t, ref.Thread())
}

func TestWaitReturnsExitCode(t *testing.T) {
	got := make(chan Msg, 1)
	var s *System
	s = newTestSystem(t,
		ThreadConfig{Name: "waiter", Prio: 1, Func: func(any) {
			got <- s.Wait(s.ThreadAt(2))
		}},
		ThreadConfig{Name: "worker", Prio: 2, Func: func(any) {
			s.Sleep(3)
			s.Exit(Msg(5))
		}},
	)
	startSystem(t, s)

	assert.Equal(t, StateWTExit, s.ThreadAt(1).State())
	tick(t, s, 3)
	assert.Equal(t, Msg(5), recvWithTimeout(t, got))

	code, ok := s.ThreadAt(2).ExitCode()
	require.True(t, ok)
	assert.Equal(t, Msg(5), code)
}

func TestCreatePreemptsLowerPriority(t *testing.T) {
	order := make(chan string, 2)
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "parent", Prio: 4, Func: func(any) {
		s.Create(ThreadConfig{Name: "child", Prio: 1, Func: func(any) { order <- "child" }})
		order <- "parent"
	}})
	startSystem(t, s)

	assert.Equal(t, "child", recvWithTimeout(t, order))
	assert.Equal(t, "parent", recvWithTimeout(t, order))
	assert.Equal(t, "child", s.ThreadAt(1).Name())
}

func TestRestartFinalSlot(t *testing.T) {
	runs := make(chan int, 2)
	var s *System
	body := func(arg any) { runs <- arg.(int) }
	s = newTestSystem(t, ThreadConfig{Name: "once", Prio: 2, Func: body, Arg: 1})
	startSystem(t, s)
	assert.Equal(t, 1, recvWithTimeout(t, runs))

	s.Create(ThreadConfig{Name: "again", Prio: 2, Func: body, Arg: 2})
	settle(t, s)
	assert.Equal(t, 2, recvWithTimeout(t, runs))
}

func TestISRPreemptionIsDeferredToSafePoint(t *testing.T) {
	var stop atomic.Bool
	ran := make(chan Systime, 1)
	var s *System
	s = newTestSystem(t,
		ThreadConfig{Name: "high", Prio: 0, Func: func(any) {
			s.Sleep(5)
			ran <- s.GetSystemTime()
			stop.Store(true)
		}},
		ThreadConfig{Name: "busy", Prio: 6, Func: func(any) {
			for !stop.Load() {
				s.Lock()
				s.Unlock()
			}
		}},
	)
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return s.ThreadAt(0).State() == StateSleeping
	}, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	assert.Equal(t, Systime(5), recvWithTimeout(t, ran))
	settle(t, s)
	assert.Equal(t, StateFinal, s.ThreadAt(6).State())
}

func TestSelfAndPriority(t *testing.T) {
	got := make(chan int, 1)
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "me", Prio: 3, Func: func(any) {
		if s.Self() == s.ThreadAt(3) {
			got <- s.GetPriority()
		}
	}})
	startSystem(t, s)

	assert.Equal(t, 3, recvWithTimeout(t, got))
	assert.Equal(t, s.Idle(), s.Self())
}

func TestIdleCannotSleep(t *testing.T) {
	var reasons []string
	s, err := New(Config{
		Debug:    true,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		HaltHook: func(reason string) { reasons = append(reasons, reason) },
	})
	require.NoError(t, err)
	startSystem(t, s)

	assert.PanicsWithError(t, "kernel halted: idle cannot sleep", func() { s.Sleep(1) })
	assert.True(t, s.Halted())
	assert.Equal(t, "idle cannot sleep", s.HaltReason())
	assert.Equal(t, []string{"idle cannot sleep"}, reasons)

	select {
	case <-s.Done():
	default:
		t.Fatal("halt did not stop the system")
	}
}

func TestReadyTwiceHalts(t *testing.T) {
	var ref ThreadReference
	var s *System
	s = newTestSystem(t, ThreadConfig{Name: "waiter", Prio: 1, Func: func(any) {
		s.Lock()
		s.SuspendTimeoutS(&ref, TimeInfinite)
		s.Unlock()
	}})
	startSystem(t, s)

	th := ref.Thread()
	require.NotNil(t, th)
	assert.PanicsWithError(t, "kernel halted: already ready", func() {
		s.ISR(func() {
			s.ReadyI(th, MsgOK)
			s.ReadyI(th, MsgOK)
		})
	})
	assert.Equal(t, "already ready", s.HaltReason())
}

func TestPanicInThreadHalts(t *testing.T) {
	infos := make(chan PanicInfo, 1)
	s, err := New(Config{
		Debug:        true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		PanicHandler: func(info PanicInfo) { infos <- info },
		Threads: []ThreadConfig{{Name: "boom", Prio: 0, Func: func(any) {
			panic("boom")
		}}},
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	require.NoError(t, s.Start())

	info := recvWithTimeout(t, infos)
	assert.Equal(t, "boom", info.Thread)
	assert.Equal(t, "boom", info.Value)
	assert.NotEmpty(t, info.Stack)

	<-s.Done()
	assert.Equal(t, "panic in thread boom: boom", s.HaltReason())
}

func TestTimeHelpers(t *testing.T) {
	assert.Equal(t, Systime(2), TimeAdd(Systime(^uint32(0)), 3))
	assert.Equal(t, Interval(4), TimeDiff(Systime(^uint32(0)-1), 2))
	assert.True(t, TimeIsInRange(1, ^Systime(0), 3))
	assert.False(t, TimeIsInRange(5, 5, 5))
	assert.Equal(t, Interval(10), MS2I(10, 1000))
	assert.Equal(t, Interval(1), MS2I(1, 100))
	assert.Equal(t, "timeout", MsgTimeout.String())
	assert.Equal(t, "wtqueue", StateWTQueue.String())
}
