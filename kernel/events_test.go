package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitAnyWokenByISR(t *testing.T) {
	var s *System
	got := make(chan EventMask, 1)
	s = newTestSystem(t, ThreadConfig{Name: "evt", Prio: 2, Func: func(any) {
		got <- s.WaitAny(EventMaskOf(1) | EventMaskOf(3))
	}})
	startSystem(t, s)
	th := s.ThreadAt(2)
	require.Equal(t, StateWTOrEvt, th.State())

	s.ISR(func() { s.SignalEventsI(th, EventMaskOf(0)) })
	settle(t, s)
	require.Equal(t, StateWTOrEvt, th.State())

	s.ISR(func() { s.SignalEventsI(th, EventMaskOf(3)) })
	settle(t, s)
	assert.Equal(t, EventMaskOf(3), recvWithTimeout(t, got))
}

func TestWaitOneReturnsLowestPending(t *testing.T) {
	var s *System
	got := make(chan EventMask, 3)
	s = newTestSystem(t, ThreadConfig{Name: "evt", Prio: 0, Func: func(any) {
		s.AddEvents(EventMaskOf(2) | EventMaskOf(5))
		got <- s.WaitOne(AllEvents)
		got <- s.WaitOne(AllEvents)
		got <- s.GetAndClearEvents(AllEvents)
	}})
	startSystem(t, s)

	assert.Equal(t, EventMaskOf(2), recvWithTimeout(t, got))
	assert.Equal(t, EventMaskOf(5), recvWithTimeout(t, got))
	assert.Equal(t, EventMask(0), recvWithTimeout(t, got))
}

func TestWaitAllNeedsEveryEvent(t *testing.T) {
	var s *System
	got := make(chan EventMask, 1)
	want := EventMaskOf(0) | EventMaskOf(1)
	s = newTestSystem(t, ThreadConfig{Name: "evt", Prio: 1, Func: func(any) {
		got <- s.WaitAll(want)
	}})
	startSystem(t, s)
	th := s.ThreadAt(1)

	s.ISR(func() { s.SignalEventsI(th, EventMaskOf(1)) })
	settle(t, s)
	require.Equal(t, StateWTAndEvt, th.State())

	s.ISR(func() { s.SignalEventsI(th, EventMaskOf(0)) })
	settle(t, s)
	assert.Equal(t, want, recvWithTimeout(t, got))
}

func TestWaitAnyTimeout(t *testing.T) {
	var s *System
	got := make(chan EventMask, 2)
	s = newTestSystem(t, ThreadConfig{Name: "evt", Prio: 1, Func: func(any) {
		got <- s.WaitAnyTimeout(AllEvents, TimeImmediate)
		got <- s.WaitAnyTimeout(AllEvents, 3)
	}})
	startSystem(t, s)

	assert.Equal(t, EventMask(0), recvWithTimeout(t, got))
	tick(t, s, 3)
	assert.Equal(t, EventMask(0), recvWithTimeout(t, got))
}

func TestEventSourceBroadcastFlags(t *testing.T) {
	var s *System
	var esp EventSource
	type result struct {
		events EventMask
		flags  EventFlags
	}
	got := make(chan result, 2)
	ready := make(chan struct{}, 2)
	listener := func(id EventID, wflags EventFlags) func(any) {
		return func(any) {
			var el EventListener
			esp.RegisterMaskWithFlags(&el, EventMaskOf(id), wflags)
			ready <- struct{}{}
			m := s.WaitAny(AllEvents)
			got <- result{m, s.GetAndClearFlags(&el)}
			esp.Unregister(&el)
		}
	}
	s = newTestSystem(t,
		ThreadConfig{Name: "l1", Prio: 1, Func: listener(4, 0x01)},
		ThreadConfig{Name: "l2", Prio: 2, Func: listener(6, 0x02)},
	)
	esp.Init(s)
	startSystem(t, s)
	recvWithTimeout(t, ready)
	recvWithTimeout(t, ready)

	s.Lock()
	listening := esp.IsListeningI()
	s.Unlock()
	require.True(t, listening)

	s.ISR(func() { esp.BroadcastFlagsI(0x01) })
	settle(t, s)
	assert.Equal(t, result{EventMaskOf(4), 0x01}, recvWithTimeout(t, got))
	requireEmpty(t, got)

	esp.Broadcast()
	settle(t, s)
	assert.Equal(t, result{EventMaskOf(6), 0}, recvWithTimeout(t, got))

	s.Lock()
	listening = esp.IsListeningI()
	s.Unlock()
	assert.False(t, listening)
}

func TestDispatchCallsHandlersInOrder(t *testing.T) {
	s := newTestSystem(t)
	var called []EventID
	h := func(id EventID) { called = append(called, id) }

	s.Dispatch([]func(EventID){h, nil, h, h}, EventMaskOf(3)|EventMaskOf(0))
	assert.Equal(t, []EventID{0, 3}, called)

	assert.PanicsWithError(t, "kernel halted: null handler", func() {
		s.Dispatch([]func(EventID){h, nil}, EventMaskOf(1))
	})
}
