// Package delegate runs functions on a dispatcher thread on behalf of
// other threads.
//
// The caller blocks on a synchronous message until the dispatcher has run
// the function, the function result becomes the message reply.
package delegate

import "chibi/kernel"

// Func is a delegated function.
type Func func() kernel.Msg

// Call runs fn on the dispatcher thread dt and returns its result.
func Call(s *kernel.System, dt *kernel.Thread, fn Func) kernel.Msg {
	return s.MsgSend(dt, fn)
}

// CallValue runs fn on dt and returns the value it computed.
func CallValue[T any](s *kernel.System, dt *kernel.Thread, fn func() T) T {
	var v T
	Call(s, dt, func() kernel.Msg {
		v = fn()
		return kernel.MsgOK
	})
	return v
}

// DispatchTimeout waits up to timeout for one call and runs it. It returns
// MsgTimeout when no call arrived.
func DispatchTimeout(s *kernel.System, timeout kernel.Interval) kernel.Msg {
	tp := s.MsgWaitTimeout(timeout)
	if tp == nil {
		return kernel.MsgTimeout
	}
	fn, ok := s.MsgGet(tp).(Func)
	s.Assert(ok, "delegate: not a delegate call")
	msg := fn()
	s.MsgRelease(tp, msg)
	return kernel.MsgOK
}

// DispatchOnce waits for one call and runs it.
func DispatchOnce(s *kernel.System) {
	DispatchTimeout(s, kernel.TimeInfinite)
}

// Dispatch serves calls forever, it is meant as a thread body.
func Dispatch(s *kernel.System) {
	for {
		DispatchOnce(s)
	}
}
