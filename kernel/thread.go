package kernel

import (
	"fmt"
	"runtime"
)

// Thread is a thread slot. Slots are allocated once by New; the priority of
// a thread is the index of its slot.
type Thread struct {
	sys  *System
	prio int
	name string

	state   State
	msg     Msg
	wait    waitObject
	timeout Interval
	epmask  EventMask
	payload any

	fn  func(arg any)
	arg any
	run chan struct{}
}

// waitObject is the object a blocked thread waits on. The concrete type
// depends on the thread state.
type waitObject interface{ waitOn() }

// waitQueue is used in StateWTQueue.
type waitQueue struct{ q *ThreadsQueue }

// waitThread is used in StateWTExit (thread being waited) and in
// StateSndMsgQ/StateSndMsg (receiver).
type waitThread struct{ t *Thread }

// waitRef is used in StateSuspended.
type waitRef struct{ ref *ThreadReference }

// waitEvents is used in StateWTOrEvt and StateWTAndEvt.
type waitEvents struct{ mask EventMask }

func (waitQueue) waitOn()  {}
func (waitThread) waitOn() {}
func (waitRef) waitOn()    {}
func (waitEvents) waitOn() {}

// ThreadReference holds a thread suspended by SuspendTimeoutS.
type ThreadReference struct {
	t *Thread
}

// Thread returns the suspended thread or nil.
func (r *ThreadReference) Thread() *Thread { return r.t }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Prio returns the thread priority, that is the index of its slot.
func (t *Thread) Prio() int { return t.prio }

// System returns the system owning the thread.
func (t *Thread) System() *System { return t.sys }

// State returns the thread state. It must not be called with the kernel
// lock held.
func (t *Thread) State() State {
	t.sys.mu.Lock()
	defer t.sys.mu.Unlock()
	return t.state
}

// StateI returns the thread state, the kernel lock must be held.
func (t *Thread) StateI() State { return t.state }

// ExitCode returns the exit message of a thread in StateFinal. It must not
// be called with the kernel lock held.
func (t *Thread) ExitCode() (Msg, bool) {
	t.sys.mu.Lock()
	defer t.sys.mu.Unlock()
	if t.state != StateFinal {
		return 0, false
	}
	return t.msg, true
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s(%d)", t.name, t.prio)
}

// ThreadAt returns the thread slot at priority prio, idle included.
func (s *System) ThreadAt(prio int) *Thread {
	if prio < 0 || prio >= len(s.threads) {
		return nil
	}
	return &s.threads[prio]
}

// Idle returns the idle thread.
func (s *System) Idle() *Thread { return s.idle() }

// Self returns the calling thread. Outside of threads it returns the idle
// thread.
func (s *System) Self() *Thread {
	t, known := s.self()
	if !known {
		return s.current
	}
	if t == nil {
		return s.idle()
	}
	return t
}

// GetPriority returns the priority of the calling thread.
func (s *System) GetPriority() int { return s.Self().prio }

// CreateI creates a thread in the slot selected by tc.Prio and makes it
// ready. The slot must be unused or hold a terminated thread.
func (s *System) CreateI(tc ThreadConfig) *Thread {
	s.CheckClassI()
	if err := checkThreadConfig(tc, s.cfg.MaxThreads); err != nil {
		s.Halt(err.Error())
	}
	t := &s.threads[tc.Prio]
	if t.state != StateWTStart && t.state != StateFinal {
		s.Halt("priority slot taken")
	}
	t.name = tc.Name
	if t.name == "" {
		t.name = fmt.Sprintf("thd%d", tc.Prio)
	}
	t.fn, t.arg = tc.Func, tc.Arg
	t.epmask = 0
	t.payload = nil
	t.wait = nil
	// A terminated thread is not ready, ReadyI accepts it.
	t.state = StateWTStart
	s.spawn(t)
	s.log.Debug("thread created", "thread", t.name, "prio", t.prio)
	return s.ReadyI(t, MsgOK)
}

// Create creates a thread and reschedules.
func (s *System) Create(tc ThreadConfig) *Thread {
	s.Lock()
	t := s.CreateI(tc)
	s.RescheduleS()
	s.Unlock()
	return t
}

func (s *System) spawn(t *Thread) {
	run := make(chan struct{}, 1)
	t.run = run
	fn, arg := t.fn, t.arg
	go bindThread(t, func() {
		select {
		case <-run:
		case <-s.done:
			return
		}
		defer s.recoverThread(t)
		fn(arg)
		s.Exit(MsgOK)
	})
}

// recoverThread turns a panic escaping a thread into a system halt.
func (s *System) recoverThread(t *Thread) {
	r := recover()
	if r == nil {
		return
	}
	if s.owner.Load() == t {
		s.release()
	}
	if _, ok := r.(*HaltError); ok {
		return
	}
	info := PanicInfo{Thread: t.name, Prio: t.prio, Value: r, Stack: captureStack()}
	if s.cfg.PanicHandler != nil {
		s.cfg.PanicHandler(info)
	}
	s.halt(fmt.Sprintf("panic in thread %s: %v", t.name, r))
}

// Exit terminates the calling thread with msg as exit code, waking the
// threads waiting for it.
func (s *System) Exit(msg Msg) {
	s.Lock()
	ctp := s.current
	for i := 0; i < s.cfg.MaxThreads; i++ {
		t := &s.threads[i]
		if w, ok := t.wait.(waitThread); ok && t.state == StateWTExit && w.t == ctp {
			s.ReadyI(t, msg)
		}
	}
	ctp.msg = msg
	s.log.Debug("thread exit", "thread", ctp.name, "msg", msg)
	s.GoSleepTimeoutS(StateFinal, TimeInfinite)
	s.Halt("zombies apocalypse")
}

// Wait blocks until t terminates and returns its exit code.
func (s *System) Wait(t *Thread) Msg {
	s.Lock()
	var msg Msg
	if t.state == StateFinal {
		msg = t.msg
	} else {
		s.current.wait = waitThread{t}
		msg = s.GoSleepTimeoutS(StateWTExit, TimeInfinite)
	}
	s.Unlock()
	return msg
}

// SleepS suspends the calling thread for timeout ticks.
func (s *System) SleepS(timeout Interval) {
	s.GoSleepTimeoutS(StateSleeping, timeout)
}

// Sleep suspends the calling thread for timeout ticks.
func (s *System) Sleep(timeout Interval) {
	s.Lock()
	s.SleepS(timeout)
	s.Unlock()
}

// SleepMilliseconds suspends the calling thread for at least ms milliseconds.
func (s *System) SleepMilliseconds(ms uint32) {
	s.Sleep(s.MS2I(ms))
}

// SleepUntilS suspends the calling thread until the system time reaches abs.
// It returns immediately when abs is the current time.
func (s *System) SleepUntilS(abs Systime) {
	if d := TimeDiff(s.systime, abs); d != 0 {
		s.SleepS(d)
	}
}

// SleepUntil suspends the calling thread until the system time reaches abs.
func (s *System) SleepUntil(abs Systime) {
	s.Lock()
	s.SleepUntilS(abs)
	s.Unlock()
}

// SuspendTimeoutS suspends the calling thread on ref until ResumeI or a
// timeout.
func (s *System) SuspendTimeoutS(ref *ThreadReference, timeout Interval) Msg {
	s.Assert(ref.t == nil, "not NULL")
	if timeout == TimeImmediate {
		return MsgTimeout
	}
	ref.t = s.current
	s.current.wait = waitRef{ref}
	return s.GoSleepTimeoutS(StateSuspended, timeout)
}

// ResumeI wakes the thread suspended on ref, if any, with msg.
func (s *System) ResumeI(ref *ThreadReference, msg Msg) {
	if ref.t == nil {
		return
	}
	t := ref.t
	s.Assert(t.state == StateSuspended, "not suspended")
	ref.t = nil
	s.ReadyI(t, msg)
}

// ResumeS wakes the thread suspended on ref and reschedules.
func (s *System) ResumeS(ref *ThreadReference, msg Msg) {
	s.ResumeI(ref, msg)
	s.RescheduleS()
}

// Resume wakes the thread suspended on ref.
func (s *System) Resume(ref *ThreadReference, msg Msg) {
	s.Lock()
	s.ResumeS(ref, msg)
	s.Unlock()
}

// GetSystemTimeX returns the system time, the kernel lock must be held.
func (s *System) GetSystemTimeX() Systime { return s.systime }

// GetSystemTime returns the system time.
func (s *System) GetSystemTime() Systime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systime
}

// MS2I converts milliseconds to ticks, rounding up.
func (s *System) MS2I(ms uint32) Interval {
	return MS2I(ms, s.cfg.Frequency)
}

// MS2I converts milliseconds to ticks at freq Hz, rounding up.
func MS2I(ms uint32, freq uint32) Interval {
	return Interval((uint64(ms)*uint64(freq) + 999) / 1000)
}

// parkThread blocks the goroutine of t until it is selected again. The
// kernel lock is released while parked and held again on return.
func (s *System) parkThread(t *Thread) {
	run := t.run
	if t.state == StateFinal {
		s.release()
		runtime.Goexit()
	}
	s.release()
	select {
	case <-run:
	case <-s.done:
		runtime.Goexit()
	}
	s.acquire(t)
}
