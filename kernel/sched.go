package kernel

// ReadyI makes t ready with msg as wakeup message. It does not reschedule.
func (s *System) ReadyI(t *Thread, msg Msg) *Thread {
	s.CheckClassI()
	if t == nil || t.sys != s || t == s.idle() {
		s.Halt("ReadyI")
	}
	s.Assert(t.state != StateReady, "already ready")
	s.Assert(s.next.prio <= s.current.prio, "priority ordering")

	t.msg = msg
	t.state = StateReady
	t.timeout = 0
	t.wait = nil
	if t.prio < s.next.prio {
		s.next = t
	}
	return t
}

// IsRescRequiredI reports whether a thread with higher priority than the
// current one is ready.
func (s *System) IsRescRequiredI() bool {
	return s.current != s.next
}

// RescheduleS switches to the highest priority ready thread if it is not
// the current one.
func (s *System) RescheduleS() {
	s.CheckClassS()
	if s.IsRescRequiredI() && s.canSwitch() {
		s.doPreemption()
	}
}

// GoSleepS puts the current thread in state until it is readied.
func (s *System) GoSleepS(state State) Msg {
	return s.GoSleepTimeoutS(state, TimeInfinite)
}

// GoSleepTimeoutS puts the current thread in state and switches to the
// highest priority ready thread. The thread is readied with MsgTimeout when
// timeout ticks elapse first. It returns the wakeup message.
func (s *System) GoSleepTimeoutS(state State, timeout Interval) Msg {
	s.CheckClassS()
	otp := s.current
	if otp == s.idle() {
		s.Halt("idle cannot sleep")
	}
	if t, known := s.self(); known && t != otp {
		s.Halt("SV#12")
	}

	otp.state = state
	otp.timeout = timeout
	ntp := s.firstReady()
	s.current, s.next = ntp, ntp
	s.switchTo(ntp, otp)
	return otp.msg
}

func (s *System) firstReady() *Thread {
	for i := range s.threads {
		if s.threads[i].state == StateReady {
			return &s.threads[i]
		}
	}
	// Idle is always ready.
	s.Halt("pointer out of range")
	return nil
}

func (s *System) doPreemption() {
	otp := s.current
	s.current = s.next
	s.switchTo(s.next, otp)
}

// switchTo hands the processor from otp to ntp, s.current is already ntp.
// The goroutine of otp parks until otp is selected again.
func (s *System) switchTo(ntp, otp *Thread) {
	if ntp == otp {
		return
	}
	if ntp != s.idle() {
		ntp.run <- struct{}{}
	}
	if otp == s.idle() {
		return
	}
	s.parkThread(otp)
}

// TimerHandlerI advances the system time and expires thread timeouts.
func (s *System) TimerHandlerI() {
	s.CheckClassI()
	s.systime++
	for i := 0; i < s.cfg.MaxThreads; i++ {
		t := &s.threads[i]
		if t.timeout == 0 {
			continue
		}
		s.Assert(t.state != StateReady, "is ready")
		t.timeout--
		if t.timeout != 0 {
			continue
		}
		switch w := t.wait.(type) {
		case waitQueue:
			// Undo the decrement done by EnqueueTimeoutS.
			w.q.unlinkI(t)
		case waitRef:
			w.ref.t = nil
		}
		s.ReadyI(t, MsgTimeout)
	}
}
