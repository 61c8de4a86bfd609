package kernel

// MsgSend sends payload to t and blocks until t releases the message. It
// returns the reply passed to MsgRelease.
func (s *System) MsgSend(t *Thread, payload any) Msg {
	s.Lock()
	ctp := s.current
	ctp.payload = payload
	ctp.wait = waitThread{t}
	if t.state == StateWTMsg {
		s.ReadyI(t, MsgOK)
	}
	msg := s.GoSleepTimeoutS(StateSndMsgQ, TimeInfinite)
	s.Unlock()
	return msg
}

// MsgWait waits for a message and returns the sender. The sender stays
// blocked until MsgRelease.
func (s *System) MsgWait() *Thread {
	return s.MsgWaitTimeout(TimeInfinite)
}

// MsgWaitTimeout is MsgWait with a timeout, it returns nil on timeout.
func (s *System) MsgWaitTimeout(timeout Interval) *Thread {
	s.Lock()
	t := s.MsgWaitTimeoutS(timeout)
	s.Unlock()
	return t
}

// MsgWaitTimeoutS is MsgWaitTimeout with the kernel lock already held.
func (s *System) MsgWaitTimeoutS(timeout Interval) *Thread {
	s.CheckClassS()
	for {
		if t := s.MsgPollS(); t != nil {
			return t
		}
		if timeout == TimeImmediate {
			return nil
		}
		if s.GoSleepTimeoutS(StateWTMsg, timeout) < MsgOK {
			return nil
		}
	}
}

// MsgPollS returns the highest priority thread sending to the calling
// thread, nil if none. The sender is moved to StateSndMsg.
func (s *System) MsgPollS() *Thread {
	ctp := s.current
	for i := 0; i < s.cfg.MaxThreads; i++ {
		t := &s.threads[i]
		if w, ok := t.wait.(waitThread); ok && t.state == StateSndMsgQ && w.t == ctp {
			t.state = StateSndMsg
			return t
		}
	}
	return nil
}

// MsgPoll is MsgPollS from thread context.
func (s *System) MsgPoll() *Thread {
	s.Lock()
	t := s.MsgPollS()
	s.Unlock()
	return t
}

// MsgGet returns the payload sent by t. The message must have been taken
// with MsgWait or MsgPoll and not yet released.
func (s *System) MsgGet(t *Thread) any {
	return t.payload
}

// MsgReleaseS wakes the sender t with reply.
func (s *System) MsgReleaseS(t *Thread, reply Msg) {
	s.CheckClassS()
	s.Assert(t.state == StateSndMsg, "invalid state")
	t.payload = nil
	s.ReadyI(t, reply)
	s.RescheduleS()
}

// MsgRelease wakes the sender t with reply.
func (s *System) MsgRelease(t *Thread, reply Msg) {
	s.Lock()
	s.MsgReleaseS(t, reply)
	s.Unlock()
}
