package kernel

// Semaphore is a counting semaphore. Waiters are woken in FIFO order.
type Semaphore struct {
	ThreadsQueue
}

// NewSemaphore returns a semaphore of sys with counter n.
func NewSemaphore(sys *System, n int32) *Semaphore {
	sp := &Semaphore{}
	sp.Init(sys, n)
	return sp
}

// Init binds sp to sys with counter n, n must not be negative.
func (sp *Semaphore) Init(sys *System, n int32) {
	sp.ThreadsQueue.Init(sys, n)
	sys.Assert(n >= 0, "Semaphore.Init")
}

// Wait decrements the counter, blocking while it is not positive.
func (sp *Semaphore) Wait() Msg {
	return sp.WaitTimeout(TimeInfinite)
}

// WaitS is Wait with the kernel lock already held.
func (sp *Semaphore) WaitS() Msg {
	return sp.WaitTimeoutS(TimeInfinite)
}

// WaitTimeout is Wait with a timeout.
func (sp *Semaphore) WaitTimeout(timeout Interval) Msg {
	s := sp.sys
	s.Lock()
	msg := sp.WaitTimeoutS(timeout)
	s.Unlock()
	return msg
}

// WaitTimeoutS is WaitTimeout with the kernel lock already held. It returns
// MsgOK, MsgReset when the semaphore was reset, or MsgTimeout.
func (sp *Semaphore) WaitTimeoutS(timeout Interval) Msg {
	s := sp.sys
	s.CheckClassS()
	if sp.cnt > 0 {
		sp.cnt--
		return MsgOK
	}
	if timeout == TimeImmediate {
		return MsgTimeout
	}
	return sp.enqueueS(timeout)
}

// Signal increments the counter, waking the oldest waiter if any.
func (sp *Semaphore) Signal() {
	s := sp.sys
	s.Lock()
	sp.SignalI()
	s.RescheduleS()
	s.Unlock()
}

// SignalI is Signal from I-class context, it does not reschedule.
func (sp *Semaphore) SignalI() {
	sp.sys.CheckClassI()
	if sp.cnt < 0 {
		sp.dequeueNextI(MsgOK)
		return
	}
	sp.cnt++
}

// Reset wakes all the waiters with MsgReset and sets the counter to n.
func (sp *Semaphore) Reset(n int32) {
	s := sp.sys
	s.Lock()
	sp.ResetI(n)
	s.RescheduleS()
	s.Unlock()
}

// ResetI is Reset from I-class context.
func (sp *Semaphore) ResetI(n int32) {
	s := sp.sys
	s.CheckClassI()
	s.Assert(n >= 0, "Semaphore.ResetI")
	sp.DequeueAllI(MsgReset)
	sp.cnt = n
}

// FastWaitI decrements the counter, the caller knows it is positive.
func (sp *Semaphore) FastWaitI() {
	sp.sys.CheckClassI()
	sp.cnt--
}

// FastSignalI increments the counter, the caller knows there are no
// waiters.
func (sp *Semaphore) FastSignalI() {
	sp.sys.CheckClassI()
	sp.cnt++
}

// GetCounterI returns the counter.
func (sp *Semaphore) GetCounterI() int32 {
	sp.sys.CheckClassI()
	return sp.cnt
}

// Counter returns the counter. It must not be called with the kernel lock
// held.
func (sp *Semaphore) Counter() int32 {
	sp.sys.mu.Lock()
	defer sp.sys.mu.Unlock()
	return sp.cnt
}

// AddCounterI adds n to the counter, waking up to n waiters.
func (sp *Semaphore) AddCounterI(n int32) {
	sp.sys.CheckClassI()
	sp.sys.Assert(n > 0, "Semaphore.AddCounterI")
	for ; n > 0; n-- {
		if sp.cnt < 0 {
			sp.dequeueNextI(MsgOK)
		} else {
			sp.cnt++
		}
	}
}
