package kernel

// BinarySemaphore is a semaphore whose counter never exceeds 1.
type BinarySemaphore struct {
	sem Semaphore
}

// NewBinarySemaphore returns a binary semaphore of sys.
func NewBinarySemaphore(sys *System, taken bool) *BinarySemaphore {
	bsp := &BinarySemaphore{}
	bsp.Init(sys, taken)
	return bsp
}

// Init binds bsp to sys in the taken or free state.
func (bsp *BinarySemaphore) Init(sys *System, taken bool) {
	n := int32(1)
	if taken {
		n = 0
	}
	bsp.sem.Init(sys, n)
}

// Wait takes the semaphore, waiting while it is taken. It returns MsgOK,
// or MsgReset when the semaphore was reset.
func (bsp *BinarySemaphore) Wait() Msg { return bsp.sem.Wait() }

// WaitS is Wait with the kernel lock held.
func (bsp *BinarySemaphore) WaitS() Msg { return bsp.sem.WaitS() }

// WaitTimeout takes the semaphore, waiting up to timeout. MsgTimeout is
// returned when it stays taken.
func (bsp *BinarySemaphore) WaitTimeout(timeout Interval) Msg {
	return bsp.sem.WaitTimeout(timeout)
}

// WaitTimeoutS is WaitTimeout with the kernel lock held.
func (bsp *BinarySemaphore) WaitTimeoutS(timeout Interval) Msg {
	return bsp.sem.WaitTimeoutS(timeout)
}

// Signal releases the semaphore. Signaling a free semaphore does nothing.
func (bsp *BinarySemaphore) Signal() {
	s := bsp.sem.sys
	s.Lock()
	bsp.SignalI()
	s.RescheduleS()
	s.Unlock()
}

// SignalI is Signal from I-class context.
func (bsp *BinarySemaphore) SignalI() {
	bsp.sem.sys.CheckClassI()
	if bsp.sem.cnt < 1 {
		bsp.sem.SignalI()
	}
}

// Reset wakes all the waiters with MsgReset and sets the state.
func (bsp *BinarySemaphore) Reset(taken bool) {
	s := bsp.sem.sys
	s.Lock()
	bsp.ResetI(taken)
	s.RescheduleS()
	s.Unlock()
}

// ResetI is Reset from I-class context.
func (bsp *BinarySemaphore) ResetI(taken bool) {
	n := int32(1)
	if taken {
		n = 0
	}
	bsp.sem.ResetI(n)
}

// GetStateI reports whether the semaphore is taken.
func (bsp *BinarySemaphore) GetStateI() bool {
	bsp.sem.sys.CheckClassI()
	return bsp.sem.cnt <= 0
}

// Counter returns the underlying counter. It must not be called with the
// kernel lock held.
func (bsp *BinarySemaphore) Counter() int32 { return bsp.sem.Counter() }
