package kernel

// HaltError is the panic value raised by Halt.
type HaltError struct {
	Reason string
}

func (e *HaltError) Error() string { return "kernel halted: " + e.Reason }

// PanicInfo contains details about a panic recovered in a thread.
type PanicInfo struct {
	Thread string
	Prio   int
	Value  any
	Stack  []byte
}

// Halt stops the system: the reason is recorded and logged, the halt hook
// runs, the thread goroutines are torn down and the caller panics with a
// *HaltError. Only the first reason is kept.
func (s *System) Halt(reason string) {
	panic(s.halt(reason))
}

func (s *System) halt(reason string) *HaltError {
	he := &HaltError{Reason: reason}
	if !s.halted.CompareAndSwap(nil, he) {
		return s.halted.Load()
	}
	s.log.Error("system halted", "reason", reason)
	if s.cfg.HaltHook != nil {
		s.cfg.HaltHook(reason)
	}
	s.Stop()
	return he
}

// Halted reports whether the system halted.
func (s *System) Halted() bool { return s.halted.Load() != nil }

// HaltReason returns the reason passed to the first Halt, or "".
func (s *System) HaltReason() string {
	if he := s.halted.Load(); he != nil {
		return he.Reason
	}
	return ""
}
