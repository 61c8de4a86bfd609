package kernel

// EventListener links a thread to an EventSource.
type EventListener struct {
	next     *EventListener
	listener *Thread
	events   EventMask
	flags    EventFlags
	wflags   EventFlags
}

// Listener returns the registered thread.
func (elp *EventListener) Listener() *Thread { return elp.listener }

// EventSource is a list of listeners to be signaled together.
type EventSource struct {
	sys  *System
	next *EventListener
}

// Init binds esp to sys.
func (esp *EventSource) Init(sys *System) {
	esp.sys = sys
	esp.next = nil
}

// NewEventSource returns an event source of sys.
func NewEventSource(sys *System) *EventSource {
	esp := &EventSource{}
	esp.Init(sys)
	return esp
}

// RegisterMaskWithFlags registers the calling thread on esp. The thread is
// signaled with events when flags matching wflags are broadcast.
func (esp *EventSource) RegisterMaskWithFlags(elp *EventListener, events EventMask, wflags EventFlags) {
	s := esp.sys
	s.Lock()
	elp.next = esp.next
	esp.next = elp
	elp.listener = s.Self()
	elp.events = events
	elp.flags = 0
	elp.wflags = wflags
	s.Unlock()
}

// RegisterMask registers the calling thread on esp for any flag.
func (esp *EventSource) RegisterMask(elp *EventListener, events EventMask) {
	esp.RegisterMaskWithFlags(elp, events, EventFlags(AllEvents))
}

// Register registers the calling thread on esp using the event id.
func (esp *EventSource) Register(elp *EventListener, id EventID) {
	esp.RegisterMask(elp, EventMaskOf(id))
}

// Unregister removes elp from esp.
func (esp *EventSource) Unregister(elp *EventListener) {
	s := esp.sys
	s.Lock()
	for p := &esp.next; *p != nil; p = &(*p).next {
		if *p == elp {
			*p = elp.next
			break
		}
	}
	s.Unlock()
}

// IsListeningI reports whether any listener is registered.
func (esp *EventSource) IsListeningI() bool {
	return esp.next != nil
}

// BroadcastFlagsI adds flags to every listener and signals those whose
// wflags match. A zero flags value signals all listeners.
func (esp *EventSource) BroadcastFlagsI(flags EventFlags) {
	s := esp.sys
	s.CheckClassI()
	for elp := esp.next; elp != nil; elp = elp.next {
		elp.flags |= flags
		if flags == 0 || flags&elp.wflags != 0 {
			s.SignalEventsI(elp.listener, elp.events)
		}
	}
}

// BroadcastFlags is BroadcastFlagsI from thread context.
func (esp *EventSource) BroadcastFlags(flags EventFlags) {
	s := esp.sys
	s.Lock()
	esp.BroadcastFlagsI(flags)
	s.RescheduleS()
	s.Unlock()
}

// BroadcastI signals all listeners without flags.
func (esp *EventSource) BroadcastI() { esp.BroadcastFlagsI(0) }

// Broadcast signals all listeners without flags.
func (esp *EventSource) Broadcast() { esp.BroadcastFlags(0) }

// GetAndClearFlagsI returns and clears the flags of elp, masked by the
// flags it waits for.
func (elp *EventListener) GetAndClearFlagsI() EventFlags {
	flags := elp.flags
	elp.flags = 0
	return flags & elp.wflags
}

// GetAndClearFlags is GetAndClearFlagsI from thread context.
func (s *System) GetAndClearFlags(elp *EventListener) EventFlags {
	s.Lock()
	flags := elp.GetAndClearFlagsI()
	s.Unlock()
	return flags
}

// SignalEventsI adds events to the pending mask of t, waking it when its
// wait condition is met.
func (s *System) SignalEventsI(t *Thread, events EventMask) {
	s.CheckClassI()
	t.epmask |= events
	w, ok := t.wait.(waitEvents)
	if !ok {
		return
	}
	if (t.state == StateWTOrEvt && t.epmask&w.mask != 0) ||
		(t.state == StateWTAndEvt && t.epmask&w.mask == w.mask) {
		s.ReadyI(t, MsgOK)
	}
}

// SignalEvents is SignalEventsI from thread context.
func (s *System) SignalEvents(t *Thread, events EventMask) {
	s.Lock()
	s.SignalEventsI(t, events)
	s.RescheduleS()
	s.Unlock()
}

// AddEventsI adds events to the calling thread and returns the new mask.
func (s *System) AddEventsI(events EventMask) EventMask {
	ctp := s.Self()
	ctp.epmask |= events
	return ctp.epmask
}

// AddEvents adds events to the calling thread and returns the new mask.
func (s *System) AddEvents(events EventMask) EventMask {
	s.Lock()
	m := s.AddEventsI(events)
	s.Unlock()
	return m
}

// GetAndClearEventsI returns and clears the pending events in mask.
func (s *System) GetAndClearEventsI(events EventMask) EventMask {
	ctp := s.Self()
	m := ctp.epmask & events
	ctp.epmask &^= events
	return m
}

// GetAndClearEvents returns and clears the pending events in mask.
func (s *System) GetAndClearEvents(events EventMask) EventMask {
	s.Lock()
	m := s.GetAndClearEventsI(events)
	s.Unlock()
	return m
}

// Dispatch calls the handler of every event id set in events, lowest
// first.
func (s *System) Dispatch(handlers []func(EventID), events EventMask) {
	for id := EventID(0); events != 0; id++ {
		if events&EventMaskOf(id) == 0 {
			continue
		}
		if int(id) >= len(handlers) || handlers[id] == nil {
			s.Halt("null handler")
		}
		events &^= EventMaskOf(id)
		handlers[id](id)
	}
}

// WaitOne waits for one of the events in mask and returns the lowest one.
func (s *System) WaitOne(events EventMask) EventMask {
	return s.WaitOneTimeout(events, TimeInfinite)
}

// WaitOneTimeout is WaitOne with a timeout, it returns 0 on timeout.
func (s *System) WaitOneTimeout(events EventMask, timeout Interval) EventMask {
	s.Lock()
	m := s.waitEventsS(StateWTOrEvt, events, timeout)
	m &= -m
	s.current.epmask &^= m
	s.Unlock()
	return m
}

// WaitAny waits for any of the events in mask and returns those pending.
func (s *System) WaitAny(events EventMask) EventMask {
	return s.WaitAnyTimeout(events, TimeInfinite)
}

// WaitAnyTimeout is WaitAny with a timeout, it returns 0 on timeout.
func (s *System) WaitAnyTimeout(events EventMask, timeout Interval) EventMask {
	s.Lock()
	m := s.waitEventsS(StateWTOrEvt, events, timeout)
	s.current.epmask &^= m
	s.Unlock()
	return m
}

// WaitAll waits for all the events in mask.
func (s *System) WaitAll(events EventMask) EventMask {
	return s.WaitAllTimeout(events, TimeInfinite)
}

// WaitAllTimeout is WaitAll with a timeout, it returns 0 on timeout.
func (s *System) WaitAllTimeout(events EventMask, timeout Interval) EventMask {
	s.Lock()
	m := s.waitEventsS(StateWTAndEvt, events, timeout)
	if m != 0 {
		m = events
		s.current.epmask &^= m
	}
	s.Unlock()
	return m
}

// waitEventsS sleeps in state until the pending events of the calling
// thread satisfy mask. It returns the pending events in mask, 0 on timeout.
func (s *System) waitEventsS(state State, mask EventMask, timeout Interval) EventMask {
	ctp := s.current
	satisfied := func() bool {
		if state == StateWTAndEvt {
			return ctp.epmask&mask == mask
		}
		return ctp.epmask&mask != 0
	}
	if !satisfied() {
		if timeout == TimeImmediate {
			return 0
		}
		ctp.wait = waitEvents{mask}
		if s.GoSleepTimeoutS(state, timeout) < MsgOK {
			return 0
		}
	}
	return ctp.epmask & mask
}
