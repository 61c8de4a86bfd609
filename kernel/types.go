package kernel

import "strconv"

// Msg is the message delivered to a thread when it leaves a wait state.
type Msg int32

const (
	// MsgOK is the normal wakeup message.
	MsgOK Msg = 0
	// MsgTimeout is delivered when a wait expired.
	MsgTimeout Msg = -1
	// MsgReset is delivered when the waited object was reset.
	MsgReset Msg = -2
)

func (m Msg) String() string {
	switch m {
	case MsgOK:
		return "ok"
	case MsgTimeout:
		return "timeout"
	case MsgReset:
		return "reset"
	default:
		return "msg(" + strconv.Itoa(int(m)) + ")"
	}
}

// Systime is the free running system tick counter. It wraps.
type Systime uint32

// Interval is a number of system ticks.
type Interval uint32

const (
	// TimeInfinite waits forever.
	TimeInfinite Interval = 0
	// TimeImmediate never waits, the operation fails right away instead.
	TimeImmediate Interval = ^Interval(0)
)

// TimeAdd returns t+i with wrap-around.
func TimeAdd(t Systime, i Interval) Systime { return t + Systime(i) }

// TimeDiff returns the interval between start and end with wrap-around.
func TimeDiff(start, end Systime) Interval { return Interval(end - start) }

// TimeIsInRange reports whether t is within [start, end).
func TimeIsInRange(t, start, end Systime) bool {
	return t-start < end-start
}

// State is the scheduling state of a thread.
type State uint8

const (
	StateWTStart State = iota
	StateReady
	StateSleeping
	StateSuspended
	StateWTExit
	StateWTQueue
	StateWTOrEvt
	StateWTAndEvt
	StateSndMsgQ
	StateSndMsg
	StateWTMsg
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateWTStart:
		return "wtstart"
	case StateReady:
		return "ready"
	case StateSleeping:
		return "sleeping"
	case StateSuspended:
		return "suspended"
	case StateWTExit:
		return "wtexit"
	case StateWTQueue:
		return "wtqueue"
	case StateWTOrEvt:
		return "wtorevt"
	case StateWTAndEvt:
		return "wtandevt"
	case StateSndMsgQ:
		return "sndmsgq"
	case StateSndMsg:
		return "sndmsg"
	case StateWTMsg:
		return "wtmsg"
	case StateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// EventMask is a set of event flags pending or waited by a thread.
type EventMask uint32

// EventFlags are the source-specific flags carried by an event listener.
type EventFlags uint32

// AllEvents matches every event.
const AllEvents EventMask = ^EventMask(0)

// EventID is the index of an event flag inside an EventMask.
type EventID int

// EventMaskOf returns the mask with only the bit for id set.
func EventMaskOf(id EventID) EventMask { return EventMask(1) << uint(id) }
