// Package mailbox implements bounded message queues. Posting blocks while
// the mailbox is full and fetching blocks while it is empty.
package mailbox

import (
	"chibi/kernel"
)

// Mailbox is a ring buffer of messages of type T. Writers and readers
// waiting on it are served in FIFO order.
type Mailbox[T any] struct {
	sys   *kernel.System
	buf   []T
	wr    int
	rd    int
	cnt   int
	reset bool
	qw    kernel.ThreadsQueue
	qr    kernel.ThreadsQueue
}

// New returns a mailbox using buf as message storage.
func New[T any](sys *kernel.System, buf []T) *Mailbox[T] {
	mb := &Mailbox[T]{}
	mb.Init(sys, buf)
	return mb
}

// Init initializes mb with buf as message storage.
func (mb *Mailbox[T]) Init(sys *kernel.System, buf []T) {
	sys.Assert(len(buf) > 0, "Mailbox.Init")
	mb.sys = sys
	mb.buf = buf
	mb.wr, mb.rd, mb.cnt = 0, 0, 0
	mb.reset = false
	mb.qw.Init(sys, 0)
	mb.qr.Init(sys, 0)
}

// Reset empties the mailbox and wakes all the waiting threads with
// kernel.MsgReset. The mailbox refuses operations until Resume.
func (mb *Mailbox[T]) Reset() {
	mb.sys.Lock()
	mb.ResetI()
	mb.sys.RescheduleS()
	mb.sys.Unlock()
}

// ResetI is Reset without rescheduling.
func (mb *Mailbox[T]) ResetI() {
	mb.sys.CheckClassI()
	var zero T
	for i := range mb.buf {
		mb.buf[i] = zero
	}
	mb.wr, mb.rd, mb.cnt = 0, 0, 0
	mb.reset = true
	mb.qw.DequeueAllI(kernel.MsgReset)
	mb.qr.DequeueAllI(kernel.MsgReset)
}

// Resume leaves the reset state.
func (mb *Mailbox[T]) Resume() {
	mb.sys.Lock()
	mb.reset = false
	mb.sys.Unlock()
}

// GetSizeI returns the capacity of the mailbox.
func (mb *Mailbox[T]) GetSizeI() int { return len(mb.buf) }

// GetUsedCountI returns the number of queued messages.
func (mb *Mailbox[T]) GetUsedCountI() int {
	mb.sys.CheckClassI()
	return mb.cnt
}

// GetFreeCountI returns the number of free slots.
func (mb *Mailbox[T]) GetFreeCountI() int {
	mb.sys.CheckClassI()
	return len(mb.buf) - mb.cnt
}

// UsedCount returns the number of queued messages.
func (mb *Mailbox[T]) UsedCount() int {
	mb.sys.Lock()
	n := mb.GetUsedCountI()
	mb.sys.Unlock()
	return n
}

// PeekI returns the next message without removing it. The mailbox must
// not be empty.
func (mb *Mailbox[T]) PeekI() T {
	mb.sys.CheckClassI()
	mb.sys.Assert(mb.cnt > 0, "mailbox empty")
	return mb.buf[mb.rd]
}

func (mb *Mailbox[T]) put(msg T) {
	mb.buf[mb.wr] = msg
	mb.wr++
	if mb.wr == len(mb.buf) {
		mb.wr = 0
	}
	mb.cnt++
	mb.qr.DequeueNextI(kernel.MsgOK)
}

func (mb *Mailbox[T]) putAhead(msg T) {
	mb.rd--
	if mb.rd < 0 {
		mb.rd = len(mb.buf) - 1
	}
	mb.buf[mb.rd] = msg
	mb.cnt++
	mb.qr.DequeueNextI(kernel.MsgOK)
}

func (mb *Mailbox[T]) get() T {
	var zero T
	msg := mb.buf[mb.rd]
	mb.buf[mb.rd] = zero
	mb.rd++
	if mb.rd == len(mb.buf) {
		mb.rd = 0
	}
	mb.cnt--
	mb.qw.DequeueNextI(kernel.MsgOK)
	return msg
}

func (mb *Mailbox[T]) postTimeoutS(msg T, timeout kernel.Interval, put func(T)) kernel.Msg {
	mb.sys.CheckClassS()
	for {
		if mb.reset {
			return kernel.MsgReset
		}
		if mb.cnt < len(mb.buf) {
			put(msg)
			mb.sys.RescheduleS()
			return kernel.MsgOK
		}
		if rdymsg := mb.qw.EnqueueTimeoutS(timeout); rdymsg != kernel.MsgOK {
			return rdymsg
		}
	}
}

func (mb *Mailbox[T]) postI(msg T, put func(T)) kernel.Msg {
	mb.sys.CheckClassI()
	if mb.reset {
		return kernel.MsgReset
	}
	if mb.cnt < len(mb.buf) {
		put(msg)
		return kernel.MsgOK
	}
	return kernel.MsgTimeout
}

// PostTimeoutS appends msg, waiting up to timeout for a free slot.
func (mb *Mailbox[T]) PostTimeoutS(msg T, timeout kernel.Interval) kernel.Msg {
	return mb.postTimeoutS(msg, timeout, mb.put)
}

// PostTimeout appends msg, waiting up to timeout for a free slot. It
// returns kernel.MsgOK, kernel.MsgTimeout or kernel.MsgReset.
func (mb *Mailbox[T]) PostTimeout(msg T, timeout kernel.Interval) kernel.Msg {
	mb.sys.Lock()
	rdymsg := mb.PostTimeoutS(msg, timeout)
	mb.sys.Unlock()
	return rdymsg
}

// PostI appends msg without waiting, kernel.MsgTimeout when full.
func (mb *Mailbox[T]) PostI(msg T) kernel.Msg { return mb.postI(msg, mb.put) }

// PostAheadTimeoutS puts msg in front of the queued messages.
func (mb *Mailbox[T]) PostAheadTimeoutS(msg T, timeout kernel.Interval) kernel.Msg {
	return mb.postTimeoutS(msg, timeout, mb.putAhead)
}

// PostAheadTimeout puts msg in front of the queued messages, waiting up
// to timeout for a free slot.
func (mb *Mailbox[T]) PostAheadTimeout(msg T, timeout kernel.Interval) kernel.Msg {
	mb.sys.Lock()
	rdymsg := mb.PostAheadTimeoutS(msg, timeout)
	mb.sys.Unlock()
	return rdymsg
}

// PostAheadI puts msg in front of the queued messages without waiting.
func (mb *Mailbox[T]) PostAheadI(msg T) kernel.Msg { return mb.postI(msg, mb.putAhead) }

// FetchTimeoutS removes the oldest message, waiting up to timeout for one.
func (mb *Mailbox[T]) FetchTimeoutS(timeout kernel.Interval) (T, kernel.Msg) {
	mb.sys.CheckClassS()
	var zero T
	for {
		if mb.reset {
			return zero, kernel.MsgReset
		}
		if mb.cnt > 0 {
			msg := mb.get()
			mb.sys.RescheduleS()
			return msg, kernel.MsgOK
		}
		if rdymsg := mb.qr.EnqueueTimeoutS(timeout); rdymsg != kernel.MsgOK {
			return zero, rdymsg
		}
	}
}

// FetchTimeout removes the oldest message, waiting up to timeout for one.
func (mb *Mailbox[T]) FetchTimeout(timeout kernel.Interval) (T, kernel.Msg) {
	mb.sys.Lock()
	msg, rdymsg := mb.FetchTimeoutS(timeout)
	mb.sys.Unlock()
	return msg, rdymsg
}

// FetchI removes the oldest message without waiting.
func (mb *Mailbox[T]) FetchI() (T, kernel.Msg) {
	mb.sys.CheckClassI()
	var zero T
	if mb.reset {
		return zero, kernel.MsgReset
	}
	if mb.cnt > 0 {
		return mb.get(), kernel.MsgOK
	}
	return zero, kernel.MsgTimeout
}
