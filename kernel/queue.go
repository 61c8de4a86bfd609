package kernel

import "github.com/gammazero/deque"

// ThreadsQueue is a counter plus the FIFO of the threads blocked on it.
// A non negative counter means no waiters, a negative one means -cnt
// threads are queued.
type ThreadsQueue struct {
	sys     *System
	cnt     int32
	waiters deque.Deque[*Thread]
}

// Init binds q to sys with counter n.
func (q *ThreadsQueue) Init(sys *System, n int32) {
	q.sys = sys
	q.cnt = n
	q.waiters.Clear()
}

// System returns the system q is bound to.
func (q *ThreadsQueue) System() *System { return q.sys }

// IsEmptyI reports whether no thread is queued.
func (q *ThreadsQueue) IsEmptyI() bool {
	q.sys.CheckClassI()
	return q.cnt >= 0
}

// EnqueueTimeoutS queues the calling thread until it is dequeued or
// timeout ticks elapse. TimeImmediate fails right away with MsgTimeout.
func (q *ThreadsQueue) EnqueueTimeoutS(timeout Interval) Msg {
	s := q.sys
	s.CheckClassS()
	s.Assert(q.cnt <= 0, "invalid counter")
	if timeout == TimeImmediate {
		return MsgTimeout
	}
	return q.enqueueS(timeout)
}

func (q *ThreadsQueue) enqueueS(timeout Interval) Msg {
	s := q.sys
	q.cnt--
	ctp := s.current
	ctp.wait = waitQueue{q}
	q.waiters.PushBack(ctp)
	return s.GoSleepTimeoutS(StateWTQueue, timeout)
}

// DequeueNextI wakes the oldest queued thread with msg, if any.
func (q *ThreadsQueue) DequeueNextI(msg Msg) {
	q.sys.CheckClassI()
	if q.cnt < 0 {
		q.dequeueNextI(msg)
	}
}

func (q *ThreadsQueue) dequeueNextI(msg Msg) {
	s := q.sys
	s.Assert(q.waiters.Len() > 0, "thread not found")
	q.cnt++
	t := q.waiters.PopFront()
	s.ReadyI(t, msg)
}

// DequeueAllI wakes all queued threads with msg.
func (q *ThreadsQueue) DequeueAllI(msg Msg) {
	q.sys.CheckClassI()
	for q.cnt < 0 {
		q.dequeueNextI(msg)
	}
}

// unlinkI removes t after its wait timed out, restoring the counter.
func (q *ThreadsQueue) unlinkI(t *Thread) {
	i := q.waiters.Index(func(w *Thread) bool { return w == t })
	q.sys.Assert(i >= 0, "thread not found")
	if i >= 0 {
		q.waiters.Remove(i)
	}
	q.cnt++
}
