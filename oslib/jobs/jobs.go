// Package jobs implements queues of jobs executed by dispatcher threads.
//
// A queue owns a fixed number of job descriptors. Producers take a free
// descriptor, fill it and post it; a dispatcher fetches posted jobs, runs
// them and returns the descriptors to the free pool.
package jobs

import (
	"chibi/kernel"
	"chibi/oslib/mailbox"
	"chibi/oslib/mempool"
)

// MsgJobNull is returned by Dispatch when a job without function was
// fetched, dispatcher loops use it as termination request.
const MsgJobNull kernel.Msg = -3

// Func is the function of a job.
type Func func(arg any)

// Job is a job descriptor.
type Job struct {
	Func Func
	Arg  any
}

// Queue is a jobs queue.
type Queue struct {
	sys  *kernel.System
	free *mempool.GuardedPool[Job]
	mbx  *mailbox.Mailbox[*Job]
}

// New returns a queue with n job descriptors.
func New(sys *kernel.System, n int) *Queue {
	sys.Assert(n > 0, "jobs: no descriptors")
	q := &Queue{
		sys:  sys,
		free: mempool.NewGuarded[Job](sys),
		mbx:  mailbox.New(sys, make([]*Job, n)),
	}
	q.free.LoadArray(make([]Job, n))
	return q
}

// Get waits for a free descriptor.
func (q *Queue) Get() *Job { return q.free.AllocTimeout(kernel.TimeInfinite) }

// GetI returns a free descriptor, nil when none is available.
func (q *Queue) GetI() *Job { return q.free.AllocI() }

// GetTimeoutS is GetTimeout with the kernel lock already held.
func (q *Queue) GetTimeoutS(timeout kernel.Interval) *Job {
	return q.free.AllocTimeoutS(timeout)
}

// GetTimeout waits up to timeout for a free descriptor, nil on timeout.
func (q *Queue) GetTimeout(timeout kernel.Interval) *Job {
	return q.free.AllocTimeout(timeout)
}

// Posting never waits, there is a mailbox slot for every descriptor.

// PostI queues j for execution.
func (q *Queue) PostI(j *Job) {
	msg := q.mbx.PostI(j)
	q.sys.Assert(msg == kernel.MsgOK, "jobs: post failed")
}

// PostS queues j for execution from S-class context.
func (q *Queue) PostS(j *Job) {
	msg := q.mbx.PostTimeoutS(j, kernel.TimeImmediate)
	q.sys.Assert(msg == kernel.MsgOK, "jobs: post failed")
}

// Post queues j for execution.
func (q *Queue) Post(j *Job) {
	msg := q.mbx.PostTimeout(j, kernel.TimeImmediate)
	q.sys.Assert(msg == kernel.MsgOK, "jobs: post failed")
}

// PostAheadI queues j before every pending job.
func (q *Queue) PostAheadI(j *Job) {
	msg := q.mbx.PostAheadI(j)
	q.sys.Assert(msg == kernel.MsgOK, "jobs: post failed")
}

// PostAheadS is PostAheadI from S-class context.
func (q *Queue) PostAheadS(j *Job) {
	msg := q.mbx.PostAheadTimeoutS(j, kernel.TimeImmediate)
	q.sys.Assert(msg == kernel.MsgOK, "jobs: post failed")
}

// PostAhead queues j before every pending job.
func (q *Queue) PostAhead(j *Job) {
	msg := q.mbx.PostAheadTimeout(j, kernel.TimeImmediate)
	q.sys.Assert(msg == kernel.MsgOK, "jobs: post failed")
}

// Dispatch waits for a job and runs it.
func (q *Queue) Dispatch() kernel.Msg {
	return q.DispatchTimeout(kernel.TimeInfinite)
}

// DispatchTimeout waits up to timeout for a job and runs it. It returns
// MsgOK after running a job, MsgJobNull for a job without function,
// otherwise the mailbox result.
func (q *Queue) DispatchTimeout(timeout kernel.Interval) kernel.Msg {
	j, msg := q.mbx.FetchTimeout(timeout)
	if msg != kernel.MsgOK {
		return msg
	}
	q.sys.Assert(j != nil, "jobs: nil job")
	fn, arg := j.Func, j.Arg
	*j = Job{}
	if fn == nil {
		q.free.Free(j)
		return MsgJobNull
	}
	fn(arg)
	q.free.Free(j)
	return kernel.MsgOK
}

// FreeCount returns the number of free descriptors.
func (q *Queue) FreeCount() int { return q.free.Len() }
