// Package objfifo implements FIFOs of preallocated objects.
//
// A producer takes a free object, fills it and sends it. The consumer
// receives objects in order and returns them to the free pool once done.
// Taking blocks while every object is in flight; sending never blocks
// because the queue holds as many slots as there are objects.
package objfifo

import (
	"chibi/kernel"
	"chibi/oslib/mailbox"
	"chibi/oslib/mempool"
)

// Object is an element of a FIFO.
type Object struct {
	// Data is the object storage, ObjectSize bytes.
	Data []byte
	idx  int32
}

// FIFO is an objects FIFO.
type FIFO struct {
	sys  *kernel.System
	size int
	objs []Object
	free mempool.GuardedPool[Object]
	mbx  mailbox.Mailbox[int32]
}

// New returns a FIFO of n objects of objSize bytes each.
func New(sys *kernel.System, objSize, n int) *FIFO {
	f := &FIFO{}
	sys.Lock()
	f.InitI(sys, objSize, make([]int32, n), make([]byte, objSize*n))
	sys.Unlock()
	return f
}

// InitI initializes f with the kernel lock held. msgBuf holds one slot
// per object and objBuf is split in len(msgBuf) objects of objSize bytes.
func (f *FIFO) InitI(sys *kernel.System, objSize int, msgBuf []int32, objBuf []byte) {
	n := len(msgBuf)
	sys.Assert(objSize > 0 && n > 0 && len(objBuf) >= objSize*n, "FIFO.Init")
	f.sys = sys
	f.size = objSize
	f.objs = make([]Object, n)
	for i := range f.objs {
		off := i * objSize
		f.objs[i] = Object{Data: objBuf[off : off+objSize : off+objSize], idx: int32(i)}
	}
	f.mbx.Init(sys, msgBuf)
	f.free.Init(sys)
	f.free.LoadArrayI(f.objs)
}

// ObjectSize returns the size of the objects.
func (f *FIFO) ObjectSize() int { return f.size }

// Cap returns the number of objects.
func (f *FIFO) Cap() int { return len(f.objs) }

// FreeCount returns the number of objects available to TakeObject.
func (f *FIFO) FreeCount() int { return f.free.Len() }

// TakeObjectI returns a free object, nil when all are in use.
func (f *FIFO) TakeObjectI() *Object { return f.free.AllocI() }

// TakeObjectTimeoutS waits up to timeout for a free object, nil on timeout.
func (f *FIFO) TakeObjectTimeoutS(timeout kernel.Interval) *Object {
	return f.free.AllocTimeoutS(timeout)
}

// TakeObjectTimeout waits up to timeout for a free object, nil on timeout.
func (f *FIFO) TakeObjectTimeout(timeout kernel.Interval) *Object {
	return f.free.AllocTimeout(timeout)
}

// ReturnObjectI gives obj back to the free pool.
func (f *FIFO) ReturnObjectI(obj *Object) { f.free.FreeI(f.own(obj)) }

// ReturnObjectS is ReturnObjectI followed by a reschedule.
func (f *FIFO) ReturnObjectS(obj *Object) { f.free.FreeS(f.own(obj)) }

// ReturnObject gives obj back to the free pool.
func (f *FIFO) ReturnObject(obj *Object) { f.free.Free(f.own(obj)) }

// own checks that obj belongs to f.
func (f *FIFO) own(obj *Object) *Object {
	f.sys.Assert(obj != nil && int(obj.idx) < len(f.objs) && &f.objs[obj.idx] == obj, "FIFO: foreign object")
	return obj
}

// SendObjectI queues obj behind the objects already sent.
func (f *FIFO) SendObjectI(obj *Object) {
	rdymsg := f.mbx.PostI(f.own(obj).idx)
	f.sys.Assert(rdymsg == kernel.MsgOK, "FIFO: post failed")
}

// SendObjectS queues obj and reschedules.
func (f *FIFO) SendObjectS(obj *Object) {
	rdymsg := f.mbx.PostTimeoutS(f.own(obj).idx, kernel.TimeImmediate)
	f.sys.Assert(rdymsg == kernel.MsgOK, "FIFO: post failed")
}

// SendObject queues obj behind the objects already sent.
func (f *FIFO) SendObject(obj *Object) {
	f.sys.Lock()
	f.SendObjectS(obj)
	f.sys.Unlock()
}

// SendObjectAheadI queues obj in front of the objects already sent.
func (f *FIFO) SendObjectAheadI(obj *Object) {
	rdymsg := f.mbx.PostAheadI(f.own(obj).idx)
	f.sys.Assert(rdymsg == kernel.MsgOK, "FIFO: post failed")
}

// SendObjectAheadS is SendObjectAheadI followed by a reschedule.
func (f *FIFO) SendObjectAheadS(obj *Object) {
	rdymsg := f.mbx.PostAheadTimeoutS(f.own(obj).idx, kernel.TimeImmediate)
	f.sys.Assert(rdymsg == kernel.MsgOK, "FIFO: post failed")
}

// SendObjectAhead queues obj in front of the objects already sent.
func (f *FIFO) SendObjectAhead(obj *Object) {
	f.sys.Lock()
	f.SendObjectAheadS(obj)
	f.sys.Unlock()
}

// ReceiveObjectI removes the oldest sent object without waiting. It
// returns kernel.MsgTimeout when none is queued.
func (f *FIFO) ReceiveObjectI() (*Object, kernel.Msg) {
	idx, rdymsg := f.mbx.FetchI()
	if rdymsg != kernel.MsgOK {
		return nil, rdymsg
	}
	return &f.objs[idx], rdymsg
}

// ReceiveObjectTimeoutS waits up to timeout for a sent object.
func (f *FIFO) ReceiveObjectTimeoutS(timeout kernel.Interval) (*Object, kernel.Msg) {
	idx, rdymsg := f.mbx.FetchTimeoutS(timeout)
	if rdymsg != kernel.MsgOK {
		return nil, rdymsg
	}
	return &f.objs[idx], rdymsg
}

// ReceiveObjectTimeout waits up to timeout for a sent object.
func (f *FIFO) ReceiveObjectTimeout(timeout kernel.Interval) (*Object, kernel.Msg) {
	f.sys.Lock()
	obj, rdymsg := f.ReceiveObjectTimeoutS(timeout)
	f.sys.Unlock()
	return obj, rdymsg
}
