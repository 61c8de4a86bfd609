// Package pipe implements byte pipes between threads.
package pipe

import (
	"chibi/kernel"
)

// Pipe is a byte ring buffer. One writer and one reader at a time may be
// blocked on it, other writers and readers queue on a semaphore.
type Pipe struct {
	sys   *kernel.System
	buf   []byte
	wr    int
	rd    int
	cnt   int
	reset bool
	wtr   kernel.ThreadReference
	rtr   kernel.ThreadReference
	wsem  kernel.Semaphore
	rsem  kernel.Semaphore
}

// New returns a pipe using buf as storage.
func New(sys *kernel.System, buf []byte) *Pipe {
	p := &Pipe{}
	p.Init(sys, buf)
	return p
}

// Init initializes p with buf as storage.
func (p *Pipe) Init(sys *kernel.System, buf []byte) {
	sys.Assert(len(buf) > 0, "Pipe.Init")
	p.sys = sys
	p.buf = buf
	p.wr, p.rd, p.cnt = 0, 0, 0
	p.reset = false
	p.wtr = kernel.ThreadReference{}
	p.rtr = kernel.ThreadReference{}
	p.wsem.Init(sys, 1)
	p.rsem.Init(sys, 1)
}

// Size returns the capacity of the pipe.
func (p *Pipe) Size() int { return len(p.buf) }

// GetUsedCountI returns the number of buffered bytes.
func (p *Pipe) GetUsedCountI() int {
	p.sys.CheckClassI()
	return p.cnt
}

// GetFreeCountI returns the free space.
func (p *Pipe) GetFreeCountI() int {
	p.sys.CheckClassI()
	return len(p.buf) - p.cnt
}

// UsedCount returns the number of buffered bytes.
func (p *Pipe) UsedCount() int {
	p.sys.Lock()
	n := p.cnt
	p.sys.Unlock()
	return n
}

// Reset discards the buffered bytes and aborts the pending operations.
// Writes and reads return 0 until Resume.
func (p *Pipe) Reset() {
	s := p.sys
	s.Lock()
	p.wr, p.rd, p.cnt = 0, 0, 0
	p.reset = true
	s.ResumeI(&p.wtr, kernel.MsgReset)
	s.ResumeI(&p.rtr, kernel.MsgReset)
	s.RescheduleS()
	s.Unlock()
}

// Resume leaves the reset state.
func (p *Pipe) Resume() {
	p.sys.Lock()
	p.reset = false
	p.sys.Unlock()
}

// writeI copies as much of b as fits, returning the count.
func (p *Pipe) writeI(b []byte) int {
	n := min(len(b), len(p.buf)-p.cnt)
	p.cnt += n
	c := copy(p.buf[p.wr:], b[:n])
	if c < n {
		copy(p.buf, b[c:n])
	}
	p.wr = (p.wr + n) % len(p.buf)
	return n
}

func (p *Pipe) readI(b []byte) int {
	n := min(len(b), p.cnt)
	p.cnt -= n
	c := copy(b[:n], p.buf[p.rd:])
	if c < n {
		copy(b[c:n], p.buf)
	}
	p.rd = (p.rd + n) % len(p.buf)
	return n
}

// transfer moves bytes with op until b is done. It waits on self when op
// makes no progress and wakes other after progress.
func (p *Pipe) transfer(b []byte, timeout kernel.Interval, op func([]byte) int,
	self, other *kernel.ThreadReference) int {
	s := p.sys
	done := 0
	for done < len(b) {
		s.Lock()
		if p.reset {
			s.Unlock()
			break
		}
		n := op(b[done:])
		if n == 0 {
			msg := s.SuspendTimeoutS(self, timeout)
			s.Unlock()
			if msg != kernel.MsgOK {
				break
			}
			continue
		}
		done += n
		s.ResumeS(other, kernel.MsgOK)
		s.Unlock()
	}
	return done
}

// WriteTimeout writes b, waiting up to timeout each time the pipe is
// full. It returns the number of bytes written, less than len(b) on
// timeout or reset.
func (p *Pipe) WriteTimeout(b []byte, timeout kernel.Interval) int {
	if len(b) == 0 {
		return 0
	}
	p.wsem.Wait()
	n := p.transfer(b, timeout, p.writeI, &p.wtr, &p.rtr)
	p.wsem.Signal()
	return n
}

// ReadTimeout fills b, waiting up to timeout each time the pipe is empty.
// It returns the number of bytes read, less than len(b) on timeout or
// reset.
func (p *Pipe) ReadTimeout(b []byte, timeout kernel.Interval) int {
	if len(b) == 0 {
		return 0
	}
	p.rsem.Wait()
	n := p.transfer(b, timeout, p.readI, &p.rtr, &p.wtr)
	p.rsem.Signal()
	return n
}
