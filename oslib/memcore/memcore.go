// Package memcore is the core memory allocator: a bump allocator carving
// aligned blocks out of a fixed arena. Blocks are never returned.
package memcore

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/docker/go-units"

	"chibi/kernel"
)

var (
	// ErrNoMemory indicates that the arena cannot satisfy the request.
	ErrNoMemory = errors.New("memcore: out of memory")
	// ErrBadAlignment indicates an alignment that is not a power of two.
	ErrBadAlignment = errors.New("memcore: alignment is not a power of two")
)

// DefaultAlign is the alignment used by Alloc.
const DefaultAlign = int(unsafe.Alignof(uint64(0)))

// Core is a core allocator. The arena is protected by the kernel lock of
// the owning system.
type Core struct {
	sys  *kernel.System
	buf  []byte
	base uintptr
	next int
}

// New returns a core allocator over a new arena of size bytes.
func New(sys *kernel.System, size int) *Core {
	return NewFromBuffer(sys, make([]byte, size))
}

// NewFromBuffer returns a core allocator over buf.
func NewFromBuffer(sys *kernel.System, buf []byte) *Core {
	return &Core{
		sys:  sys,
		buf:  buf,
		base: uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
	}
}

// AllocAlignedWithOffsetI allocates size bytes whose address after the
// first offset bytes is aligned to align. The returned block is
// offset+size bytes long and its capacity is limited to its length.
func (c *Core) AllocAlignedWithOffsetI(size, align, offset int) ([]byte, error) {
	c.sys.CheckClassI()
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if size < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: size %d offset %d", ErrNoMemory, size, offset)
	}
	a := uintptr(align)
	p := int((c.base+uintptr(c.next+offset)+a-1)&^(a-1) - c.base)
	end := p + size
	if end > len(c.buf) || end < p {
		return nil, fmt.Errorf("%w: %d bytes requested, %d free", ErrNoMemory, size, c.StatusX())
	}
	c.next = end
	return c.buf[p-offset : end : end], nil
}

// AllocAlignedWithOffset is AllocAlignedWithOffsetI from thread context.
func (c *Core) AllocAlignedWithOffset(size, align, offset int) ([]byte, error) {
	c.sys.Lock()
	b, err := c.AllocAlignedWithOffsetI(size, align, offset)
	c.sys.Unlock()
	return b, err
}

// AllocAlignedI allocates size bytes aligned to align.
func (c *Core) AllocAlignedI(size, align int) ([]byte, error) {
	return c.AllocAlignedWithOffsetI(size, align, 0)
}

// AllocAligned allocates size bytes aligned to align.
func (c *Core) AllocAligned(size, align int) ([]byte, error) {
	return c.AllocAlignedWithOffset(size, align, 0)
}

// AllocI allocates size bytes with the default alignment.
func (c *Core) AllocI(size int) ([]byte, error) {
	return c.AllocAlignedI(size, DefaultAlign)
}

// Alloc allocates size bytes with the default alignment.
func (c *Core) Alloc(size int) ([]byte, error) {
	return c.AllocAligned(size, DefaultAlign)
}

// StatusX returns the number of free bytes.
func (c *Core) StatusX() int { return len(c.buf) - c.next }

// Status returns the number of free bytes.
func (c *Core) Status() int {
	c.sys.Lock()
	n := c.StatusX()
	c.sys.Unlock()
	return n
}

// Size returns the size of the arena.
func (c *Core) Size() int { return len(c.buf) }

func (c *Core) String() string {
	return fmt.Sprintf("core %s free of %s",
		units.BytesSize(float64(c.Status())), units.BytesSize(float64(len(c.buf))))
}
