// Package heap implements a first-fit heap allocator with block coalescing.
//
// Every block is preceded by a header of Alignment bytes inside the arena.
// Free blocks are kept ordered by address so that a freed block can be
// merged with its neighbors.
package heap

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/docker/go-units"
	"github.com/google/btree"

	"chibi/kernel"
)

// Alignment is the allocation unit and the size of a block header.
const Alignment = 16

const headerSize = Alignment

var (
	ErrNoMemory     = errors.New("heap: out of memory")
	ErrBadAlignment = errors.New("heap: alignment is not a power of two")
	ErrBadSize      = errors.New("heap: bad size")
)

// Provider supplies memory when the free list cannot satisfy a request. The
// returned block is offset+size bytes long and aligned after offset bytes.
type Provider interface {
	AllocAlignedWithOffset(size, align, offset int) ([]byte, error)
}

// span is a block including its header. The capacity of buf reaches the end
// of the memory region the block was carved from.
type span struct {
	addr uintptr
	buf  []byte
}

func (s span) limit() uintptr { return s.addr + uintptr(len(s.buf)) }

type used struct {
	span span
	size int
}

// Heap is a heap allocator. Allocations are serialized by a semaphore, so
// a thread allocating from the heap may be preempted.
type Heap struct {
	sys      *kernel.System
	provider Provider
	lock     kernel.Semaphore
	free     *btree.BTreeG[span]
	used     map[uintptr]used
}

func newHeap(sys *kernel.System, provider Provider) *Heap {
	h := &Heap{
		sys:      sys,
		provider: provider,
		free:     btree.NewG[span](8, func(a, b span) bool { return a.addr < b.addr }),
		used:     make(map[uintptr]used),
	}
	h.lock.Init(sys, 1)
	return h
}

// New returns a heap managing buf.
func New(sys *kernel.System, buf []byte) *Heap {
	h := newHeap(sys, nil)
	h.addRegion(buf)
	return h
}

// NewWithProvider returns an empty heap growing through provider.
func NewWithProvider(sys *kernel.System, provider Provider) *Heap {
	return newHeap(sys, provider)
}

func addrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }

func alignUp(v, align uintptr) uintptr { return (v + align - 1) &^ (align - 1) }

// addRegion adds the aligned part of buf to the free list.
func (h *Heap) addRegion(buf []byte) {
	if len(buf) == 0 {
		return
	}
	base := addrOf(buf)
	off := int(alignUp(base, Alignment) - base)
	if off >= len(buf) {
		return
	}
	n := (len(buf) - off) &^ (Alignment - 1)
	if n <= headerSize {
		return
	}
	h.free.ReplaceOrInsert(span{addr: base + uintptr(off), buf: buf[off : off+n : off+n]})
}

func pagesFor(size int) int { return (size + Alignment - 1) &^ (Alignment - 1) }

// AllocAligned returns a block of size bytes aligned to align. The block
// is not cleared.
func (h *Heap) AllocAligned(size, align int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, align)
	}
	if align < Alignment {
		align = Alignment
	}
	pages := pagesFor(size)

	h.lock.Wait()
	var (
		hp    span
		blk   uintptr
		found bool
	)
	h.free.Ascend(func(s span) bool {
		blk = alignUp(s.addr+headerSize, uintptr(align))
		if blk >= s.limit() || uintptr(pages) > s.limit()-blk {
			return true
		}
		hp, found = s, true
		return false
	})
	if found {
		// The block is split in a free leading part, the allocated part and
		// a free trailing part. An outer part too small to hold more than a
		// header stays with the allocated block.
		h.free.Delete(hp)
		lead := int(blk - headerSize - hp.addr)
		start := 0
		if lead > headerSize {
			h.free.ReplaceOrInsert(span{addr: hp.addr, buf: hp.buf[:lead]})
			start = lead
		}
		rest := hp.buf[start:]
		off := lead - start + headerSize
		end := off + pages
		if excess := rest[end:]; len(excess) > headerSize {
			h.free.ReplaceOrInsert(span{addr: addrOf(excess), buf: excess})
		} else {
			end = len(rest)
		}
		u := used{span: span{addr: hp.addr + uintptr(start), buf: rest[:end]}, size: size}
		h.used[blk] = u
		h.lock.Signal()
		return rest[off : off+size : off+size], nil
	}
	h.lock.Signal()

	if h.provider == nil {
		return nil, fmt.Errorf("%w: %d bytes", ErrNoMemory, size)
	}
	b, err := h.provider.AllocAlignedWithOffset(pages, align, headerSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	u := used{span: span{addr: addrOf(b), buf: b}, size: size}
	h.lock.Wait()
	h.used[u.span.addr+headerSize] = u
	h.lock.Signal()
	return b[headerSize : headerSize+size : headerSize+size], nil
}

// Alloc returns a block of size bytes.
func (h *Heap) Alloc(size int) ([]byte, error) {
	return h.AllocAligned(size, Alignment)
}

// Free returns a block obtained from h, merging it with adjacent free
// blocks.
func (h *Heap) Free(p []byte) {
	h.lock.Wait()
	key := addrOf(p)
	u, ok := h.used[key]
	if !ok {
		h.lock.Signal()
		h.sys.Assert(false, "heap: block not allocated")
		return
	}
	delete(h.used, key)
	h.insertFree(u.span)
	h.lock.Signal()
}

func (h *Heap) insertFree(hp span) {
	var prev, next span
	var hasPrev, hasNext bool
	h.free.DescendLessOrEqual(hp, func(s span) bool {
		prev, hasPrev = s, true
		return false
	})
	h.free.AscendGreaterOrEqual(hp, func(s span) bool {
		next, hasNext = s, true
		return false
	})
	h.sys.Assert(!hasPrev || prev.limit() <= hp.addr, "within free block")

	if hasNext && hp.limit() == next.addr && cap(hp.buf) >= len(hp.buf)+len(next.buf) {
		h.free.Delete(next)
		hp.buf = hp.buf[:len(hp.buf)+len(next.buf)]
	}
	if hasPrev && prev.limit() == hp.addr && cap(prev.buf) >= len(prev.buf)+len(hp.buf) {
		prev.buf = prev.buf[:len(prev.buf)+len(hp.buf)]
		h.free.ReplaceOrInsert(prev)
		return
	}
	h.free.ReplaceOrInsert(hp)
}

// Size returns the requested size of an allocated block, 0 if p was not
// allocated from h.
func (h *Heap) Size(p []byte) int {
	h.lock.Wait()
	u := h.used[addrOf(p)]
	h.lock.Signal()
	return u.size
}

// Status returns the number of free fragments, the total free memory and
// the largest free block.
func (h *Heap) Status() (fragments, total, largest int) {
	h.lock.Wait()
	h.free.Ascend(func(s span) bool {
		n := len(s.buf) - headerSize
		fragments++
		total += n
		largest = max(largest, n)
		return true
	})
	h.lock.Signal()
	return fragments, total, largest
}

// IntegrityCheck walks the free list and reports whether it is corrupted.
func (h *Heap) IntegrityCheck() bool {
	corrupted := false
	var prev uintptr
	h.lock.Wait()
	h.free.Ascend(func(s span) bool {
		switch {
		case s.addr != addrOf(s.buf),
			s.addr%Alignment != 0,
			len(s.buf) < headerSize,
			len(s.buf)%Alignment != 0,
			s.addr < prev:
			corrupted = true
			return false
		}
		prev = s.limit()
		return true
	})
	h.lock.Signal()
	return corrupted
}

func (h *Heap) String() string {
	n, total, largest := h.Status()
	return fmt.Sprintf("heap %d fragments, %s free, largest %s",
		n, units.BytesSize(float64(total)), units.BytesSize(float64(largest)))
}
