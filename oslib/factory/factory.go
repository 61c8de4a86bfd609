// Package factory is a registry of named, reference counted kernel objects.
//
// Objects are created once under a name, looked up by other subsystems
// with the Find functions and given back with the Release functions.
// Every lookup adds a reference. The registry lists are only accessed
// with the kernel lock held.
package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"unsafe"

	"chibi/kernel"
	"chibi/oslib/heap"
	"chibi/oslib/mailbox"
	"chibi/oslib/memcore"
	"chibi/oslib/mempool"
	"chibi/oslib/objfifo"
	"chibi/oslib/pipe"
)

var (
	ErrNameTooLong = errors.New("factory: name too long")
	ErrBadName     = errors.New("factory: bad name")
	ErrNameTaken   = errors.New("factory: name taken")
	ErrNoMemory    = errors.New("factory: out of memory")
	ErrNotFound    = errors.New("factory: object not found")
)

// DefaultCoreSize is the size of the core arena created when Config.Core
// is nil.
const DefaultCoreSize = 16 * 1024

// Config configures a Factory.
type Config struct {
	// Core backs the pools of registered objects and semaphores.
	Core *memcore.Core
	// Heap backs buffers, mailboxes, objects FIFOs and pipes. When nil a heap growing
	// from Core is used.
	Heap *heap.Heap
	// DetachOnRelease makes every release unlink the object from its list,
	// even when references remain. The remaining references stay usable
	// but the name can be reused. By default an object stays registered
	// until its last reference is released.
	DetachOnRelease bool
}

type (
	RegisteredObject = Dyn[any]
	Buffer           = Dyn[struct{}]
	Semaphore        = Dyn[kernel.Semaphore]
	Mailbox          = Dyn[mailbox.Mailbox[uintptr]]
	ObjectsFIFO      = Dyn[objfifo.FIFO]
	Pipe             = Dyn[pipe.Pipe]
)

// Factory is an objects factory bound to a system.
type Factory struct {
	sys    *kernel.System
	log    *slog.Logger
	core   *memcore.Core
	heap   *heap.Heap
	detach bool

	// creation serializes the creations backed by the heap, whose
	// allocations cannot run inside the kernel lock.
	creation kernel.Semaphore

	objs    list[any]
	objPool *mempool.Pool[RegisteredObject]
	bufs    list[struct{}]
	sems    list[kernel.Semaphore]
	semPool *mempool.Pool[Semaphore]
	mbxs    list[mailbox.Mailbox[uintptr]]
	fifos   list[objfifo.FIFO]
	pipes   list[pipe.Pipe]
}

// New returns a factory.
func New(sys *kernel.System, cfg Config) *Factory {
	if cfg.Core == nil {
		cfg.Core = memcore.New(sys, DefaultCoreSize)
	}
	if cfg.Heap == nil {
		cfg.Heap = heap.NewWithProvider(sys, cfg.Core)
	}
	f := &Factory{
		sys:    sys,
		log:    sys.Logger().With("component", "factory"),
		core:   cfg.Core,
		heap:   cfg.Heap,
		detach: cfg.DetachOnRelease,
	}
	f.creation.Init(sys, 1)
	f.objs.init()
	f.bufs.init()
	f.sems.init()
	f.mbxs.init()
	f.fifos.init()
	f.pipes.init()
	f.objPool = corePool[any](sys, cfg.Core)
	f.semPool = corePool[kernel.Semaphore](sys, cfg.Core)
	return f
}

// corePool returns a pool whose elements are charged to core. The core
// block only accounts for the element: values holding Go pointers cannot
// live in a byte arena.
func corePool[T any](sys *kernel.System, core *memcore.Core) *mempool.Pool[Dyn[T]] {
	size := int(unsafe.Sizeof(Dyn[T]{}))
	return mempool.New[Dyn[T]](sys, func() *Dyn[T] {
		if _, err := core.AllocAlignedI(size, memcore.DefaultAlign); err != nil {
			return nil
		}
		return new(Dyn[T])
	})
}

// Stats counts the registered objects of each kind.
type Stats struct {
	Objects    int
	Buffers    int
	Semaphores int
	Mailboxes  int
	FIFOs      int
	Pipes      int
}

// Stats returns the number of objects linked in each list.
func (f *Factory) Stats() Stats {
	f.sys.Lock()
	st := Stats{
		Objects:    f.objs.len(),
		Buffers:    f.bufs.len(),
		Semaphores: f.sems.len(),
		Mailboxes:  f.mbxs.len(),
		FIFOs:      f.fifos.len(),
		Pipes:      f.pipes.len(),
	}
	f.sys.Unlock()
	return st
}

func createFromPool[T any](f *Factory, l *list[T], mp *mempool.Pool[Dyn[T]], name string,
	init func(*Dyn[T])) (*Dyn[T], error) {
	n, err := MakeName(name)
	if err != nil {
		return nil, err
	}
	s := f.sys
	s.Lock()
	if l.find(n) != nil {
		s.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	d := mp.AllocI()
	if d == nil {
		s.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoMemory, name)
	}
	*d = Dyn[T]{name: n}
	d.refs.Store(1)
	init(d)
	l.push(d)
	s.Unlock()
	f.log.Debug("object created", "name", name)
	return d, nil
}

func createFromHeap[T any](f *Factory, l *list[T], name string, size, align int,
	init func(*Dyn[T])) (*Dyn[T], error) {
	n, err := MakeName(name)
	if err != nil {
		return nil, err
	}
	s := f.sys
	f.creation.Wait()
	s.Lock()
	taken := l.find(n) != nil
	s.Unlock()
	if taken {
		f.creation.Signal()
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	mem, err := f.heap.AllocAligned(max(size, 1), align)
	if err != nil {
		f.creation.Signal()
		return nil, fmt.Errorf("%w: %s: %w", ErrNoMemory, name, err)
	}
	mem = mem[:size]
	clear(mem)
	d := &Dyn[T]{name: n, mem: mem}
	d.refs.Store(1)
	s.Lock()
	init(d)
	l.push(d)
	s.Unlock()
	f.creation.Signal()
	f.log.Debug("object created", "name", name, "size", size)
	return d, nil
}

func find[T any](f *Factory, l *list[T], name string) (*Dyn[T], error) {
	n, err := MakeName(name)
	if err != nil {
		return nil, err
	}
	f.sys.Lock()
	d := l.find(n)
	if d != nil {
		d.refs.Add(1)
	}
	f.sys.Unlock()
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, nil
}

// release drops a reference to d, unlinking it according to the release
// policy. free runs outside the kernel lock once no reference remains.
func release[T any](f *Factory, l *list[T], d *Dyn[T], free func(*Dyn[T])) (uint32, error) {
	s := f.sys
	s.Lock()
	prev := l.findPrev(d)
	if (prev == nil && !d.detached) || d.refs.Load() == 0 {
		s.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrNotFound, d.Name())
	}
	refs := d.refs.Add(^uint32(0))
	if prev != nil && (refs == 0 || f.detach) {
		unlink(prev)
		d.detached = true
	}
	s.Unlock()
	if refs == 0 {
		f.log.Debug("object freed", "name", d.Name())
		free(d)
	}
	return refs, nil
}

func (f *Factory) freeHeap(mem []byte) {
	if cap(mem) > 0 {
		f.heap.Free(mem)
	}
}

// Heap returns the heap backing buffers, mailboxes, objects FIFOs and pipes.
func (f *Factory) Heap() *heap.Heap { return f.heap }

// Core returns the core allocator backing the object pools.
func (f *Factory) Core() *memcore.Core { return f.core }

// RegisterObject registers obj, usually a pointer, under name. The object
// itself is not managed by the factory.
func (f *Factory) RegisterObject(name string, obj any) (*RegisteredObject, error) {
	f.sys.Assert(obj != nil && reflect.TypeOf(obj).Comparable(), "object not comparable")
	return createFromPool(f, &f.objs, f.objPool, name, func(d *RegisteredObject) {
		d.obj = obj
	})
}

// FindObject returns the object registered under name, adding a reference.
func (f *Factory) FindObject(name string) (*RegisteredObject, error) {
	return find(f, &f.objs, name)
}

// FindObjectByPointer returns the registration of obj, adding a reference.
func (f *Factory) FindObjectByPointer(obj any) (*RegisteredObject, error) {
	var found *RegisteredObject
	f.sys.Lock()
	f.objs.each(func(d *RegisteredObject) bool {
		if d.obj == obj {
			found = d
			return false
		}
		return true
	})
	if found != nil {
		found.refs.Add(1)
	}
	f.sys.Unlock()
	if found == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, obj)
	}
	return found, nil
}

// ReleaseObject drops a reference to ro and returns the remaining ones.
func (f *Factory) ReleaseObject(ro *RegisteredObject) (uint32, error) {
	return release(f, &f.objs, ro, func(d *RegisteredObject) {
		*d = RegisteredObject{}
		f.objPool.Free(d)
	})
}

// CreateBuffer creates a zero filled buffer of size bytes.
func (f *Factory) CreateBuffer(name string, size int) (*Buffer, error) {
	return createFromHeap(f, &f.bufs, name, size, heap.Alignment, func(*Buffer) {})
}

// FindBuffer returns the buffer named name, adding a reference.
func (f *Factory) FindBuffer(name string) (*Buffer, error) {
	return find(f, &f.bufs, name)
}

// ReleaseBuffer drops a reference to b, freeing it with the last one.
func (f *Factory) ReleaseBuffer(b *Buffer) (uint32, error) {
	return release(f, &f.bufs, b, func(d *Buffer) { f.freeHeap(d.mem) })
}

// CreateSemaphore creates a counting semaphore with counter n.
func (f *Factory) CreateSemaphore(name string, n int32) (*Semaphore, error) {
	return createFromPool(f, &f.sems, f.semPool, name, func(d *Semaphore) {
		d.obj.Init(f.sys, n)
	})
}

// FindSemaphore returns the semaphore named name, adding a reference.
func (f *Factory) FindSemaphore(name string) (*Semaphore, error) {
	return find(f, &f.sems, name)
}

// ReleaseSemaphore drops a reference to sp, freeing it with the last one.
func (f *Factory) ReleaseSemaphore(sp *Semaphore) (uint32, error) {
	return release(f, &f.sems, sp, func(d *Semaphore) {
		*d = Semaphore{}
		f.semPool.Free(d)
	})
}

// CreateMailbox creates a mailbox holding up to n messages.
func (f *Factory) CreateMailbox(name string, n int) (*Mailbox, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: mailbox size %d", ErrNoMemory, n)
	}
	const msgSize = int(unsafe.Sizeof(uintptr(0)))
	return createFromHeap(f, &f.mbxs, name, n*msgSize, heap.Alignment, func(d *Mailbox) {
		buf := unsafe.Slice((*uintptr)(unsafe.Pointer(unsafe.SliceData(d.mem))), n)
		d.obj.Init(f.sys, buf)
	})
}

// FindMailbox returns the mailbox named name, adding a reference.
func (f *Factory) FindMailbox(name string) (*Mailbox, error) {
	return find(f, &f.mbxs, name)
}

// ReleaseMailbox drops a reference to mb, freeing it with the last one.
func (f *Factory) ReleaseMailbox(mb *Mailbox) (uint32, error) {
	return release(f, &f.mbxs, mb, func(d *Mailbox) { f.freeHeap(d.mem) })
}

// CreateObjectsFIFO creates a FIFO of n objects of objSize bytes. The
// queue slots and the objects share one heap block, every object aligned
// to align, a power of two.
func (f *Factory) CreateObjectsFIFO(name string, objSize, n, align int) (*ObjectsFIFO, error) {
	if objSize <= 0 || n <= 0 {
		return nil, fmt.Errorf("%w: objects FIFO %dx%d", ErrNoMemory, n, objSize)
	}
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: %d", heap.ErrBadAlignment, align)
	}
	const slotSize = int(unsafe.Sizeof(int32(0)))
	objSize = alignNext(objSize, align)
	msgSize := alignNext(n*slotSize, align)
	return createFromHeap(f, &f.fifos, name, msgSize+n*objSize, align, func(d *ObjectsFIFO) {
		msgs := unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(d.mem))), n)
		d.obj.InitI(f.sys, objSize, msgs, d.mem[msgSize:])
	})
}

// FindObjectsFIFO returns the objects FIFO named name, adding a reference.
func (f *Factory) FindObjectsFIFO(name string) (*ObjectsFIFO, error) {
	return find(f, &f.fifos, name)
}

// ReleaseObjectsFIFO drops a reference to ofp, freeing it with the last
// one.
func (f *Factory) ReleaseObjectsFIFO(ofp *ObjectsFIFO) (uint32, error) {
	return release(f, &f.fifos, ofp, func(d *ObjectsFIFO) { f.freeHeap(d.mem) })
}

func alignNext(v, align int) int { return (v + align - 1) &^ (align - 1) }

// CreatePipe creates a pipe buffering size bytes.
func (f *Factory) CreatePipe(name string, size int) (*Pipe, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: pipe size %d", ErrNoMemory, size)
	}
	return createFromHeap(f, &f.pipes, name, size, heap.Alignment, func(d *Pipe) {
		d.obj.Init(f.sys, d.mem)
	})
}

// FindPipe returns the pipe named name, adding a reference.
func (f *Factory) FindPipe(name string) (*Pipe, error) {
	return find(f, &f.pipes, name)
}

// ReleasePipe drops a reference to p, freeing it with the last one.
func (f *Factory) ReleasePipe(p *Pipe) (uint32, error) {
	return release(f, &f.pipes, p, func(d *Pipe) { f.freeHeap(d.mem) })
}
