// Package mempool implements pools of fixed size objects.
package mempool

import (
	"chibi/kernel"
)

// Provider returns a new object when the pool is empty, nil when no memory
// is available. It is called with the kernel lock held.
type Provider[T any] func() *T

// Pool is a free list of objects of type T, protected by the kernel lock.
type Pool[T any] struct {
	sys      *kernel.System
	free     []*T
	provider Provider[T]
}

// New returns an empty pool. provider may be nil.
func New[T any](sys *kernel.System, provider Provider[T]) *Pool[T] {
	return &Pool[T]{sys: sys, provider: provider}
}

// LoadArray adds the elements of objs to the pool.
func (mp *Pool[T]) LoadArray(objs []T) {
	mp.sys.Lock()
	for i := range objs {
		mp.FreeI(&objs[i])
	}
	mp.sys.Unlock()
}

// AllocI returns an object from the free list or from the provider, nil
// when both are exhausted.
func (mp *Pool[T]) AllocI() *T {
	mp.sys.CheckClassI()
	if n := len(mp.free); n > 0 {
		obj := mp.free[n-1]
		mp.free[n-1] = nil
		mp.free = mp.free[:n-1]
		return obj
	}
	if mp.provider != nil {
		return mp.provider()
	}
	return nil
}

// Alloc is AllocI from thread context.
func (mp *Pool[T]) Alloc() *T {
	mp.sys.Lock()
	obj := mp.AllocI()
	mp.sys.Unlock()
	return obj
}

// FreeI returns obj to the pool.
func (mp *Pool[T]) FreeI(obj *T) {
	mp.sys.CheckClassI()
	mp.sys.Assert(obj != nil, "Pool.FreeI")
	mp.free = append(mp.free, obj)
}

// Free is FreeI from thread context.
func (mp *Pool[T]) Free(obj *T) {
	mp.sys.Lock()
	mp.FreeI(obj)
	mp.sys.Unlock()
}

// Len returns the number of objects in the free list.
func (mp *Pool[T]) Len() int {
	mp.sys.Lock()
	n := len(mp.free)
	mp.sys.Unlock()
	return n
}

// GuardedPool is a pool without provider whose allocations block while it
// is empty.
type GuardedPool[T any] struct {
	pool Pool[T]
	sem  kernel.Semaphore
}

// NewGuarded returns an empty guarded pool.
func NewGuarded[T any](sys *kernel.System) *GuardedPool[T] {
	gp := &GuardedPool[T]{}
	gp.Init(sys)
	return gp
}

// Init empties gp and binds it to sys.
func (gp *GuardedPool[T]) Init(sys *kernel.System) {
	gp.pool = Pool[T]{sys: sys}
	gp.sem.Init(sys, 0)
}

// LoadArray adds the elements of objs to the pool.
func (gp *GuardedPool[T]) LoadArray(objs []T) {
	s := gp.pool.sys
	s.Lock()
	for i := range objs {
		gp.FreeI(&objs[i])
	}
	s.RescheduleS()
	s.Unlock()
}

// LoadArrayI is LoadArray with the kernel lock held, without
// rescheduling.
func (gp *GuardedPool[T]) LoadArrayI(objs []T) {
	for i := range objs {
		gp.FreeI(&objs[i])
	}
}

// AllocTimeoutS waits up to timeout for an object, nil on timeout.
func (gp *GuardedPool[T]) AllocTimeoutS(timeout kernel.Interval) *T {
	if gp.sem.WaitTimeoutS(timeout) != kernel.MsgOK {
		return nil
	}
	return gp.pool.AllocI()
}

// AllocTimeout is AllocTimeoutS from thread context.
func (gp *GuardedPool[T]) AllocTimeout(timeout kernel.Interval) *T {
	s := gp.pool.sys
	s.Lock()
	obj := gp.AllocTimeoutS(timeout)
	s.Unlock()
	return obj
}

// AllocI returns an object without waiting, nil when empty.
func (gp *GuardedPool[T]) AllocI() *T {
	gp.pool.sys.CheckClassI()
	if gp.sem.GetCounterI() <= 0 {
		return nil
	}
	gp.sem.FastWaitI()
	return gp.pool.AllocI()
}

// FreeI returns obj to the pool, waking a waiting allocator.
func (gp *GuardedPool[T]) FreeI(obj *T) {
	gp.pool.FreeI(obj)
	gp.sem.SignalI()
}

// FreeS is FreeI followed by a reschedule.
func (gp *GuardedPool[T]) FreeS(obj *T) {
	gp.FreeI(obj)
	gp.pool.sys.RescheduleS()
}

// Free returns obj to the pool.
func (gp *GuardedPool[T]) Free(obj *T) {
	s := gp.pool.sys
	s.Lock()
	gp.FreeS(obj)
	s.Unlock()
}

// Len returns the number of free objects.
func (gp *GuardedPool[T]) Len() int { return gp.pool.Len() }
