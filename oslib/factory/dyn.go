package factory

import "sync/atomic"

// Dyn is a factory managed object: a list element carrying the name and
// the reference counter, followed by the object itself.
type Dyn[T any] struct {
	next     *Dyn[T]
	name     Name
	refs     atomic.Uint32
	detached bool
	mem      []byte
	obj      T
}

// Name returns the name the object was created with.
func (d *Dyn[T]) Name() string { return d.name.String() }

// Refs returns the current number of references.
func (d *Dyn[T]) Refs() uint32 { return d.refs.Load() }

// Object returns the managed object.
func (d *Dyn[T]) Object() *T { return &d.obj }

// Bytes returns the heap memory backing the object: the payload of a
// buffer, the storage of a mailbox, an objects FIFO or a pipe, nil for pool
// objects.
func (d *Dyn[T]) Bytes() []byte { return d.mem }

// list is a circular singly linked list of Dyn elements with a sentinel.
// New elements are linked at the head.
type list[T any] struct {
	head Dyn[T]
}

func (l *list[T]) init() { l.head.next = &l.head }

func (l *list[T]) find(name Name) *Dyn[T] {
	for p := l.head.next; p != &l.head; p = p.next {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (l *list[T]) findPrev(d *Dyn[T]) *Dyn[T] {
	for prev := &l.head; prev.next != &l.head; prev = prev.next {
		if prev.next == d {
			return prev
		}
	}
	return nil
}

func (l *list[T]) push(d *Dyn[T]) {
	d.next = l.head.next
	l.head.next = d
}

func unlink[T any](prev *Dyn[T]) *Dyn[T] {
	d := prev.next
	prev.next = d.next
	d.next = nil
	return d
}

func (l *list[T]) each(fn func(*Dyn[T]) bool) {
	for p := l.head.next; p != &l.head; p = p.next {
		if !fn(p) {
			return
		}
	}
}

func (l *list[T]) len() int {
	n := 0
	l.each(func(*Dyn[T]) bool { n++; return true })
	return n
}
