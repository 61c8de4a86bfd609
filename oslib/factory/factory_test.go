package factory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chibi/internal/ktest"
	"chibi/kernel"
	"chibi/oslib/heap"
	"chibi/oslib/memcore"
)

func addr(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }

func TestNames(t *testing.T) {
	n, err := MakeName("12345678")
	require.NoError(t, err)
	assert.Equal(t, "12345678", n.String())

	_, err = MakeName("123456789")
	require.ErrorIs(t, err, ErrNameTooLong)
	_, err = MakeName("")
	require.ErrorIs(t, err, ErrBadName)
	_, err = MakeName("a\x00b")
	require.ErrorIs(t, err, ErrBadName)

	f := New(ktest.NewSystem(t), Config{})
	_, err = f.CreateSemaphore("too_long_name", 0)
	require.ErrorIs(t, err, ErrNameTooLong)
	assert.Zero(t, f.Stats().Semaphores)
}

func TestReleaseKeepsNameWhileReferenced(t *testing.T) {
	f := New(ktest.NewSystem(t), Config{})

	sem, err := f.CreateSemaphore("sem1", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), sem.Refs())

	found, err := f.FindSemaphore("sem1")
	require.NoError(t, err)
	assert.Same(t, sem, found)
	assert.Equal(t, uint32(2), sem.Refs())

	refs, err := f.ReleaseSemaphore(sem)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), refs)

	again, err := f.FindSemaphore("sem1")
	require.NoError(t, err, "one reference is still alive")
	assert.Same(t, sem, again)
	assert.Equal(t, uint32(2), sem.Refs())

	_, err = f.ReleaseSemaphore(sem)
	require.NoError(t, err)
	refs, err = f.ReleaseSemaphore(sem)
	require.NoError(t, err)
	assert.Zero(t, refs)

	_, err = f.FindSemaphore("sem1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.ReleaseSemaphore(sem)
	require.ErrorIs(t, err, ErrNotFound, "already freed")
}

func TestDetachOnRelease(t *testing.T) {
	f := New(ktest.NewSystem(t), Config{DetachOnRelease: true})

	sem, err := f.CreateSemaphore("sem1", 1)
	require.NoError(t, err)
	_, err = f.FindSemaphore("sem1")
	require.NoError(t, err)

	refs, err := f.ReleaseSemaphore(sem)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), refs)

	_, err = f.FindSemaphore("sem1")
	require.ErrorIs(t, err, ErrNotFound, "the first release unlinks the name")
	assert.Zero(t, f.Stats().Semaphores)

	other, err := f.CreateSemaphore("sem1", 0)
	require.NoError(t, err, "the name can be reused")
	assert.NotSame(t, sem, other)

	assert.Equal(t, kernel.MsgOK, sem.Object().WaitTimeout(kernel.TimeImmediate), "the orphan is still usable")

	refs, err = f.ReleaseSemaphore(sem)
	require.NoError(t, err)
	assert.Zero(t, refs)
	_, err = f.ReleaseSemaphore(sem)
	require.ErrorIs(t, err, ErrNotFound)

	found, err := f.FindSemaphore("sem1")
	require.NoError(t, err, "releasing the orphan leaves the new object alone")
	assert.Same(t, other, found)
}

func TestDuplicateNameLeavesNoState(t *testing.T) {
	f := New(ktest.NewSystem(t), Config{})
	h := f.Heap()

	_, err := f.CreateBuffer("buf", 32)
	require.NoError(t, err)
	_, total, _ := h.Status()

	_, err = f.CreateBuffer("buf", 32)
	require.ErrorIs(t, err, ErrNameTaken)
	_, after, _ := h.Status()
	assert.Equal(t, total, after)
	assert.Equal(t, 1, f.Stats().Buffers)

	_, err = f.CreateSemaphore("buf", 0)
	require.NoError(t, err, "names are scoped by kind")
}

func TestBuffersAreZeroed(t *testing.T) {
	f := New(ktest.NewSystem(t), Config{})

	b, err := f.CreateBuffer("buf", 40)
	require.NoError(t, err)
	require.Len(t, b.Bytes(), 40)
	for i := range b.Bytes() {
		b.Bytes()[i] = 0xFF
	}
	refs, err := f.ReleaseBuffer(b)
	require.NoError(t, err)
	require.Zero(t, refs)

	b2, err := f.CreateBuffer("buf", 40)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 40), b2.Bytes())
	assert.Equal(t, addr(b.Bytes()), addr(b2.Bytes()), "the freed block is reused")
}

func TestAllocationFailure(t *testing.T) {
	s := ktest.NewSystem(t)
	f := New(s, Config{Heap: heap.New(s, make([]byte, 128))})

	_, err := f.CreateBuffer("big", 1024)
	require.ErrorIs(t, err, ErrNoMemory)
	require.ErrorIs(t, err, heap.ErrNoMemory)
	_, err = f.FindBuffer("big")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.Stats().Buffers)
}

func TestSemaphorePoolExhaustion(t *testing.T) {
	s := ktest.NewSystem(t)
	size := int(unsafe.Sizeof(Semaphore{}))
	f := New(s, Config{Core: memcore.New(s, 2*size)})

	a, err := f.CreateSemaphore("a", 0)
	require.NoError(t, err)
	_, err = f.CreateSemaphore("b", 0)
	require.NoError(t, err)
	_, err = f.CreateSemaphore("c", 0)
	require.ErrorIs(t, err, ErrNoMemory)

	_, err = f.ReleaseSemaphore(a)
	require.NoError(t, err)
	c, err := f.CreateSemaphore("c", 3)
	require.NoError(t, err, "the released element is recycled")
	assert.Same(t, a, c)
	assert.Equal(t, int32(3), c.Object().Counter())
	assert.Equal(t, "c", c.Name())
}

func TestRegisteredObjects(t *testing.T) {
	f := New(ktest.NewSystem(t), Config{})
	var x, y int

	ro, err := f.RegisterObject("x", &x)
	require.NoError(t, err)
	assert.Same(t, &x, (*ro.Object()).(*int))

	found, err := f.FindObjectByPointer(&x)
	require.NoError(t, err)
	assert.Same(t, ro, found)
	assert.Equal(t, uint32(2), ro.Refs())

	_, err = f.FindObjectByPointer(&y)
	require.ErrorIs(t, err, ErrNotFound)

	byName, err := f.FindObject("x")
	require.NoError(t, err)
	assert.Same(t, ro, byName)

	for want := uint32(2); ; want-- {
		refs, err := f.ReleaseObject(ro)
		require.NoError(t, err)
		require.Equal(t, want, refs)
		if refs == 0 {
			break
		}
	}
	_, err = f.FindObjectByPointer(&x)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMailboxAndPipe(t *testing.T) {
	s := ktest.NewSystem(t)
	f := New(s, Config{})

	mb, err := f.CreateMailbox("mbox", 4)
	require.NoError(t, err)
	found, err := f.FindMailbox("mbox")
	require.NoError(t, err)
	assert.Equal(t, kernel.MsgOK, mb.Object().PostTimeout(7, kernel.TimeImmediate))
	msg, rdy := found.Object().FetchTimeout(kernel.TimeImmediate)
	assert.Equal(t, kernel.MsgOK, rdy)
	assert.Equal(t, uintptr(7), msg)

	p, err := f.CreatePipe("pipe", 8)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Object().WriteTimeout([]byte("hello"), kernel.TimeImmediate))
	out := make([]byte, 5)
	assert.Equal(t, 5, p.Object().ReadTimeout(out, kernel.TimeImmediate))
	assert.Equal(t, "hello", string(out))

	for _, d := range []*Mailbox{mb, found} {
		_, err := f.ReleaseMailbox(d)
		require.NoError(t, err)
	}
	refs, err := f.ReleasePipe(p)
	require.NoError(t, err)
	assert.Zero(t, refs)
	assert.Equal(t, Stats{}, f.Stats())
}

func TestObjectsFIFO(t *testing.T) {
	s := ktest.NewSystem(t)
	f := New(s, Config{})

	_, err := f.CreateObjectsFIFO("fifo", 10, 3, 12)
	require.ErrorIs(t, err, heap.ErrBadAlignment)
	_, err = f.CreateObjectsFIFO("fifo", 10, 0, 8)
	require.ErrorIs(t, err, ErrNoMemory)

	ofp, err := f.CreateObjectsFIFO("fifo", 10, 3, 8)
	require.NoError(t, err)
	fifo := ofp.Object()
	assert.Equal(t, 16, fifo.ObjectSize(), "rounded up to the alignment")
	assert.Equal(t, 3, fifo.Cap())
	assert.Len(t, ofp.Bytes(), 16+3*16)

	found, err := f.FindObjectsFIFO("fifo")
	require.NoError(t, err)
	assert.Same(t, ofp, found)

	obj := fifo.TakeObjectTimeout(kernel.TimeImmediate)
	require.NotNil(t, obj)
	assert.Zero(t, addr(obj.Data)%8)
	assert.True(t, addr(obj.Data) >= addr(ofp.Bytes())+16, "objects follow the queue slots")
	copy(obj.Data, "payload")
	fifo.SendObject(obj)

	got, rdy := found.Object().ReceiveObjectTimeout(kernel.TimeImmediate)
	require.Equal(t, kernel.MsgOK, rdy)
	assert.Same(t, obj, got)
	assert.Equal(t, "payload", string(got.Data[:7]))
	found.Object().ReturnObject(got)
	assert.Equal(t, 3, fifo.FreeCount())
	assert.Equal(t, 1, f.Stats().FIFOs)

	for _, d := range []*ObjectsFIFO{ofp, found} {
		_, err := f.ReleaseObjectsFIFO(d)
		require.NoError(t, err)
	}
	_, err = f.FindObjectsFIFO("fifo")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Stats{}, f.Stats())
	assert.False(t, f.Heap().IntegrityCheck())
}

func TestSharedSemaphoreAcrossThreads(t *testing.T) {
	var f *Factory
	got := make(chan kernel.Msg, 1)
	s := ktest.NewSystem(t, kernel.ThreadConfig{Name: "waiter", Prio: 1, Func: func(any) {
		sem, err := f.FindSemaphore("go")
		if err != nil {
			got <- kernel.MsgReset
			return
		}
		got <- sem.Object().Wait()
		_, _ = f.ReleaseSemaphore(sem)
	}})
	f = New(s, Config{})
	sem, err := f.CreateSemaphore("go", 0)
	require.NoError(t, err)

	ktest.Start(t, s)
	assert.Equal(t, uint32(2), sem.Refs())
	ktest.RequireEmpty(t, got)

	sem.Object().Signal()
	ktest.Settle(t, s)
	assert.Equal(t, kernel.MsgOK, ktest.Recv(t, got))
	assert.Equal(t, uint32(1), sem.Refs())
	assert.Zero(t, sem.Object().Counter())
}
