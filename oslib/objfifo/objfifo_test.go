package objfifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chibi/internal/ktest"
	"chibi/kernel"
)

func TestSendReceiveOrder(t *testing.T) {
	s := ktest.NewSystem(t)
	f := New(s, 4, 3)
	assert.Equal(t, 4, f.ObjectSize())
	assert.Equal(t, 3, f.Cap())

	s.Lock()
	a, b, c := f.TakeObjectI(), f.TakeObjectI(), f.TakeObjectI()
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)
	assert.Nil(t, f.TakeObjectI(), "all objects in flight")
	assert.Len(t, a.Data, 4)

	a.Data[0], b.Data[0], c.Data[0] = 'a', 'b', 'c'
	f.SendObjectI(a)
	f.SendObjectI(b)
	f.SendObjectAheadI(c)

	var got []byte
	for i := 0; i < 3; i++ {
		obj, rdy := f.ReceiveObjectI()
		require.Equal(t, kernel.MsgOK, rdy)
		got = append(got, obj.Data[0])
		f.ReturnObjectI(obj)
	}
	_, rdy := f.ReceiveObjectI()
	assert.Equal(t, kernel.MsgTimeout, rdy, "empty")
	s.Unlock()

	assert.Equal(t, "cab", string(got))
	assert.Equal(t, 3, f.FreeCount())
}

func TestObjectsDoNotOverlap(t *testing.T) {
	s := ktest.NewSystem(t)
	f := New(s, 2, 2)
	s.Lock()
	a, b := f.TakeObjectI(), f.TakeObjectI()
	s.Unlock()

	copy(a.Data, "xx")
	copy(b.Data, "yy")
	assert.Equal(t, "xx", string(a.Data))
	assert.Equal(t, 2, cap(a.Data), "object storage is capped")
}

func TestTakeWaitsForReturn(t *testing.T) {
	var f *FIFO
	got := make(chan *Object, 1)
	s := ktest.NewSystem(t, kernel.ThreadConfig{Name: "producer", Prio: 1, Func: func(any) {
		got <- f.TakeObjectTimeout(kernel.TimeInfinite)
	}})
	f = New(s, 8, 1)
	s.Lock()
	obj := f.TakeObjectI()
	s.Unlock()

	ktest.Start(t, s)
	ktest.RequireEmpty(t, got)

	s.ISR(func() { f.ReturnObjectI(obj) })
	ktest.Settle(t, s)
	assert.Same(t, obj, ktest.Recv(t, got))
}

func TestReceiveWaitsForSend(t *testing.T) {
	var f *FIFO
	got := make(chan string, 1)
	s := ktest.NewSystem(t, kernel.ThreadConfig{Name: "consumer", Prio: 1, Func: func(any) {
		obj, rdy := f.ReceiveObjectTimeout(kernel.TimeInfinite)
		if rdy != kernel.MsgOK {
			got <- rdy.String()
			return
		}
		got <- string(obj.Data)
		f.ReturnObject(obj)
	}})
	f = New(s, 5, 2)
	ktest.Start(t, s)
	ktest.RequireEmpty(t, got)

	s.ISR(func() {
		obj := f.TakeObjectI()
		copy(obj.Data, "hello")
		f.SendObjectI(obj)
	})
	ktest.Settle(t, s)
	assert.Equal(t, "hello", ktest.Recv(t, got))
	assert.Equal(t, 2, f.FreeCount())
}

func TestReceiveTimeout(t *testing.T) {
	var f *FIFO
	got := make(chan kernel.Msg, 1)
	s := ktest.NewSystem(t, kernel.ThreadConfig{Name: "consumer", Prio: 1, Func: func(any) {
		_, rdy := f.ReceiveObjectTimeout(2)
		got <- rdy
	}})
	f = New(s, 1, 1)
	ktest.Start(t, s)
	ktest.Tick(t, s, 2)
	assert.Equal(t, kernel.MsgTimeout, ktest.Recv(t, got))
}
