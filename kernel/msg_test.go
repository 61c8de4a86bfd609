package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgSendWaitRelease(t *testing.T) {
	var s *System
	replies := make(chan Msg, 2)
	served := make(chan string, 2)
	s = newTestSystem(t,
		ThreadConfig{Name: "server", Prio: 1, Func: func(any) {
			for i := 0; i < 2; i++ {
				tp := s.MsgWait()
				n := s.MsgGet(tp).(int)
				served <- tp.Name()
				s.MsgRelease(tp, Msg(n*2))
			}
		}},
		ThreadConfig{Name: "c1", Prio: 3, Func: func(any) {
			replies <- s.MsgSend(s.ThreadAt(1), 21)
		}},
		ThreadConfig{Name: "c2", Prio: 2, Func: func(any) {
			s.Sleep(1)
			replies <- s.MsgSend(s.ThreadAt(1), 50)
		}},
	)
	startSystem(t, s)

	assert.Equal(t, "c1", recvWithTimeout(t, served))
	assert.Equal(t, Msg(42), recvWithTimeout(t, replies))

	tick(t, s, 1)
	assert.Equal(t, "c2", recvWithTimeout(t, served))
	assert.Equal(t, Msg(100), recvWithTimeout(t, replies))
}

func TestMsgPollAndTimeout(t *testing.T) {
	var s *System
	polled := make(chan *Thread, 2)
	s = newTestSystem(t, ThreadConfig{Name: "server", Prio: 1, Func: func(any) {
		polled <- s.MsgPoll()
		polled <- s.MsgWaitTimeout(4)
	}})
	startSystem(t, s)

	require.Nil(t, recvWithTimeout(t, polled))
	tick(t, s, 4)
	assert.Nil(t, recvWithTimeout(t, polled))
}
