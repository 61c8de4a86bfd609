//go:build !tinygo

package hal

import (
	"sync/atomic"
	"time"
)

// DefaultTickHz is the rate of the host tick stream.
const DefaultTickHz = 1000

// hostTime derives a tick stream of fixed period from the wall clock. Tick
// numbers are computed from the first sample, so late samples emit the
// ticks they missed instead of drifting. Ticks the consumer is too slow to
// take are dropped and counted.
type hostTime struct {
	ch      chan uint64
	period  time.Duration
	origin  time.Time
	seq     uint64
	dropped atomic.Uint64
}

func newHostTime(period time.Duration) *hostTime {
	if period <= 0 {
		period = time.Second / DefaultTickHz
	}
	return &hostTime{ch: make(chan uint64, 1024), period: period}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance emits the ticks due at now. The first call starts the clock
// with one tick.
func (t *hostTime) advance(now time.Time) {
	if t.origin.IsZero() {
		t.origin = now
		t.emit(1)
		return
	}
	due := uint64(now.Sub(t.origin)/t.period) + 1
	if due > t.seq {
		t.emit(due - t.seq)
	}
}

func (t *hostTime) emit(n uint64) {
	for ; n > 0; n-- {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
			t.dropped.Add(1)
		}
	}
}

// Dropped returns the number of ticks lost to a slow consumer.
func (t *hostTime) Dropped() uint64 { return t.dropped.Load() }
