//go:build tinygo

package hal

import "time"

// tickerTime is a 1 kHz tick stream driven by the runtime timer. Ticks are
// dropped while the consumer lags.
type tickerTime struct {
	ch chan uint64
}

func newTickerTime() *tickerTime {
	t := &tickerTime{ch: make(chan uint64, 16)}
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		var seq uint64
		for range ticker.C {
			seq++
			select {
			case t.ch <- seq:
			default:
			}
		}
	}()
	return t
}

func (t *tickerTime) Ticks() <-chan uint64 { return t.ch }
