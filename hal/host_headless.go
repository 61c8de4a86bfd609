//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the host runner.
type HeadlessConfig struct {
	// Hz is the rate of the wall clock sampling. Default: 1000
	Hz int
	// TickHz is the rate of the tick stream. Default: DefaultTickHz
	TickHz int
	// Ticks stops the runner after that many ticks, 0 runs until the
	// context is done.
	Ticks uint64
	// Output receives the log lines, stdout when nil.
	Output io.Writer
	// Flash replaces the file backed flash.
	Flash Flash
}

var errTicksDone = errors.New("tick budget reached")

// RunHeadless runs an application on the host HAL. newApp receives the HAL
// and returns the function run on every tick of the HAL tick stream.
func RunHeadless(ctx context.Context, newApp func(HAL) (func() error, error), cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 1000
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = DefaultTickHz
	}
	d := time.Second / time.Duration(cfg.Hz)
	period := time.Second / time.Duration(cfg.TickHz)
	if d <= 0 || period <= 0 {
		return fmt.Errorf("invalid headless rates: hz=%d tick-hz=%d", cfg.Hz, cfg.TickHz)
	}

	h := newHost(cfg.Output, cfg.Flash)
	h.t = newHostTime(period)
	step, err := newApp(h)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-t.C:
				h.t.advance(now)
			}
		}
	})
	g.Go(func() error {
		var tick uint64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-h.t.Ticks():
				if step != nil {
					if err := step(); err != nil {
						return err
					}
				}
				tick++
				if cfg.Ticks > 0 && tick >= cfg.Ticks {
					return errTicksDone
				}
			}
		}
	})
	err = g.Wait()
	if n := h.t.Dropped(); n > 0 {
		h.logger.WriteLineString(fmt.Sprintf("headless: %d ticks dropped", n))
	}
	if err != nil && !errors.Is(err, errTicksDone) {
		return err
	}
	return nil
}
