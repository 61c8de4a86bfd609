//go:build tinygo && !baremetal

package hal

import (
	"fmt"
	"runtime"
)

// New returns the HAL for TinyGo host targets such as linux or wasm.
// There is no pin mapping: the LED is logged and flash is volatile.
func New() HAL {
	l := consoleLogger{}
	led := &consoleLED{logger: l, target: "tinygo/" + runtime.GOOS}
	return &consoleHAL{
		logger: l,
		led:    led,
		gpio:   newVirtualGPIO(demoPins(led)),
		t:      newTickerTime(),
		flash:  NewMemFlash(64*1024, 4096),
	}
}

type consoleHAL struct {
	logger consoleLogger
	led    *consoleLED
	gpio   GPIO
	t      *tickerTime
	flash  Flash
}

func (h *consoleHAL) Logger() Logger { return h.logger }
func (h *consoleHAL) LED() LED       { return h.led }
func (h *consoleHAL) GPIO() GPIO     { return h.gpio }
func (h *consoleHAL) Flash() Flash   { return h.flash }
func (h *consoleHAL) Time() Time     { return h.t }

type consoleLogger struct{}

func (consoleLogger) WriteLineString(s string) { println(s) }
func (consoleLogger) WriteLineBytes(b []byte)  { println(string(b)) }

type consoleLED struct {
	logger consoleLogger
	target string
	on     bool
}

func (l *consoleLED) set(on bool) {
	l.on = on
	state := "LOW"
	if on {
		state = "HIGH"
	}
	l.logger.WriteLineString(fmt.Sprintf("led: %s (%s)", state, l.target))
}

func (l *consoleLED) High() { l.set(true) }
func (l *consoleLED) Low()  { l.set(false) }
