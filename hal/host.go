//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	gpio   GPIO
	t      *hostTime
	flash  Flash
}

// New returns a host HAL implementation logging to stdout, with a file
// backed flash.
func New() HAL {
	return newHost(os.Stdout, nil)
}

// newHost returns a host HAL writing to w. A nil flash selects the file
// backed one.
func newHost(w io.Writer, flash Flash) *hostHAL {
	logger := &hostLogger{w: w}
	led := &hostLED{logger: logger}
	if flash == nil {
		flash = newHostFlash()
	}
	return &hostHAL{
		logger: logger,
		led:    led,
		gpio:   newVirtualGPIO(demoPins(led)),
		t:      newHostTime(time.Second / DefaultTickHz),
		flash:  flash,
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) LED() LED       { return h.led }
func (h *hostHAL) GPIO() GPIO     { return h.gpio }
func (h *hostHAL) Flash() Flash   { return h.flash }
func (h *hostHAL) Time() Time     { return h.t }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.logger.WriteLineString("led: HIGH")
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.logger.WriteLineString("led: LOW")
}
