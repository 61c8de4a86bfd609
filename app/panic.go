package app

import (
	"fmt"
	"strings"

	"chibi/hal"
	"chibi/kernel"
)

// haltHook reports a halt on the HAL logger and lights the LED, the only
// indicator left once the kernel stopped.
func haltHook(h hal.HAL) func(reason string) {
	return func(reason string) {
		if l := h.Logger(); l != nil {
			l.WriteLineString("nil halt: " + reason)
		}
		if led := h.LED(); led != nil {
			led.High()
		}
	}
}

// panicHandler dumps a thread panic before the kernel halts.
func panicHandler(h hal.HAL) func(kernel.PanicInfo) {
	return func(info kernel.PanicInfo) {
		l := h.Logger()
		if l == nil {
			return
		}
		l.WriteLineString(fmt.Sprintf("nil panic: thread=%s prio=%d panic=%v", info.Thread, info.Prio, info.Value))
		if len(info.Stack) == 0 {
			l.WriteLineString("stack: unavailable")
			return
		}
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			l.WriteLineString(line)
		}
	}
}
