package app

import (
	"chibi/hal"
)

// Run starts the demo on h and feeds it the HAL tick stream forever
// (firmware entrypoint). A halted system parks here.
func Run(h hal.HAL, cfg Config) {
	a, err := New(h, cfg)
	if err != nil {
		h.Logger().WriteLineString("nil: " + err.Error())
		select {}
	}
	for range h.Time().Ticks() {
		if err := a.Step(); err != nil {
			h.Logger().WriteLineString("nil: " + err.Error())
			select {}
		}
	}
}
