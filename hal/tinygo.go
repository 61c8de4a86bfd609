//go:build tinygo && baremetal

package hal

import (
	"machine"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	gpio   GPIO
	t      *tickerTime
	flash  Flash
}

// New returns a Pico 2 (RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	led := &pinLED{pin: ledPin}
	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    led,
		gpio:   newVirtualGPIO(demoPins(led)),
		t:      newTickerTime(),
		flash:  newRP2Flash(),
	}
}

func (h *tinyGoHAL) Logger() Logger { return h.logger }
func (h *tinyGoHAL) LED() LED       { return h.led }
func (h *tinyGoHAL) GPIO() GPIO     { return h.gpio }
func (h *tinyGoHAL) Flash() Flash   { return h.flash }
func (h *tinyGoHAL) Time() Time     { return h.t }
