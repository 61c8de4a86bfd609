//go:build tinygo && baremetal

package hal

import "machine"

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.crlf()
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	l.uart.Write(b)
	l.crlf()
}

func (l *uartLogger) crlf() {
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

type pinLED struct {
	pin machine.Pin
}

func (l *pinLED) High() { l.pin.High() }
func (l *pinLED) Low()  { l.pin.Low() }
