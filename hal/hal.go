package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// LED is a minimal output pin abstraction.
type LED interface {
	High()
	Low()
}

var (
	ErrNotImplemented          = errors.New("not implemented")
	ErrFlashWriteRequiresErase = errors.New("flash write requires erase")
)

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only. Erased
// bytes read as 0xFF and programming can only clear bits.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Time provides a base tick stream.
//
// The tick duration is platform-defined, the kernel tick is derived from it.
type Time interface {
	Ticks() <-chan uint64
}

// HAL provides the only contact point between the kernel simulation and
// the outside world.
type HAL interface {
	Logger() Logger
	LED() LED
	GPIO() GPIO
	Flash() Flash
	Time() Time
}
