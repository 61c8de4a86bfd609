package hal

import (
	"fmt"
	"os"
)

// checkRange clips n bytes at off to a device of size bytes.
func checkRange(op string, size, off uint32, n int) (int, error) {
	if off >= size {
		return 0, fmt.Errorf("flash %s at %d: %w", op, off, os.ErrInvalid)
	}
	return min(n, int(size-off)), nil
}

// checkErase validates an erase request against the device geometry.
func checkErase(size, block, off, n uint32) error {
	if block == 0 || off%block != 0 || n%block != 0 || off >= size || n > size-off {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, n, os.ErrInvalid)
	}
	return nil
}

// canProgram reports whether programming p over old only clears bits.
func canProgram(old, p []byte) bool {
	for i := range p {
		if old[i]&p[i] != p[i] {
			return false
		}
	}
	return true
}
