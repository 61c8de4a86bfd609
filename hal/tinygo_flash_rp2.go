//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import (
	"fmt"
	"machine"
)

// rp2Flash is the part of the on-board flash after the firmware image,
// as exposed by machine.Flash.
type rp2Flash struct {
	size, block uint32
}

func newRP2Flash() Flash {
	clamp := func(v int64) uint32 { return uint32(min(max(v, 0), int64(^uint32(0)))) }
	return rp2Flash{size: clamp(machine.Flash.Size()), block: clamp(machine.Flash.EraseBlockSize())}
}

func (f rp2Flash) SizeBytes() uint32       { return f.size }
func (f rp2Flash) EraseBlockBytes() uint32 { return f.block }

func (f rp2Flash) ReadAt(p []byte, off uint32) (int, error) {
	n, err := checkRange("read", f.size, off, len(p))
	if err != nil {
		return 0, err
	}
	n, err = machine.Flash.ReadAt(p[:n], int64(off))
	if err != nil {
		return n, fmt.Errorf("flash read at %d: %w", off, err)
	}
	return n, nil
}

func (f rp2Flash) WriteAt(p []byte, off uint32) (int, error) {
	n, err := checkRange("write", f.size, off, len(p))
	if err != nil {
		return 0, err
	}
	n, err = machine.Flash.WriteAt(p[:n], int64(off))
	if err != nil {
		return n, fmt.Errorf("flash write at %d: %w", off, err)
	}
	return n, nil
}

func (f rp2Flash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	if err := checkErase(f.size, f.block, off, size); err != nil {
		return err
	}
	return machine.Flash.EraseBlocks(int64(off/f.block), int64(size/f.block))
}
