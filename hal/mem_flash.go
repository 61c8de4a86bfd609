package hal

import "sync"

type memFlash struct {
	mu    sync.Mutex
	data  []byte
	block uint32
}

// NewMemFlash returns a volatile flash device of size bytes, fully erased.
// size must be a multiple of eraseBlock.
func NewMemFlash(size, eraseBlock uint32) Flash {
	f := &memFlash{data: make([]byte, size), block: eraseBlock}
	for i := range f.data {
		f.data[i] = 0xFF
	}
	return f
}

func (f *memFlash) SizeBytes() uint32       { return uint32(len(f.data)) }
func (f *memFlash) EraseBlockBytes() uint32 { return f.block }

func (f *memFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := checkRange("read", f.SizeBytes(), off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, f.data[off:]), nil
}

func (f *memFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := checkRange("write", f.SizeBytes(), off, len(p))
	if err != nil {
		return 0, err
	}
	p = p[:n]
	if !canProgram(f.data[off:], p) {
		return 0, ErrFlashWriteRequiresErase
	}
	return copy(f.data[off:], p), nil
}

func (f *memFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size == 0 {
		return nil
	}
	if err := checkErase(f.SizeBytes(), f.block, off, size); err != nil {
		return err
	}
	for i := off; i < off+size; i++ {
		f.data[i] = 0xFF
	}
	return nil
}
