//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath      = "nilsim.flash"
	hostFlashDefaultSizeBytes = 256 * 1024
	hostFlashEraseBlockBytes  = 4096
)

type hostFlash struct {
	mu     sync.Mutex
	f      *os.File
	size   uint32
	erased [hostFlashEraseBlockBytes]byte
}

func newHostFlash() *hostFlash {
	path := os.Getenv("NILSIM_FLASH_PATH")
	if path == "" {
		path = hostFlashDefaultPath
	}
	hf, err := openHostFlash(path, hostFlashDefaultSizeBytes)
	if err != nil {
		return &hostFlash{f: nil}
	}
	return hf
}

// OpenFlash opens the flash image at path, creating an image of size
// bytes when the file is missing or empty.
func OpenFlash(path string, size uint32) (Flash, error) {
	return openHostFlash(path, size)
}

func openHostFlash(path string, size uint32) (*hostFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flash image: %w", err)
	}

	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		if st.Size() > int64(^uint32(0)) {
			_ = f.Close()
			return nil, fmt.Errorf("flash image %s: %w", path, os.ErrInvalid)
		}
		size = uint32(st.Size())
	} else {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("flash image %s: %w", path, err)
		}
	}

	hf := &hostFlash{f: f, size: size}
	for i := range hf.erased {
		hf.erased[i] = 0xFF
	}
	return hf, nil
}

func (f *hostFlash) SizeBytes() uint32 { return f.size }
func (f *hostFlash) EraseBlockBytes() uint32 {
	return hostFlashEraseBlockBytes
}

func (f *hostFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	n, err := checkRange("read", f.size, off, len(p))
	if err != nil {
		return 0, err
	}
	return f.f.ReadAt(p[:n], int64(off))
}

// WriteAt programs p at off. Like NOR flash it can only clear bits, the
// current content is read back to enforce it.
func (f *hostFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	n, err := checkRange("write", f.size, off, len(p))
	if err != nil {
		return 0, err
	}
	p = p[:n]
	old := make([]byte, n)
	if _, err := f.f.ReadAt(old, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	if !canProgram(old, p) {
		return 0, ErrFlashWriteRequiresErase
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *hostFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return ErrNotImplemented
	}
	if size == 0 {
		return nil
	}
	if err := checkErase(f.size, hostFlashEraseBlockBytes, off, size); err != nil {
		return err
	}
	for end := off + size; off < end; off += hostFlashEraseBlockBytes {
		if _, err := f.f.WriteAt(f.erased[:], int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
	}
	return nil
}

func (f *hostFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
