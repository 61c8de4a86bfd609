package objcache

import (
	"errors"
	"fmt"

	"chibi/hal"
)

var ErrOutOfRange = errors.New("objcache: block out of flash range")

// FlashStore maps cached objects onto erase blocks of a flash device.
// Group g, key k lives in block g*BlocksPerGroup+k.
type FlashStore struct {
	flash          hal.Flash
	blockSize      uint32
	blocksPerGroup uint32
}

// NewFlashStore returns a store over f. Groups are blocksPerGroup erase
// blocks wide.
func NewFlashStore(f hal.Flash, blocksPerGroup uint32) (*FlashStore, error) {
	bs := f.EraseBlockBytes()
	if bs == 0 || blocksPerGroup == 0 {
		return nil, fmt.Errorf("%w: flash erase block %d, %d blocks per group", ErrBadConfig, bs, blocksPerGroup)
	}
	return &FlashStore{flash: f, blockSize: bs, blocksPerGroup: blocksPerGroup}, nil
}

// BlockSize returns the size of an erase block, the largest object size
// the store supports.
func (fs *FlashStore) BlockSize() int { return int(fs.blockSize) }

func (fs *FlashStore) offset(obj *Object) (uint32, error) {
	if obj.Key >= fs.blocksPerGroup || len(obj.Data) > int(fs.blockSize) {
		return 0, fmt.Errorf("%w: %d/%d", ErrOutOfRange, obj.Group, obj.Key)
	}
	block := uint64(obj.Group)*uint64(fs.blocksPerGroup) + uint64(obj.Key)
	off := block * uint64(fs.blockSize)
	if off+uint64(fs.blockSize) > uint64(fs.flash.SizeBytes()) {
		return 0, fmt.Errorf("%w: %d/%d", ErrOutOfRange, obj.Group, obj.Key)
	}
	return uint32(off), nil
}

// Read is a ReadFunc.
func (fs *FlashStore) Read(obj *Object) error {
	off, err := fs.offset(obj)
	if err != nil {
		return err
	}
	_, err = fs.flash.ReadAt(obj.Data, off)
	return err
}

// Write is a WriteFunc erasing the block before programming it.
func (fs *FlashStore) Write(obj *Object) error {
	off, err := fs.offset(obj)
	if err != nil {
		return err
	}
	if err := fs.flash.Erase(off, fs.blockSize); err != nil {
		return err
	}
	_, err = fs.flash.WriteAt(obj.Data, off)
	return err
}
