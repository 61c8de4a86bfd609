package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFlashNORSemantics(t *testing.T) {
	f := NewMemFlash(2*256, 256)
	b := make([]byte, 2)
	_, err := f.ReadAt(b, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF}, b)

	_, err = f.WriteAt([]byte{0xA5}, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x5A}, 0)
	assert.ErrorIs(t, err, ErrFlashWriteRequiresErase)
	_, err = f.WriteAt([]byte{0x01}, 0)
	require.NoError(t, err, "clearing bits needs no erase")

	require.NoError(t, f.Erase(0, 256))
	_, _ = f.ReadAt(b, 0)
	assert.Equal(t, byte(0xFF), b[0])

	assert.Error(t, f.Erase(128, 256), "unaligned")
	assert.Error(t, f.Erase(256, 512), "out of range")
	_, err = f.ReadAt(b, 512)
	assert.Error(t, err)
}
