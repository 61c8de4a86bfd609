package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalPinRead(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	pin := newSignalPinWithClock("SIG", 10*time.Second, 2*time.Second, clock)
	require.NotNil(t, pin)

	level, err := pin.Read()
	require.NoError(t, err)
	assert.True(t, level, "high at t=0")

	now = now.Add(3 * time.Second)
	level, _ = pin.Read()
	assert.False(t, level, "low at t=3s")

	now = now.Add(8 * time.Second) // t=11s => phase 1s
	level, _ = pin.Read()
	assert.True(t, level, "high at t=11s")

	assert.Error(t, pin.Write(true))
	assert.Error(t, pin.Configure(GPIOModeOutput, GPIOPullNone))
}

func TestEdgeDetector(t *testing.T) {
	now := time.Unix(0, 0)
	pin := newSignalPinWithClock("SIG", 10*time.Millisecond, 5*time.Millisecond, func() time.Time { return now })
	d, err := NewEdgeDetector(pin)
	require.NoError(t, err)

	changed, level, err := d.Sample()
	require.NoError(t, err)
	assert.False(t, changed, "first sample latches")
	assert.True(t, level)

	now = now.Add(2 * time.Millisecond)
	changed, _, _ = d.Sample()
	assert.False(t, changed)

	now = now.Add(4 * time.Millisecond)
	changed, level, _ = d.Sample()
	assert.True(t, changed)
	assert.False(t, level)

	_, err = NewEdgeDetector(nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestVirtualPin(t *testing.T) {
	p := newVirtualPin("GPIO1", GPIOCapInput|GPIOCapOutput|GPIOCapPullUp)
	_, err := p.Read()
	assert.Error(t, err, "not configured")

	require.NoError(t, p.Configure(GPIOModeInput, GPIOPullUp))
	level, err := p.Read()
	require.NoError(t, err)
	assert.True(t, level, "pulled up")
	assert.Error(t, p.Write(false))
	assert.Error(t, p.Configure(GPIOModeInput, GPIOPullDown))

	require.NoError(t, p.Configure(GPIOModeOutput, GPIOPullNone))
	require.NoError(t, p.Write(false))
	level, _ = p.Read()
	assert.False(t, level)
}
