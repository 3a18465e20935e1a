package handdrv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferFromAsRoundTrip(t *testing.T) {
	b := BufferFrom(uint32(0x11223344))
	assert.Equal(t, uint32(0x11223344), As[uint32](b))

	fb := BufferFrom(float64(3.25))
	assert.Equal(t, float64(3.25), As[float64](fb))

	bb := BufferFrom(true)
	assert.Equal(t, true, As[bool](bb))
}

func TestBufferFromPanicsOnOversizedType(t *testing.T) {
	assert.Panics(t, func() {
		BufferFrom([16]byte{})
	})
}

func TestFirmwareVersionFromU32(t *testing.T) {
	v := FirmwareVersionFromU32(0x04030201)
	assert.Equal(t, FirmwareVersion{Major: 1, Minor: 2, Patch: 3, Pre: 4}, v)
}

func TestFirmwareVersionLessAndAtLeast(t *testing.T) {
	a := FirmwareVersion{Major: 3, Minor: 0, Patch: 0, Pre: 0}
	b := FirmwareVersion{Major: 3, Minor: 0, Patch: 1, Pre: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.AtLeast(a))
	assert.True(t, a.AtLeast(a))
}

func TestFirmwareVersionComparesPreTag(t *testing.T) {
	a := FirmwareVersion{Major: 6, Minor: 4, Patch: 0, Pre: 'B'}
	b := FirmwareVersion{Major: 6, Minor: 4, Patch: 0, Pre: 'J'}
	assert.True(t, a.Less(b))
}

func TestFirmwareVersionString(t *testing.T) {
	v := FirmwareVersion{Major: 1, Minor: 2, Patch: 3, Pre: 0}
	assert.Equal(t, "1.2.3-0", v.String())
}

func TestTimeoutErrorUnwrapsToSentinel(t *testing.T) {
	err := &TimeoutError{StorageID: 5}
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestFirmwareIncompatibleErrorUnwrapsToSentinel(t *testing.T) {
	err := &FirmwareIncompatibleError{
		Component: "hand",
		Got:       FirmwareVersion{Major: 2},
		Want:      FirmwareVersion{Major: 3},
	}
	assert.True(t, errors.Is(err, ErrFirmwareIncompatible))
	assert.Contains(t, err.Error(), "hand")
}
