package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wuji-robotics/handdrv"
)

func TestEncodeDecodeControlWord(t *testing.T) {
	on := encodeWire(PolicyControlWord, 2, handdrv.BufferFrom(true))
	assert.Equal(t, uint64(1), on)
	off := encodeWire(PolicyControlWord, 2, handdrv.BufferFrom(false))
	assert.Equal(t, uint64(5), off)

	assert.Equal(t, true, handdrv.As[bool](decodeWire(PolicyControlWord, 2, 1)))
	assert.Equal(t, false, handdrv.As[bool](decodeWire(PolicyControlWord, 2, 5)))
}

func TestEncodeDecodeEffortLimitRoundTrip(t *testing.T) {
	amps := 1.5
	wire := encodeWire(PolicyEffortLimit, 2, handdrv.BufferFrom(amps))
	assert.Equal(t, uint64(1500), wire)

	back := handdrv.As[float64](decodeWire(PolicyEffortLimit, 2, wire))
	assert.InDelta(t, amps, back, 1e-9)
}

func TestEncodeDecodePositionRoundTrip(t *testing.T) {
	angle := 1.2345
	wire := encodeWire(PolicyPosition, 4, handdrv.BufferFrom(angle))
	back := handdrv.As[float64](decodeWire(PolicyPosition, 4, wire))
	assert.InDelta(t, angle, back, 1e-6)
}

func TestEncodeDecodePositionReversedNegatesRaw(t *testing.T) {
	angle := 0.5
	plain := encodeWire(PolicyPosition, 4, handdrv.BufferFrom(angle))
	reversed := encodeWire(PolicyPositionReversed, 4, handdrv.BufferFrom(angle))

	plainRaw := int32(uint32(plain))
	reversedRaw := int32(uint32(reversed))
	assert.Equal(t, -plainRaw, reversedRaw)

	back := handdrv.As[float64](decodeWire(PolicyPositionReversed, 4, reversed))
	assert.InDelta(t, angle, back, 1e-6)
}

func TestEncodeDecodeRawPassthrough(t *testing.T) {
	var b handdrv.Buffer8
	b[0], b[1] = 0xAB, 0xCD
	wire := encodeWire(PolicyNone, 2, b)
	assert.Equal(t, uint64(0xCDAB), wire)

	back := decodeWire(PolicyNone, 2, wire)
	assert.Equal(t, byte(0xAB), back[0])
	assert.Equal(t, byte(0xCD), back[1])
}

func TestClampInt32(t *testing.T) {
	assert.Equal(t, int32(1<<31-1), clampInt32(1e12))
	assert.Equal(t, int32(-(1 << 31)), clampInt32(-1e12))
	assert.Equal(t, int32(42), clampInt32(42.4))
}
