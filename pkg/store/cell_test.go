package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wuji-robotics/handdrv"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	mode, state := unpack(pack(ModeWrite, StateWritingConfirming))
	assert.Equal(t, ModeWrite, mode)
	assert.Equal(t, StateWritingConfirming, state)
}

func TestCellLoadStoreOp(t *testing.T) {
	var c Cell
	c.storeOp(ModeRead, StateReading)
	mode, state := c.loadOp()
	assert.Equal(t, ModeRead, mode)
	assert.Equal(t, StateReading, state)
}

func TestCellHostValueRoundTrip(t *testing.T) {
	var c Cell
	in := handdrv.BufferFrom(uint32(0xDEADBEEF))
	c.setHostValue(in)
	assert.Equal(t, in, c.hostValue())
}

func TestBumpVersionSkipsZeroOnWraparound(t *testing.T) {
	var c Cell
	c.version.Store(0xFFFFFFFF)
	c.bumpVersion()
	assert.NotEqual(t, uint32(0), c.version.Load())
	assert.Equal(t, uint32(1), c.version.Load())
}

func TestBumpVersionOrdinary(t *testing.T) {
	var c Cell
	c.version.Store(4)
	c.bumpVersion()
	assert.Equal(t, uint32(5), c.version.Load())
}
