package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuji-robotics/handdrv"
)

func testDescriptors() []Descriptor {
	return []Descriptor{
		{StorageID: 0, Index: 0x5090, SubIndex: 0, Size: 1, Policy: PolicyNone},
		{StorageID: 1, Index: 0x2064, SubIndex: 0, Size: 4, Policy: PolicyPosition},
	}
}

func TestNewBuildsIndexMap(t *testing.T) {
	s := New(testDescriptors(), nil)
	require.Len(t, s.cells, 2)
	c, ok := s.index[key(0x5090, 0)]
	require.True(t, ok)
	assert.Equal(t, 0, c.StorageID)
	assert.Equal(t, neverDeadline, c.deadline.Load())
}

func TestGetVersionDefaults(t *testing.T) {
	s := New(testDescriptors(), nil)
	assert.Equal(t, uint32(0), s.Version(0))
	assert.Equal(t, handdrv.Buffer8{}, s.Get(0))
}

func TestReadAsyncRejectsWhenPending(t *testing.T) {
	s := New(testDescriptors(), nil)
	ok := s.ReadAsync(0, time.Second, nil, handdrv.Buffer8{})
	require.True(t, ok)

	ok = s.ReadAsync(0, time.Second, nil, handdrv.Buffer8{})
	assert.False(t, ok, "a second operation on an already-pending cell must be rejected")

	mode, state := s.cells[0].loadOp()
	assert.Equal(t, ModeRead, mode)
	assert.Equal(t, StateWaiting, state)
}

func TestWriteAsyncInstallsHostValueBeforeOp(t *testing.T) {
	s := New(testDescriptors(), nil)
	in := handdrv.BufferFrom(uint32(7))
	ok := s.WriteAsync(1, in, time.Second, nil, handdrv.Buffer8{})
	require.True(t, ok)
	assert.Equal(t, in, s.Get(1))
}

func TestDeadlineForNeverOnNonPositiveTimeout(t *testing.T) {
	assert.Equal(t, neverDeadline, deadlineFor(0))
	assert.Equal(t, neverDeadline, deadlineFor(-1))
}

func TestDeadlineForFuture(t *testing.T) {
	d := deadlineFor(time.Hour)
	assert.Greater(t, d, time.Now().UnixNano())
}

func TestAcquireRawSlotPoolExhaustion(t *testing.T) {
	s := New(testDescriptors(), nil)

	var acquired []*rawSlot
	for i := 0; i < rawSlotCount; i++ {
		slot := s.acquireRawSlot()
		require.NotNil(t, slot, "slot %d should be available", i)
		acquired = append(acquired, slot)
	}

	assert.Nil(t, s.acquireRawSlot(), "pool should be exhausted after rawSlotCount acquisitions")

	acquired[0].release()
	assert.NotNil(t, s.acquireRawSlot(), "releasing a slot should free it back to the pool")
}

func TestRawWriteRejectsIllegalSize(t *testing.T) {
	s := New(testDescriptors(), nil)
	err := s.RawWrite(0x2000, 0, make([]byte, 3), time.Second)
	assert.ErrorIs(t, err, handdrv.ErrIllegalArgument)
}
