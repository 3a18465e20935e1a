package store

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuji-robotics/handdrv"
)

func newTestSweepEngine(s *Store) *sweepEngine {
	e := &sweepEngine{store: s, log: logrus.NewEntry(logrus.StandardLogger())}
	e.heartbeatID.Store(-1)
	return e
}

func TestTickCellMaskedCompletesInstantly(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x2064, SubIndex: 0, Size: 4, Policy: PolicyMasked}}, nil)
	e := newTestSweepEngine(s)

	var got bool
	c := &s.cells[0]
	c.callback = func(_ handdrv.Buffer8, success bool) { got = success }
	c.storeOp(ModeRead, StateWaiting)

	e.tickCell(c, time.Now().UnixNano())

	mode, _ := c.loadOp()
	assert.Equal(t, ModeNone, mode, "a completed cell returns to NONE")
	assert.True(t, got)
}

func TestTickCellExpiredDeadlineFails(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x2064, SubIndex: 0, Size: 4}}, nil)
	e := newTestSweepEngine(s)

	var got bool
	c := &s.cells[0]
	c.callback = func(_ handdrv.Buffer8, success bool) { got = success }
	c.deadline.Store(time.Now().Add(-time.Second).UnixNano())
	c.storeOp(ModeRead, StateWaiting)

	e.tickCell(c, time.Now().UnixNano())

	mode, _ := c.loadOp()
	assert.Equal(t, ModeNone, mode)
	assert.False(t, got, "a cell past its deadline completes with failure")
}

func TestTickCellNoneIsNoOp(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x2064, SubIndex: 0, Size: 4}}, nil)
	e := newTestSweepEngine(s)
	c := &s.cells[0]
	e.tickCell(c, time.Now().UnixNano())
	mode, state := c.loadOp()
	assert.Equal(t, ModeNone, mode)
	assert.Equal(t, StateSuccess, state)
}

func TestCompleteClearsCallbackBeforeInvoking(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x2064, SubIndex: 0, Size: 4}}, nil)
	e := newTestSweepEngine(s)
	c := &s.cells[0]

	var sawClearedDuringCallback bool
	c.callback = func(_ handdrv.Buffer8, success bool) {
		mode, _ := c.loadOp()
		sawClearedDuringCallback = mode == ModeNone
	}
	c.storeOp(ModeRead, StateReading)

	e.complete(c, true)

	assert.True(t, sawClearedDuringCallback, "the cell must observably be NONE before its callback runs")
	assert.Nil(t, c.callback, "callback reference must be released after completion")
}

func TestReissueHeartbeatDisabledIsNoOp(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x50A0, SubIndex: 1, Size: 4, Policy: PolicyHostHeartbeat}}, nil)
	e := newTestSweepEngine(s)

	e.reissueHeartbeat()

	mode, _ := s.cells[0].loadOp()
	assert.Equal(t, ModeNone, mode)
}

func TestReissueHeartbeatIncrementsAndWrites(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x50A0, SubIndex: 1, Size: 4, Policy: PolicyHostHeartbeat}}, nil)
	e := newTestSweepEngine(s)
	e.heartbeatID.Store(0)

	e.reissueHeartbeat()

	mode, state := s.cells[0].loadOp()
	assert.Equal(t, ModeWrite, mode)
	assert.Equal(t, StateWaiting, state)
	assert.Equal(t, byte(1), handdrv.As[byte](s.cells[0].hostValue()))
}

func TestReissueHeartbeatSkipsWhenCellBusy(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x50A0, SubIndex: 1, Size: 4, Policy: PolicyHostHeartbeat}}, nil)
	e := newTestSweepEngine(s)
	e.heartbeatID.Store(0)

	s.cells[0].storeOp(ModeRead, StateReading)
	e.reissueHeartbeat()

	mode, state := s.cells[0].loadOp()
	assert.Equal(t, ModeRead, mode, "an in-flight operation must not be clobbered by the watchdog")
	assert.Equal(t, StateReading, state)
}

func TestEnableDisableHostHeartbeat(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x50A0, SubIndex: 1, Size: 4, Policy: PolicyHostHeartbeat}}, nil)
	s.sweep = newTestSweepEngine(s)

	s.EnableHostHeartbeat(0)
	assert.Equal(t, int64(0), s.sweep.heartbeatID.Load())

	s.DisableHostHeartbeat()
	assert.Equal(t, int64(-1), s.sweep.heartbeatID.Load())
}

func TestServiceRawSlotsFailsExpiredSlot(t *testing.T) {
	s := New([]Descriptor{{StorageID: 0, Index: 0x2064, SubIndex: 0, Size: 4}}, nil)
	e := newTestSweepEngine(s)

	slot := s.acquireRawSlot()
	require.NotNil(t, slot)
	slot.mu.Lock()
	slot.mode = ModeRead
	slot.deadline = time.Now().Add(-time.Second).UnixNano()
	slot.state = RawPending
	slot.mu.Unlock()

	e.serviceRawSlots(time.Now().UnixNano())

	slot.mu.Lock()
	defer slot.mu.Unlock()
	assert.Equal(t, RawFailed, slot.state)
}
