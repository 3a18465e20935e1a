package store

import (
	"sync"
	"time"

	"github.com/wuji-robotics/handdrv"
)

// rawSlotCount is the fixed pool size for raw SDO pass-through requests,
// used for diagnostics against indices not represented in the static
// object map.
const rawSlotCount = 4

// RawState is a raw SDO slot's position in its request/reply state
// machine, distinct from Cell's State: the caller installs a request
// as RawPending, and the sweep thread dispatches it (moving it to
// RawReading/RawWriting) on its next tick.
type RawState uint8

const (
	RawIdle RawState = iota
	RawPending
	RawReading
	RawWriting
	RawSuccess
	RawFailed
)

// rawSlot is one entry in the raw SDO pass-through pool. It is guarded
// by its own mutex rather than atomics: unlike a Cell, a raw slot's
// caller blocks on a condition variable for the result, so there is no
// hot-path reason to avoid locking.
type rawSlot struct {
	mu   sync.Mutex
	cond *sync.Cond

	inUse bool
	mode  Mode
	state RawState

	index    uint16
	subIndex uint8

	writeBuf  [8]byte
	writeSize int

	readResult []byte
	deadline   int64
}

// acquireRawSlot finds an unused slot and marks it in-use. Returns nil
// if the pool is exhausted.
func (s *Store) acquireRawSlot() *rawSlot {
	for i := range s.raw {
		slot := &s.raw[i]
		slot.mu.Lock()
		if !slot.inUse {
			slot.inUse = true
			slot.mu.Unlock()
			return slot
		}
		slot.mu.Unlock()
	}
	return nil
}

func (slot *rawSlot) release() {
	slot.mu.Lock()
	slot.inUse = false
	slot.state = RawIdle
	slot.readResult = nil
	slot.mu.Unlock()
}

// RawRead performs a synchronous SDO read against an (index, sub-index)
// pair that need not be represented in the static object dictionary.
// It blocks the calling thread until the sweep thread observes a
// matching response or the deadline expires.
func (s *Store) RawRead(index uint16, subIndex uint8, timeout time.Duration) ([]byte, error) {
	slot := s.acquireRawSlot()
	if slot == nil {
		return nil, handdrv.ErrRawSlotsExhausted
	}
	defer slot.release()

	slot.mu.Lock()
	slot.mode = ModeRead
	slot.index = index
	slot.subIndex = subIndex
	slot.deadline = deadlineFor(timeout)
	slot.state = RawPending
	for slot.state != RawSuccess && slot.state != RawFailed {
		slot.cond.Wait()
	}
	state := slot.state
	result := slot.readResult
	slot.mu.Unlock()

	if state == RawFailed {
		return nil, handdrv.ErrTimeout
	}
	return result, nil
}

// RawWrite performs a synchronous SDO write against an (index,
// sub-index) pair not represented in the static object dictionary.
// data's length must be one of {1,2,4,8}.
func (s *Store) RawWrite(index uint16, subIndex uint8, data []byte, timeout time.Duration) error {
	if len(data) != 1 && len(data) != 2 && len(data) != 4 && len(data) != 8 {
		return handdrv.ErrIllegalArgument
	}
	slot := s.acquireRawSlot()
	if slot == nil {
		return handdrv.ErrRawSlotsExhausted
	}
	defer slot.release()

	slot.mu.Lock()
	slot.mode = ModeWrite
	slot.index = index
	slot.subIndex = subIndex
	slot.writeSize = len(data)
	copy(slot.writeBuf[:], data)
	slot.deadline = deadlineFor(timeout)
	slot.state = RawPending
	for slot.state != RawSuccess && slot.state != RawFailed {
		slot.cond.Wait()
	}
	state := slot.state
	slot.mu.Unlock()

	if state == RawFailed {
		return handdrv.ErrTimeout
	}
	return nil
}
