package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// SweepFrequency is the SDO engine's nominal tick rate.
const SweepFrequency = 199

var sweepInterval = time.Second / time.Duration(SweepFrequency)

// sweepEngine is the SDO request/reply servicing thread: it owns the
// SDO frame builder and drives every cell's operation state machine
// once per tick, plus the raw SDO slot pool. It is the Go realization
// of the source's sdo_thread_main.
type sweepEngine struct {
	store *Store
	fb    *wire.FrameBuilder
	log   *logrus.Entry

	heartbeatID      atomic.Int64 // -1 when no host-heartbeat cell is registered
	heartbeatCounter byte         // sweep-thread-only, no synchronization needed

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// StartSweep launches the SDO sweep thread bound to fb. heartbeatID
// names the storage ID of the HOST_HEARTBEAT cell whose write is
// re-issued on every tick that finds the cell idle (its previous
// operation completed), or -1 to disable the watchdog keep-alive; it may be changed
// later via EnableHostHeartbeat once the construction sequence has
// determined the tpdo_proactively_report feature gate.
func (s *Store) StartSweep(fb *wire.FrameBuilder, heartbeatID int) {
	e := &sweepEngine{
		store:  s,
		fb:     fb,
		log:    s.log,
		stopCh: make(chan struct{}),
	}
	e.heartbeatID.Store(int64(heartbeatID))
	s.sweep = e
	e.wg.Add(1)
	go e.run()
}

// EnableHostHeartbeat switches the sweep thread's watchdog re-issue
// target to storageID, taking effect on the next tick.
func (s *Store) EnableHostHeartbeat(storageID int) {
	s.sweep.heartbeatID.Store(int64(storageID))
}

// DisableHostHeartbeat stops the sweep thread's watchdog re-issue.
func (s *Store) DisableHostHeartbeat() {
	s.sweep.heartbeatID.Store(-1)
}

// StopSweep signals the sweep thread to exit and waits for it to join.
func (s *Store) StopSweep() {
	if s.sweep == nil {
		return
	}
	close(s.sweep.stopCh)
	s.sweep.wg.Wait()
}

func (e *sweepEngine) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *sweepEngine) tick() {
	s := e.store
	e.reissueHeartbeat()

	now := time.Now().UnixNano()
	for i := range s.cells {
		e.tickCell(&s.cells[i], now)
	}
	e.serviceRawSlots(now)
	e.fb.Finalize()
}

func (e *sweepEngine) reissueHeartbeat() {
	id := e.heartbeatID.Load()
	if id < 0 {
		return
	}
	c := &e.store.cells[id]
	if mode, _ := c.loadOp(); mode != ModeNone {
		return
	}
	e.heartbeatCounter++
	c.setHostValue(handdrv.BufferFrom(e.heartbeatCounter))
	c.deadline.Store(neverDeadline)
	c.storeOp(ModeWrite, StateWaiting)
}

// tickCell drives one cell's operation state machine forward by one
// tick, per spec.md §4.4's numbered steps. A cell that transitions
// WAITING→READING/WRITING in this same tick goes on to emit its wire
// record in the same tick, matching the source's cascaded step order.
func (e *sweepEngine) tickCell(c *Cell, now int64) {
	mode, state := c.loadOp()
	if mode == ModeNone {
		return
	}

	if c.Policy&PolicyMasked != 0 {
		// Invariant 6: a masked cell completes instantly with no wire
		// activity at all.
		state = StateSuccess
	}

	if state == StateSuccess {
		e.complete(c, true)
		return
	}

	if state == StateWaiting {
		if mode == ModeRead {
			state = StateReading
		} else {
			state = StateWriting
		}
		c.storeOp(mode, state)
	}

	if now >= c.deadline.Load() {
		e.complete(c, false)
		return
	}

	if state == StateReading || state == StateWritingConfirming {
		e.emitRead(c.Index, c.SubIndex)
	}
	if state == StateWriting {
		e.emitWrite(c)
		c.storeOp(mode, StateWritingConfirming)
	}
}

// complete snapshots and clears a cell's callback, moving it back to
// NONE with a release store, then invokes the callback outside of any
// lock — per §4.4's completion-ordering rule, the mode→NONE store must
// happen before the callback runs so the cell is observably free to
// the caller's continuation.
func (e *sweepEngine) complete(c *Cell, success bool) {
	cb := c.callback
	ctx := c.callbackCtx
	c.callback = nil
	c.storeOp(ModeNone, StateSuccess)
	if cb != nil {
		cb(ctx, success)
	}
}

func (e *sweepEngine) emitRead(index uint16, subIndex uint8) {
	dst, err := e.fb.Allocate(4)
	if err != nil {
		e.log.Warnf("sdo sweep: allocate read record for %#04x:%d: %v", index, subIndex, err)
		return
	}
	copy(dst, wire.PutSDOReadRequest(nil, index, subIndex))
}

func (e *sweepEngine) emitWrite(c *Cell) {
	value := encodeWire(c.Policy, c.Size, c.hostValue())
	rec, err := wire.PutSDOWriteRequest(nil, c.Index, c.SubIndex, value, c.Size)
	if err != nil {
		e.log.Errorf("sdo sweep: build write record for %#04x:%d: %v", c.Index, c.SubIndex, err)
		return
	}
	dst, err := e.fb.Allocate(len(rec))
	if err != nil {
		e.log.Warnf("sdo sweep: allocate write record for %#04x:%d: %v", c.Index, c.SubIndex, err)
		return
	}
	copy(dst, rec)
}

// serviceRawSlots drives every PENDING raw slot into READING/WRITING
// and emits its wire record, and fails any slot past its deadline.
// Writes to raw slots are funneled through this thread specifically to
// avoid racing the SDO frame builder from two contexts (§4.5).
func (e *sweepEngine) serviceRawSlots(now int64) {
	for i := range e.store.raw {
		slot := &e.store.raw[i]
		slot.mu.Lock()
		if !slot.inUse {
			slot.mu.Unlock()
			continue
		}
		state := slot.state
		if state == RawPending {
			if now >= slot.deadline {
				slot.state = RawFailed
				slot.cond.Broadcast()
				slot.mu.Unlock()
				continue
			}
			if slot.mode == ModeRead {
				slot.state = RawReading
				index, subIndex := slot.index, slot.subIndex
				slot.mu.Unlock()
				e.emitRead(index, subIndex)
				continue
			}
			slot.state = RawWriting
			index, subIndex, size := slot.index, slot.subIndex, slot.writeSize
			var raw uint64
			for b := 0; b < size; b++ {
				raw |= uint64(slot.writeBuf[b]) << (8 * b)
			}
			slot.mu.Unlock()
			rec, err := wire.PutSDOWriteRequest(nil, index, subIndex, raw, size)
			if err != nil {
				e.log.Errorf("raw sdo: build write record for %#04x:%d: %v", index, subIndex, err)
				continue
			}
			dst, aerr := e.fb.Allocate(len(rec))
			if aerr != nil {
				e.log.Warnf("raw sdo: allocate write record for %#04x:%d: %v", index, subIndex, aerr)
				continue
			}
			copy(dst, rec)
			continue
		}
		if (state == RawReading || state == RawWriting) && now >= slot.deadline {
			slot.state = RawFailed
			slot.cond.Broadcast()
		}
		slot.mu.Unlock()
	}
}
