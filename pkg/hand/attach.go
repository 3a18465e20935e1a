package hand

import (
	"time"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/latency"
	"github.com/wuji-robotics/handdrv/pkg/pdo"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// AttachController runs the PDO attach sequence (§4.6: disable
// joints, set streaming control mode, configure PDO IDs/interval,
// enable PDO, restore previously enabled joints) and starts the 500 Hz
// loop driving ctrl. Fails with ErrControllerAttached if a controller
// or latency test is already attached.
func (h *Hand) AttachController(ctrl pdo.Controller, upstreamEnabled bool, timeout time.Duration) (*ControllerHandle, error) {
	h.guardOwner()
	if !h.attached.CompareAndSwap(false, true) {
		return nil, handdrv.ErrControllerAttached
	}

	prevEnabled, err := h.prepareAttach(upstreamEnabled, timeout)
	if err != nil {
		h.attached.Store(false)
		return nil, err
	}

	pdoH, err := h.pdoEngine.AttachController(ctrl, upstreamEnabled)
	if err != nil {
		h.attached.Store(false)
		return nil, err
	}

	h.restoreJoints(prevEnabled, timeout)
	return &ControllerHandle{hand: h, pdoH: pdoH}, nil
}

// prepareAttach performs every SDO-side step of the attach sequence
// ahead of starting the PDO loop, returning each joint's previous
// Enabled state so the caller can restore it afterward.
func (h *Hand) prepareAttach(upstreamEnabled bool, timeout time.Duration) ([wireNumFingers][wireNumJoints]bool, error) {
	var prevEnabled [wireNumFingers][wireNumJoints]bool
	for f := 0; f < wireNumFingers; f++ {
		for j := 0; j < wireNumJoints; j++ {
			jt := h.fingers[f].joints[j]
			prevEnabled[f][j] = handdrv.As[bool](jt.Get(Enabled))
			if err := jt.SetEnabled(false, timeout); err != nil {
				return prevEnabled, err
			}
			if err := jt.Write(ControlMode, handdrv.BufferFrom(uint16(controlModeStreaming)), timeout); err != nil {
				return prevEnabled, err
			}
		}
	}

	tpdoID := uint16(0)
	if upstreamEnabled {
		tpdoID = uint16(wire.PDOReadPositionsCurErr)
	}
	if err := h.store.Write(h.dict.handIDs[TPdoID], handdrv.BufferFrom(tpdoID), timeout); err != nil {
		return prevEnabled, err
	}
	if err := h.store.Write(h.dict.handIDs[RPdoID], handdrv.BufferFrom(uint16(wire.PDOWriteIDControl)), timeout); err != nil {
		return prevEnabled, err
	}
	if err := h.store.Write(h.dict.handIDs[PdoInterval], handdrv.BufferFrom(uint32(pdoIntervalUs)), timeout); err != nil {
		return prevEnabled, err
	}
	if err := h.store.Write(h.dict.handIDs[PdoEnabled], handdrv.BufferFrom(uint8(1)), timeout); err != nil {
		return prevEnabled, err
	}
	return prevEnabled, nil
}

func (h *Hand) restoreJoints(prevEnabled [wireNumFingers][wireNumJoints]bool, timeout time.Duration) {
	for f := 0; f < wireNumFingers; f++ {
		for j := 0; j < wireNumJoints; j++ {
			if prevEnabled[f][j] {
				_ = h.fingers[f].joints[j].SetEnabled(true, timeout)
			}
		}
	}
}

// runDetachSequence reverses the attach sequence: disable joints, set
// baseline control mode, disable PDO, restore previously enabled
// joints (per §4.6's detach contract).
func (h *Hand) runDetachSequence() error {
	var prevEnabled [wireNumFingers][wireNumJoints]bool
	for f := 0; f < wireNumFingers; f++ {
		for j := 0; j < wireNumJoints; j++ {
			jt := h.fingers[f].joints[j]
			prevEnabled[f][j] = handdrv.As[bool](jt.Get(Enabled))
			_ = jt.SetEnabled(false, DefaultTimeout)
			_ = jt.Write(ControlMode, handdrv.BufferFrom(uint16(controlModeBaseline)), DefaultTimeout)
		}
	}
	err := h.store.Write(h.dict.handIDs[PdoEnabled], handdrv.BufferFrom(uint8(0)), DefaultTimeout)
	h.restoreJoints(prevEnabled, DefaultTimeout)
	return err
}

// LatencyHandle represents a running latency test; Stop ends it and
// releases the attach exclusivity lock.
type LatencyHandle struct {
	hand   *Hand
	handle *pdo.Handle
	tester *latency.Tester
}

// StartLatencyTest begins the alternate PDO mode that stamps and
// correlates round-trip timestamps, sharing the same single-attachment
// exclusivity as AttachController.
func (h *Hand) StartLatencyTest() (*LatencyHandle, error) {
	h.guardOwner()
	if !h.attached.CompareAndSwap(false, true) {
		return nil, handdrv.ErrControllerAttached
	}
	tester := latency.New(h.pdoEngine, h.log)
	pdoHandle, err := tester.Start()
	if err != nil {
		h.attached.Store(false)
		return nil, err
	}
	return &LatencyHandle{hand: h, handle: pdoHandle, tester: tester}, nil
}

// Samples returns every correlated round trip observed so far.
func (lh *LatencyHandle) Samples() []latency.Sample { return lh.tester.Samples() }

// Stop ends the latency test and releases the attach exclusivity lock.
func (lh *LatencyHandle) Stop() {
	lh.handle.Stop()
	lh.hand.attached.Store(false)
}
