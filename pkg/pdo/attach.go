package pdo

import (
	"time"

	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// ControllerHandle is returned by AttachController; Stop ends the loop
// and returns the controller instance the caller handed in, mirroring
// the source's "attach returns a handle whose destruction detaches"
// contract (spec.md §6).
type ControllerHandle struct {
	*Handle
	Controller Controller
}

// AttachController starts the 500 Hz control loop driving controller.
// When upstreamEnabled, the loop solicits upstream frames every tick
// until the first one arrives (the bootstrap phase), then pipelines
// the read-request into the same write PDO's read_id field for every
// subsequent tick, per spec.md §4.6.
func (e *Engine) AttachController(ctrl Controller, upstreamEnabled bool) (*ControllerHandle, error) {
	ctrl.Setup(Frequency)

	startVer := e.upstreamVer.Load()
	bootstrapped := !upstreamEnabled

	tick := func(fb *wire.FrameBuilder, elapsed, scheduled time.Duration) {
		if !bootstrapped {
			rec := wire.PutPDOReadRequest(nil, wire.PDOReadPositionsCurErr)
			if dst, err := fb.Allocate(len(rec)); err == nil {
				copy(dst, rec)
			}
			if e.upstreamVer.Load() == startVer {
				return
			}
			bootstrapped = true
		}

		actual := e.ActualPositions()
		targets := ctrl.Step(actual)
		var wirePos [wire.NumFingers][wire.NumJoints]int32
		for f := 0; f < wire.NumFingers; f++ {
			for j := 0; j < wire.NumJoints; j++ {
				wirePos[f][j] = encodeJointAngle(f, j, targets[f][j])
			}
		}
		readID := byte(0)
		if upstreamEnabled {
			readID = wire.PDOReadPositionsCurErr
		}
		rec := wire.PutPDOWrite(nil, readID, wirePos, uint32(scheduled.Microseconds()))
		if dst, err := fb.Allocate(len(rec)); err == nil {
			copy(dst, rec)
		}
	}

	recv := func(readID byte, payload []byte) {
		switch readID {
		case wire.PDOReadPositionsOnly:
			res, _, ok := wire.ParsePositionsResult(payload)
			if ok {
				e.applyUpstreamPositions(res.Positions)
			}
		case wire.PDOReadPositionsCurErr:
			res, _, ok := wire.ParsePositionsCurErrResult(payload)
			if !ok {
				return
			}
			var positions [wire.NumFingers][wire.NumJoints]int32
			var errs [wire.NumFingers][wire.NumJoints]uint32
			for f := 0; f < wire.NumFingers; f++ {
				for j := 0; j < wire.NumJoints; j++ {
					positions[f][j] = res.Joints[f][j].Position
					errs[f][j] = res.Joints[f][j].ErrorCode
				}
			}
			e.applyUpstreamPositions(positions)
			e.applyUpstreamErrors(errs)
		}
	}

	h, err := e.Run(tick, recv)
	if err != nil {
		return nil, err
	}
	return &ControllerHandle{Handle: h, Controller: ctrl}, nil
}
