// Package pdo implements the 500 Hz process-data control loop: the
// downstream target-position stream, the upstream actual-position and
// error-code mirrors, and the self-correcting executor both the
// filtering controller and the latency tester ride on. It is the Go
// realization of the source's Handler's PDO thread.
package pdo

import "github.com/wuji-robotics/handdrv/pkg/wire"

// JointPositions is a snapshot of all twenty joints' radian positions,
// finger-major joint-minor, matching the wire layout's ordering.
type JointPositions [wire.NumFingers][wire.NumJoints]float64

// Controller is the per-tick filtering capability the PDO loop drives.
// Setup is called once, before the loop's first tick, with the loop's
// tick frequency in Hz (pdo.Frequency), mirroring the source's
// IRealtimeController::setup contract; a controller with no frequency-
// dependent state can leave it empty. Step is called once per tick
// with the latest actual positions (which may be stale if upstream is
// disabled) and returns the targets to send downstream this tick.
// Implementations live in pkg/controller.
type Controller interface {
	Setup(frequencyHz float64)
	Step(actual JointPositions) JointPositions
}

// ControllerFunc adapts a plain stepping function to the Controller
// interface for controllers with no frequency-dependent setup, such as
// a static pass-through.
type ControllerFunc func(actual JointPositions) JointPositions

func (f ControllerFunc) Setup(frequencyHz float64)             {}
func (f ControllerFunc) Step(actual JointPositions) JointPositions { return f(actual) }
