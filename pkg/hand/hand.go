// Package hand is the public surface: the Hand/Finger/Joint scope
// types, the static object dictionary, and the construction sequence
// that brings a claimed USB device up into running SDO+PDO service.
// It composes pkg/transport, pkg/wire, pkg/store, and pkg/pdo the way
// the source's Handler class composes its own building blocks.
package hand

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/pdo"
	"github.com/wuji-robotics/handdrv/pkg/store"
	"github.com/wuji-robotics/handdrv/pkg/transport"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// DefaultTimeout is used by convenience wrappers that don't take an
// explicit timeout.
const DefaultTimeout = 200 * time.Millisecond

// Config mirrors spec.md §6's construction-time configuration options.
type Config struct {
	VID    uint16
	PID    int32 // -1 (the default) matches any product ID
	Serial string

	// Mask is a 20-bit bitmap of joints to exclude from all
	// operations, bit index = finger*4+joint.
	Mask uint32

	// Overrides relocates object dictionary entries to non-default
	// addresses, keyed by the object's symbolic name (see
	// handObjectNames/jointObjectNames in dictionary.go). Typically
	// built from an INI override profile via
	// pkg/config.LoadObjectOverrides. Nil means every object uses its
	// compiled-in address.
	Overrides map[string]IndexOverride

	// EnableOwnerThreadGuard, when true, panics if a public operation
	// is invoked from a goroutine other than the one that called Open.
	// The guard is off unless this is set: the zero value (false)
	// performs no owner check (spec.md §5).
	EnableOwnerThreadGuard bool

	Log *logrus.Entry
}

// Hand is the top-level device scope and the owner of every
// subsystem: transport, wire framing, object store, and the PDO
// engine. Construct via Open.
type Hand struct {
	cfg Config
	log *logrus.Entry

	transport *transport.Transport
	sdoFB     *wire.FrameBuilder
	pdoFB     *wire.FrameBuilder
	store     *store.Store
	pdoEngine *pdo.Engine
	dict      *dictionary

	ownerGoroutine atomic.Uint64
	attached       atomic.Bool // a controller or latency tester is attached

	// Version-gated feature flags resolved once during Open's
	// construction sequence (spec.md §4.8); read-only afterward.
	firmwareFilter bool
	rpdoDirect     bool
	tpdoProactive  bool

	fingers [wireNumFingers]*Finger
}

// guardOwner panics if EnableOwnerThreadGuard is set and the calling
// goroutine isn't the one that opened the Hand. Go has no portable
// thread-identity primitive; this approximates the source's
// thread-ID guard using the current goroutine's stack-derived id via
// runtime, matching the intent (single caller discipline) rather than
// the exact mechanism — see DESIGN.md.
func (h *Hand) guardOwner() {
	if !h.cfg.EnableOwnerThreadGuard {
		return
	}
	cur := goroutineID()
	if !h.ownerGoroutine.CompareAndSwap(0, cur) && h.ownerGoroutine.Load() != cur {
		panic(handdrv.ErrNotOwnerThread)
	}
}

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return hashBytes(buf[:n])
}

func hashBytes(b []byte) uint64 {
	var h uint64 = 1469598103934665603
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

// Finger is the scope for one of the hand's five fingers, exposing
// batched operations over its four joints.
type Finger struct {
	hand   *Hand
	index  int
	joints [wireNumJoints]*Joint
}

// Joint is the leaf scope: one of the twenty physical joints.
type Joint struct {
	hand        *Hand
	finger, idx int
}

// Finger returns the scope for finger i (0=thumb .. 4=pinky).
func (h *Hand) Finger(i int) *Finger {
	if i < 0 || i >= wireNumFingers {
		panic(handdrv.ErrIllegalArgument)
	}
	return h.fingers[i]
}

// Joint returns the scope for joint j (0..3) on finger f.
func (h *Hand) Joint(f, j int) *Joint {
	return h.Finger(f).Joint(j)
}

// Joint returns the scope for joint j (0..3) on this finger.
func (fg *Finger) Joint(j int) *Joint {
	if j < 0 || j >= wireNumJoints {
		panic(handdrv.ErrIllegalArgument)
	}
	return fg.joints[j]
}

func (jt *Joint) id(o JointObject) int {
	return jt.hand.dict.jointIDs[jt.finger][jt.idx][o]
}

// Read synchronously reads object o from this joint, blocking the
// caller until the device replies or timeout elapses.
func (jt *Joint) Read(o JointObject, timeout time.Duration) (handdrv.Buffer8, error) {
	jt.hand.guardOwner()
	return jt.hand.store.Read(jt.id(o), timeout)
}

// ReadAsync issues an asynchronous read, invoking cb (on the SDO
// sweep thread) when it completes or times out.
func (jt *Joint) ReadAsync(o JointObject, timeout time.Duration, cb handdrv.CompletionFunc, ctx handdrv.Buffer8) bool {
	jt.hand.guardOwner()
	return jt.hand.store.ReadAsync(jt.id(o), timeout, cb, ctx)
}

// ReadAsyncUnchecked issues a read and drops it silently if one is
// already pending on this object.
func (jt *Joint) ReadAsyncUnchecked(o JointObject, timeout time.Duration) {
	jt.hand.guardOwner()
	jt.hand.store.ReadAsyncUnchecked(jt.id(o), timeout)
}

// Get returns the object's last-known value without waiting for any
// in-flight operation.
func (jt *Joint) Get(o JointObject) handdrv.Buffer8 {
	return jt.hand.store.Get(jt.id(o))
}

// Version returns the object's monotonic freshness counter.
func (jt *Joint) Version(o JointObject) uint32 {
	return jt.hand.store.Version(jt.id(o))
}

// Write synchronously writes data to object o, blocking until the
// device confirms the value or timeout elapses.
func (jt *Joint) Write(o JointObject, data handdrv.Buffer8, timeout time.Duration) error {
	jt.hand.guardOwner()
	return jt.hand.store.Write(jt.id(o), data, timeout)
}

// WriteAsync issues an asynchronous write, invoking cb when the
// device confirms the value or the deadline expires.
func (jt *Joint) WriteAsync(o JointObject, data handdrv.Buffer8, timeout time.Duration, cb handdrv.CompletionFunc, ctx handdrv.Buffer8) bool {
	jt.hand.guardOwner()
	return jt.hand.store.WriteAsync(jt.id(o), data, timeout, cb, ctx)
}

// WriteAsyncUnchecked issues a write and drops it silently if one is
// already pending on this object.
func (jt *Joint) WriteAsyncUnchecked(o JointObject, data handdrv.Buffer8, timeout time.Duration) {
	jt.hand.guardOwner()
	jt.hand.store.WriteAsyncUnchecked(jt.id(o), data, timeout)
}

// ActualPositionRadians is a typed convenience wrapper over the
// ActualPosition object's cached value.
func (jt *Joint) ActualPositionRadians() float64 {
	return handdrv.As[float64](jt.Get(ActualPosition))
}

// SetTargetPositionRadians synchronously writes a target position in
// radians.
func (jt *Joint) SetTargetPositionRadians(angle float64, timeout time.Duration) error {
	return jt.Write(TargetPosition, handdrv.BufferFrom(angle), timeout)
}

// SetEnabled synchronously writes the joint's CONTROL_WORD enable bit.
func (jt *Joint) SetEnabled(enabled bool, timeout time.Duration) error {
	return jt.Write(Enabled, handdrv.BufferFrom(enabled), timeout)
}

// WriteFinger writes the same object to all four joints of a finger,
// one value per joint (caller-supplied array, length 4), and waits
// for every write to confirm. Returns the first error encountered, if
// any; all four writes are still issued.
func (fg *Finger) WriteFinger(o JointObject, values [wireNumJoints]handdrv.Buffer8, timeout time.Duration) error {
	var firstErr error
	for j := 0; j < wireNumJoints; j++ {
		if err := fg.joints[j].Write(o, values[j], timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteHand writes the same object across all twenty joints
// (caller-supplied 5x4 array, finger-major joint-minor).
func (h *Hand) WriteHand(o JointObject, values [wireNumFingers][wireNumJoints]handdrv.Buffer8, timeout time.Duration) error {
	var firstErr error
	for f := 0; f < wireNumFingers; f++ {
		if err := h.fingers[f].WriteFinger(o, values[f], timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HandRead synchronously reads a hand-level object.
func (h *Hand) HandRead(o HandObject, timeout time.Duration) (handdrv.Buffer8, error) {
	h.guardOwner()
	return h.store.Read(h.dict.handIDs[o], timeout)
}

// HandWrite synchronously writes a hand-level object.
func (h *Hand) HandWrite(o HandObject, data handdrv.Buffer8, timeout time.Duration) error {
	h.guardOwner()
	return h.store.Write(h.dict.handIDs[o], data, timeout)
}

// HandGet returns a hand-level object's cached value.
func (h *Hand) HandGet(o HandObject) handdrv.Buffer8 {
	return h.store.Get(h.dict.handIDs[o])
}

// RawRead performs a synchronous SDO read against an arbitrary
// (index, sub-index) not represented in the static dictionary.
func (h *Hand) RawRead(index uint16, subIndex uint8, timeout time.Duration) ([]byte, error) {
	h.guardOwner()
	return h.store.RawRead(index, subIndex, timeout)
}

// RawWrite performs a synchronous SDO write against an arbitrary
// (index, sub-index), data length one of {1,2,4,8}.
func (h *Hand) RawWrite(index uint16, subIndex uint8, data []byte, timeout time.Duration) error {
	h.guardOwner()
	return h.store.RawWrite(index, subIndex, data, timeout)
}

// ControllerHandle wraps pdo.ControllerHandle; calling Detach reverses
// the attach sequence and returns ownership of the engine to baseline
// SDO-only mode.
type ControllerHandle struct {
	hand *Hand
	pdoH *pdo.ControllerHandle
}

// Controller returns the attached controller instance, e.g. to read a
// *controller.Bidirectional's mirrored actual positions.
func (c *ControllerHandle) Controller() pdo.Controller { return c.pdoH.Controller }

// Detach stops the PDO loop, runs the detach sequence (disable
// joints, baseline control mode, disable PDO, restore), and releases
// the attach exclusivity lock.
func (c *ControllerHandle) Detach() error {
	c.pdoH.Stop()
	c.hand.attached.Store(false)
	return c.hand.runDetachSequence()
}
