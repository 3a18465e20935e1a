// Package controller implements the two detachable real-time
// controller shapes spec.md §4.7 describes: a downstream-only adapter
// that filters caller-supplied targets, and a bidirectional variant
// that additionally mirrors actual positions for external readers.
// Both satisfy pdo.Controller, so pkg/pdo's loop drives either without
// knowing which shape it holds (a tagged-variant dispatch in place of
// the source's CRTP specialization, per spec.md's DESIGN NOTES §9).
package controller

import (
	"sync"
	"sync/atomic"

	"github.com/wuji-robotics/handdrv/pkg/filter"
	"github.com/wuji-robotics/handdrv/pkg/pdo"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// Filtered is the downstream-only controller adapter: it holds one
// filter unit per joint and feeds caller-supplied targets through
// them on every tick.
type Filtered struct {
	units [wire.NumFingers][wire.NumJoints]filter.Unit

	mu      sync.Mutex
	targets pdo.JointPositions
}

// NewFiltered constructs a Filtered controller with one fresh unit per
// joint produced by newUnit (typically filter.NewLowPass bound to a
// per-joint cutoff).
func NewFiltered(newUnit func(finger, joint int) filter.Unit) *Filtered {
	c := &Filtered{}
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			c.units[f][j] = newUnit(f, j)
		}
	}
	return c
}

// Setup forwards the loop's tick frequency to every filter unit, per
// spec.md §4.7's setup(frequency) contract.
func (c *Filtered) Setup(frequencyHz float64) {
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			c.units[f][j].Setup(frequencyHz)
		}
	}
}

// Set installs new caller-supplied targets, feeding each joint's value
// into its filter unit's inbox atomically (guarded by mu: the filter
// units themselves are not safe for concurrent Push/Step).
func (c *Filtered) Set(targets pdo.JointPositions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = targets
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			c.units[f][j].Push(targets[f][j])
		}
	}
}

// Step advances every joint's filter unit by one sample and returns
// the filtered outputs. actual is ignored by the downstream-only
// variant; it exists so Filtered satisfies pdo.Controller.
func (c *Filtered) Step(actual pdo.JointPositions) pdo.JointPositions {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out pdo.JointPositions
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			out[f][j] = c.units[f][j].Step()
		}
	}
	return out
}

// Bidirectional extends Filtered by recording the actual positions
// passed into Step on each call, exposing them to external readers via
// Actual.
type Bidirectional struct {
	*Filtered

	mu     sync.Mutex
	actual pdo.JointPositions
	ver    atomic.Uint64
}

// NewBidirectional constructs a Bidirectional controller over the
// same per-joint filter units Filtered uses.
func NewBidirectional(newUnit func(finger, joint int) filter.Unit) *Bidirectional {
	return &Bidirectional{Filtered: NewFiltered(newUnit)}
}

// Step records actual into the bidirectional mirror before delegating
// to Filtered.Step for the downstream filtering pass.
func (c *Bidirectional) Step(actual pdo.JointPositions) pdo.JointPositions {
	c.mu.Lock()
	c.actual = actual
	c.mu.Unlock()
	c.ver.Add(1)
	return c.Filtered.Step(actual)
}

// Actual returns the most recent actual-position snapshot passed into
// Step.
func (c *Bidirectional) Actual() pdo.JointPositions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actual
}

// Version returns a counter bumped once per Step call, letting a
// reader detect whether Actual has changed since it last checked.
func (c *Bidirectional) Version() uint64 { return c.ver.Load() }

// CutoffWriter writes a joint's on-device filter cutoff frequency to
// its PositionFilterCutoffFreq object, typically a closure over the
// hand's object store (e.g. Joint.Write bound to a specific finger
// and joint).
type CutoffWriter func(finger, joint int, cutoffHz float64) error

// Compatible is the adapter variant for firmware that performs
// filtering on-device (spec.md §4.7): NewCompatible writes the cutoff
// frequency to every joint's PositionFilterCutoffFreq object once, up
// front, and Compatible then passes targets straight through,
// letting the device's own filter do the work.
type Compatible struct {
	cutoffHz float64

	mu      sync.Mutex
	targets pdo.JointPositions
}

// NewCompatible writes cutoffHz to every joint's on-device filter via
// write, then constructs a Compatible adapter over it. The write
// happens once, here, before the caller attaches the controller to
// the PDO engine; Compatible holds no further filter state of its
// own.
func NewCompatible(cutoffHz float64, write CutoffWriter) (*Compatible, error) {
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			if err := write(f, j, cutoffHz); err != nil {
				return nil, err
			}
		}
	}
	return &Compatible{cutoffHz: cutoffHz}, nil
}

// CutoffHz returns the cutoff frequency written to the device at
// construction.
func (c *Compatible) CutoffHz() float64 { return c.cutoffHz }

// Setup is a no-op: the on-device filter's coefficient is fixed by the
// cutoff frequency written at construction, not by the host loop's
// tick rate.
func (c *Compatible) Setup(frequencyHz float64) {}

// Set installs new targets to be passed straight through on the next
// Step call.
func (c *Compatible) Set(targets pdo.JointPositions) {
	c.mu.Lock()
	c.targets = targets
	c.mu.Unlock()
}

// Step returns the most recently set targets unmodified; actual is
// unused, matching the downstream-only Filtered variant's contract.
func (c *Compatible) Step(actual pdo.JointPositions) pdo.JointPositions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targets
}
