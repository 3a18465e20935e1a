package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuji-robotics/handdrv/pkg/filter"
	"github.com/wuji-robotics/handdrv/pkg/pdo"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// passthroughUnit is a filter.Unit stand-in that returns whatever was
// last pushed, unchanged, so controller tests can assert on Set/Step
// plumbing without depending on filter.LowPass's convergence behavior.
type passthroughUnit struct {
	setupHz float64
	value   float64
}

func (u *passthroughUnit) Setup(frequencyHz float64) { u.setupHz = frequencyHz }
func (u *passthroughUnit) Push(raw float64)           { u.value = raw }
func (u *passthroughUnit) Step() float64              { return u.value }

func newPassthroughFiltered() *Filtered {
	return NewFiltered(func(finger, joint int) filter.Unit { return &passthroughUnit{} })
}

func TestFilteredSetupForwardsFrequencyToEveryUnit(t *testing.T) {
	c := newPassthroughFiltered()
	c.Setup(500)
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			u := c.units[f][j].(*passthroughUnit)
			assert.Equal(t, 500.0, u.setupHz)
		}
	}
}

func TestFilteredSetThenStepRoundTrips(t *testing.T) {
	c := newPassthroughFiltered()
	var targets pdo.JointPositions
	targets[0][0] = 1.23
	c.Set(targets)

	out := c.Step(pdo.JointPositions{})
	assert.InDelta(t, 1.23, out[0][0], 1e-9)
}

func TestBidirectionalRecordsActualAndBumpsVersion(t *testing.T) {
	c := NewBidirectional(func(finger, joint int) filter.Unit { return &passthroughUnit{} })

	before := c.Version()
	var actual pdo.JointPositions
	actual[1][2] = 0.5
	c.Step(actual)

	assert.Greater(t, c.Version(), before)
	got := c.Actual()
	assert.InDelta(t, 0.5, got[1][2], 1e-9)
}

func TestCompatibleStepReturnsLastSetTargetsUnmodified(t *testing.T) {
	var written [wire.NumFingers][wire.NumJoints]float64
	c, err := NewCompatible(12.5, func(finger, joint int, cutoffHz float64) error {
		written[finger][joint] = cutoffHz
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 12.5, c.CutoffHz())
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			assert.Equal(t, 12.5, written[f][j])
		}
	}

	var targets pdo.JointPositions
	targets[3][1] = 2.5
	c.Set(targets)

	out := c.Step(pdo.JointPositions{})
	assert.InDelta(t, 2.5, out[3][1], 1e-9)
}

func TestNewCompatiblePropagatesWriteError(t *testing.T) {
	wantErr := assert.AnError
	_, err := NewCompatible(12.5, func(finger, joint int, cutoffHz float64) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
