package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowPassFirstStepSeedsFromRawSample(t *testing.T) {
	f := NewLowPass(10)
	f.Setup(500)
	f.Push(5.0)
	assert.Equal(t, 5.0, f.Step(), "the first Step must avoid a startup transient from zero")
}

func TestLowPassConvergesTowardConstantInput(t *testing.T) {
	f := NewLowPass(10)
	f.Setup(500)
	f.Push(1.0)
	f.Step()
	for i := 0; i < 500; i++ {
		f.Push(1.0)
		f.Step()
	}
	assert.InDelta(t, 1.0, f.Step(), 1e-3)
}

func TestLowPassZeroCutoffPassesThrough(t *testing.T) {
	f := NewLowPass(0)
	f.Setup(500)
	f.Push(2.0)
	f.Step()
	f.Push(9.0)
	assert.Equal(t, 9.0, f.Step(), "a zero cutoff means no filtering")
}

func TestLowPassZeroFrequencyDisablesFiltering(t *testing.T) {
	f := NewLowPass(10)
	f.Setup(0)
	f.Push(4.0)
	f.Step()
	f.Push(8.0)
	assert.Equal(t, 8.0, f.Step())
}
