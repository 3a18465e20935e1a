package pdo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffErrorBitsOnlyReportsNewlySet(t *testing.T) {
	var seen []int
	diffErrorBits(0b0000, 0b0101, func(bit int, fb faultBit) { seen = append(seen, bit) })
	assert.ElementsMatch(t, []int{0, 2}, seen)
}

func TestDiffErrorBitsIgnoresClearedBits(t *testing.T) {
	var seen []int
	diffErrorBits(0b0111, 0b0001, func(bit int, fb faultBit) { seen = append(seen, bit) })
	assert.Empty(t, seen, "clearing a bit is not a newly-set transition")
}

func TestDiffErrorBitsNoChangeIsNoOp(t *testing.T) {
	called := false
	diffErrorBits(0b1010, 0b1010, func(bit int, fb faultBit) { called = true })
	assert.False(t, called)
}

func TestDiffErrorBitsUnknownBitFallsBackToWarning(t *testing.T) {
	var got faultBit
	diffErrorBits(0, 1<<15, func(bit int, fb faultBit) { got = fb })
	assert.Equal(t, SeverityWarning, got.severity)
	assert.Equal(t, "unknown fault bit", got.name)
}

func TestDiffErrorBitsKnownBitUsesTableSeverity(t *testing.T) {
	var got faultBit
	diffErrorBits(0, 1<<0, func(bit int, fb faultBit) { got = fb })
	assert.Equal(t, SeverityCritical, got.severity)
	assert.Equal(t, "ADC failure", got.name)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "CRITICAL", SeverityCritical.String())
	assert.Equal(t, "ERROR", SeverityError.String())
	assert.Equal(t, "WARNING", SeverityWarning.String())
}
