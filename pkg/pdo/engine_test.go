package pdo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/wuji-robotics/handdrv/pkg/wire"
)

func TestEncodeDecodeJointAngleRoundTrip(t *testing.T) {
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			angle := 0.75
			raw := encodeJointAngle(f, j, angle)
			back := decodeJointAngle(f, j, raw)
			assert.InDelta(t, angle, back, 1e-5, "finger=%d joint=%d", f, j)
		}
	}
}

func TestEncodeJointAngleThumbJ1NotNegated(t *testing.T) {
	raw := encodeJointAngle(0, 0, 0.5)
	assert.Greater(t, raw, int32(0))
}

func TestEncodeJointAngleOtherFingerJ1Negated(t *testing.T) {
	raw := encodeJointAngle(1, 0, 0.5)
	assert.Less(t, raw, int32(0))
}

func TestEncodeJointAngleJ2UnaffectedByReversal(t *testing.T) {
	thumb := encodeJointAngle(0, 1, 0.5)
	other := encodeJointAngle(1, 1, 0.5)
	assert.Equal(t, thumb, other)
}

func TestClampInt32Bounds(t *testing.T) {
	assert.Equal(t, int32(1<<31-1), clampInt32(1e12))
	assert.Equal(t, int32(-(1 << 31)), clampInt32(-1e12))
}

func TestEngineApplyUpstreamPositions(t *testing.T) {
	e := NewEngine(nil, nil)
	var positions [wire.NumFingers][wire.NumJoints]int32
	positions[2][3] = encodeJointAngle(2, 3, 1.0)

	before := e.UpstreamVersion()
	e.applyUpstreamPositions(positions)
	after := e.UpstreamVersion()

	assert.Greater(t, after, before)
	got := e.ActualPositions()
	assert.InDelta(t, 1.0, got[2][3], 1e-5)
}

func TestEngineApplyUpstreamErrorsStoresMirror(t *testing.T) {
	e := NewEngine(nil, nil)
	var codes [wire.NumFingers][wire.NumJoints]uint32
	codes[0][0] = 1 << 3

	e.applyUpstreamErrors(codes)

	got := e.ErrorCodes()
	assert.Equal(t, uint32(1<<3), got[0][0])
}

func TestEngineApplyUpstreamErrorsNoRepeatedDiffOnUnchangedCode(t *testing.T) {
	var logBuf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logBuf)
	e := NewEngine(nil, logrus.NewEntry(logger))
	var codes [wire.NumFingers][wire.NumJoints]uint32
	codes[0][0] = 1
	e.applyUpstreamErrors(codes)
	e.applyUpstreamErrors(codes) // second call with identical codes should be a no-op internally
	got := e.ErrorCodes()
	assert.Equal(t, uint32(1), got[0][0])
	assert.Equal(t, 1, strings.Count(logBuf.String(), "joint fault"), "an unchanged code must not be diffed and logged again")
}
