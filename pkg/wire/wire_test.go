package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutParseHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, FrameTypeSDO, 4)

	hdr, ok := ParseHeader(buf)
	require.True(t, ok)
	assert.Equal(t, HeaderSource, hdr.Source)
	assert.Equal(t, HeaderDestination, hdr.Destination)
	assert.Equal(t, FrameTypeSDO, hdr.Type)
	assert.Equal(t, 4*FrameAlignment, hdr.FrameLength)
	assert.Equal(t, MaxReceiveWindow, hdr.Window)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, FrameTypePDO, 1)
	buf[0] = 0x00

	_, ok := ParseHeader(buf)
	assert.False(t, ok)
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	_, ok := ParseHeader(make([]byte, HeaderLen-1))
	assert.False(t, ok)
}

func TestPadLen(t *testing.T) {
	assert.Equal(t, 0, PadLen(32))
	assert.Equal(t, 9, PadLen(23))
	assert.Equal(t, 1, PadLen(15))
}

func TestSDOReadRequestRoundTrip(t *testing.T) {
	rec := PutSDOReadRequest(nil, 0x5201, 1)
	assert.Equal(t, []byte{SDOControlRead, 0x52, 0x01, 0x01}, rec)
}

// Scenario 1 of spec.md §8: a 4-byte read success record for index
// 0x5201 sub 1 decodes to the little-endian value 0xDDCCBBAA.
func TestParseSDOResponseReadSuccess4Byte(t *testing.T) {
	frame := []byte{SDOControlReadOK4, 0x52, 0x01, 0x01, 0xAA, 0xBB, 0xCC, 0xDD}
	resp, consumed, ok := ParseSDOResponse(frame)
	require.True(t, ok)
	assert.Equal(t, 8, consumed)
	assert.Equal(t, uint16(0x5201), resp.Index)
	assert.Equal(t, byte(1), resp.SubIndex)
	assert.Equal(t, uint64(0xDDCCBBAA), resp.Value)
	assert.True(t, resp.IsReadSuccess())
	assert.False(t, resp.IsError())
}

func TestParseSDOResponseWriteSuccessHasNoPayload(t *testing.T) {
	frame := []byte{SDOControlWriteOK, 0x20, 0x02, 0x00}
	resp, consumed, ok := ParseSDOResponse(frame)
	require.True(t, ok)
	assert.Equal(t, 4, consumed)
	assert.True(t, resp.IsWriteSuccess())
}

func TestParseSDOResponseError(t *testing.T) {
	frame := []byte{SDOControlReadErr, 0x52, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00}
	resp, consumed, ok := ParseSDOResponse(frame)
	require.True(t, ok)
	assert.Equal(t, 8, consumed)
	assert.True(t, resp.IsError())
	assert.Equal(t, uint32(1), resp.ErrCode)
}

func TestParseSDOResponseRejectsPaddingAndShortBuffers(t *testing.T) {
	_, _, ok := ParseSDOResponse([]byte{SDOControlPadding, 0, 0, 0})
	assert.False(t, ok)

	_, _, ok = ParseSDOResponse([]byte{SDOControlReadOK8, 0, 0, 0, 1, 2, 3})
	assert.False(t, ok)
}

func TestSDOWriteRequestSizeDispatch(t *testing.T) {
	rec, err := PutSDOWriteRequest(nil, 0x2064, 0, 0x11223344, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{SDOControlWrite4, 0x20, 0x64, 0x00, 0x44, 0x33, 0x22, 0x11}, rec)

	_, err = PutSDOWriteRequest(nil, 0x2064, 0, 0, 3)
	assert.Error(t, err, "3 is not a valid SDO payload size")
}

func TestPDOWriteAndParsePositionsRoundTrip(t *testing.T) {
	var positions [NumFingers][NumJoints]int32
	positions[0][0] = 100
	positions[4][3] = -200

	frame := PutPDOWrite(nil, PDOReadPositionsOnly, positions, 12345)
	assert.Equal(t, byte(PDOWriteIDControl), frame[0])
	assert.Equal(t, byte(PDOReadPositionsOnly), frame[1])

	res, consumed, ok := ParsePositionsResult(frame[2:])
	require.True(t, ok)
	assert.Equal(t, NumFingers*NumJoints*4, consumed)
	assert.Equal(t, positions, res.Positions)
}

func TestPDOReadRequestFrame(t *testing.T) {
	frame := PutPDOReadRequest(nil, PDOReadPositionsCurErr)
	assert.Equal(t, []byte{PDOWriteIDReadOnly, PDOReadPositionsCurErr}, frame)
}

func TestParsePositionsCurErrResult(t *testing.T) {
	var payload []byte
	for f := 0; f < NumFingers; f++ {
		for j := 0; j < NumJoints; j++ {
			rec := make([]byte, 12)
			rec[0] = byte(f*4 + j)
			payload = append(payload, rec...)
		}
	}

	res, consumed, ok := ParsePositionsCurErrResult(payload)
	require.True(t, ok)
	assert.Equal(t, len(payload), consumed)
	assert.Equal(t, int32(0), res.Joints[0][0].Position)
	assert.Equal(t, int32(4), res.Joints[1][0].Position)
}

func TestParsePositionsCurErrResultRejectsShortBuffer(t *testing.T) {
	_, _, ok := ParsePositionsCurErrResult(make([]byte, 10))
	assert.False(t, ok)
}

func TestParseLatencyTestResult(t *testing.T) {
	payload := make([]byte, (NumFingers*NumJoints)*24+8)
	res, consumed, ok := ParseLatencyTestResult(payload)
	require.True(t, ok)
	assert.Equal(t, len(payload), consumed)
	assert.Len(t, res.Joints, NumFingers*NumJoints)
}

func TestPutPDOLatencyTestFrame(t *testing.T) {
	frame := PutPDOLatencyTest(nil, 7)
	assert.Equal(t, byte(PDOWriteIDLatencyTest), frame[0])
	assert.Equal(t, byte(PDOReadLatencyTestResult), frame[1])
}
