package wire

import (
	"encoding/binary"
	"math"
)

// PDO read-id variants selecting the upstream payload shape.
const (
	PDOReadPositionsOnly     byte = 0x01
	PDOReadPositionsCurErr   byte = 0x02
	PDOReadLatencyTestResult byte = 0xD0

	// PDOWriteIDLatencyTest is the write_id the device echoes back for
	// latency-test frames; ordinary control frames use write_id 0x01.
	PDOWriteIDLatencyTest byte = 0x00
	PDOWriteIDControl     byte = 0x01
	PDOWriteIDReadOnly    byte = 0x00

	NumFingers = 5
	NumJoints  = 4
)

// PutPDOWrite appends a downstream control PDO: write_id/read_id header,
// 20 int32 target positions (finger-major, joint-minor), and a 32-bit
// microsecond timestamp.
func PutPDOWrite(buf []byte, readID byte, positions [NumFingers][NumJoints]int32, timestampUs uint32) []byte {
	rec := make([]byte, 2+NumFingers*NumJoints*4+4)
	rec[0] = PDOWriteIDControl
	rec[1] = readID
	off := 2
	for f := 0; f < NumFingers; f++ {
		for j := 0; j < NumJoints; j++ {
			binary.LittleEndian.PutUint32(rec[off:off+4], uint32(positions[f][j]))
			off += 4
		}
	}
	binary.LittleEndian.PutUint32(rec[off:off+4], timestampUs)
	return append(buf, rec...)
}

// PutPDOReadRequest appends a bare upstream-request PDO frame (no target
// positions, used only to solicit an upstream reply before the pipeline
// is warmed up).
func PutPDOReadRequest(buf []byte, readID byte) []byte {
	return append(buf, PDOWriteIDReadOnly, readID)
}

// PutPDOLatencyTest appends an outgoing latency-test probe frame
// carrying a correlation id.
func PutPDOLatencyTest(buf []byte, id uint32) []byte {
	rec := make([]byte, 6)
	rec[0] = PDOWriteIDLatencyTest
	rec[1] = PDOReadLatencyTestResult
	binary.LittleEndian.PutUint32(rec[2:6], id)
	return append(buf, rec...)
}

// PositionsResult decodes a read_id=0x01 upstream frame: 20 int32
// positions, finger-major joint-minor.
type PositionsResult struct {
	Positions [NumFingers][NumJoints]int32
}

// ParsePositionsResult decodes the payload following the {write_id,
// read_id} header of a read_id=0x01 frame.
func ParsePositionsResult(buf []byte) (PositionsResult, int, bool) {
	const need = NumFingers * NumJoints * 4
	if len(buf) < need {
		return PositionsResult{}, 0, false
	}
	var res PositionsResult
	off := 0
	for f := 0; f < NumFingers; f++ {
		for j := 0; j < NumJoints; j++ {
			res.Positions[f][j] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
	}
	return res, need, true
}

// JointPosCurErr is one joint's upstream position/current/error-code
// tuple, used by the read_id=0x02 frame variant.
type JointPosCurErr struct {
	Position  int32
	CurrentA  float32
	ErrorCode uint32
}

// PositionsCurErrResult decodes a read_id=0x02 upstream frame: 20
// (position, iq_a, error_code) tuples, finger-major joint-minor.
type PositionsCurErrResult struct {
	Joints [NumFingers][NumJoints]JointPosCurErr
}

// ParsePositionsCurErrResult decodes the payload following the
// {write_id, read_id} header of a read_id=0x02 frame.
func ParsePositionsCurErrResult(buf []byte) (PositionsCurErrResult, int, bool) {
	const recSize = 4 + 4 + 4
	const need = NumFingers * NumJoints * recSize
	if len(buf) < need {
		return PositionsCurErrResult{}, 0, false
	}
	var res PositionsCurErrResult
	off := 0
	for f := 0; f < NumFingers; f++ {
		for j := 0; j < NumJoints; j++ {
			pos := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
			cur := binary.LittleEndian.Uint32(buf[off+4 : off+8])
			errc := binary.LittleEndian.Uint32(buf[off+8 : off+12])
			res.Joints[f][j] = JointPosCurErr{
				Position:  pos,
				CurrentA:  math.Float32frombits(cur),
				ErrorCode: errc,
			}
			off += recSize
		}
	}
	return res, need, true
}

// LatencyJointData is one joint's five-stage timestamp trace from a
// latency-test result frame.
type LatencyJointData struct {
	ID           uint32
	T0, T1, T2, T3, T4 uint32
}

// LatencyTestResult decodes a read_id=0xD0 upstream frame: twenty joint
// timestamp traces plus two host/spinal correlation timestamps.
type LatencyTestResult struct {
	Joints         [NumFingers * NumJoints]LatencyJointData
	T5SpinalTx     uint32
	TUsbRxTx       uint32
}

// ParseLatencyTestResult decodes the payload following the {write_id,
// read_id} header of a read_id=0xD0 frame.
func ParseLatencyTestResult(buf []byte) (LatencyTestResult, int, bool) {
	const jointRec = 4 * 6
	const need = (NumFingers*NumJoints)*jointRec + 8
	if len(buf) < need {
		return LatencyTestResult{}, 0, false
	}
	var res LatencyTestResult
	off := 0
	for i := range res.Joints {
		res.Joints[i] = LatencyJointData{
			ID: binary.LittleEndian.Uint32(buf[off : off+4]),
			T0: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
			T1: binary.LittleEndian.Uint32(buf[off+8 : off+12]),
			T2: binary.LittleEndian.Uint32(buf[off+12 : off+16]),
			T3: binary.LittleEndian.Uint32(buf[off+16 : off+20]),
			T4: binary.LittleEndian.Uint32(buf[off+20 : off+24]),
		}
		off += jointRec
	}
	res.T5SpinalTx = binary.LittleEndian.Uint32(buf[off : off+4])
	res.TUsbRxTx = binary.LittleEndian.Uint32(buf[off+4 : off+8])
	return res, need, true
}
