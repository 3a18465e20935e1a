package wire

import (
	"encoding/binary"
	"fmt"
)

// SDO control bytes. Size is encoded in the control byte itself for read
// success and write request records: sizeFromControl/controlFromSize
// convert between a byte count and the matching control nibble.
const (
	SDOControlRead          byte = 0x30
	SDOControlReadErr       byte = 0x33
	SDOControlReadOK1       byte = 0x35
	SDOControlReadOK2       byte = 0x37
	SDOControlReadOK4       byte = 0x39
	SDOControlReadOK8       byte = 0x3D
	SDOControlWrite1        byte = 0x20
	SDOControlWrite2        byte = 0x22
	SDOControlWrite4        byte = 0x24
	SDOControlWrite8        byte = 0x28
	SDOControlWriteOK       byte = 0x21
	SDOControlWriteErr      byte = 0x23
	SDOControlPadding       byte = 0x00
)

// SizeFromWriteControl maps a write-request control byte to its payload
// size in bytes, or 0 if the control byte isn't a write request.
func SizeFromWriteControl(control byte) int {
	switch control {
	case SDOControlWrite1:
		return 1
	case SDOControlWrite2:
		return 2
	case SDOControlWrite4:
		return 4
	case SDOControlWrite8:
		return 8
	}
	return 0
}

// WriteControlFromSize is the inverse of SizeFromWriteControl.
func WriteControlFromSize(size int) (byte, error) {
	switch size {
	case 1:
		return SDOControlWrite1, nil
	case 2:
		return SDOControlWrite2, nil
	case 4:
		return SDOControlWrite4, nil
	case 8:
		return SDOControlWrite8, nil
	}
	return 0, fmt.Errorf("handdrv/wire: %d is not a valid SDO payload size", size)
}

// SizeFromReadOKControl maps a read-success control byte to its payload
// size, or 0 if the control byte isn't a read-success record.
func SizeFromReadOKControl(control byte) int {
	switch control {
	case SDOControlReadOK1:
		return 1
	case SDOControlReadOK2:
		return 2
	case SDOControlReadOK4:
		return 4
	case SDOControlReadOK8:
		return 8
	}
	return 0
}

// ReadOKControlFromSize is the inverse of SizeFromReadOKControl.
func ReadOKControlFromSize(size int) (byte, error) {
	switch size {
	case 1:
		return SDOControlReadOK1, nil
	case 2:
		return SDOControlReadOK2, nil
	case 4:
		return SDOControlReadOK4, nil
	case 8:
		return SDOControlReadOK8, nil
	}
	return 0, fmt.Errorf("handdrv/wire: %d is not a valid SDO payload size", size)
}

// PutSDOReadRequest appends an SDO read request record to buf and
// returns the extended slice. The index field is big-endian on the
// wire; sub-index follows as a single byte.
func PutSDOReadRequest(buf []byte, index uint16, subIndex byte) []byte {
	var rec [4]byte
	rec[0] = SDOControlRead
	binary.BigEndian.PutUint16(rec[1:3], index)
	rec[3] = subIndex
	return append(buf, rec[:]...)
}

// PutSDOWriteRequest appends an SDO write request record carrying the
// low size bytes of value (size ∈ {1,2,4,8}).
func PutSDOWriteRequest(buf []byte, index uint16, subIndex byte, value uint64, size int) ([]byte, error) {
	control, err := WriteControlFromSize(size)
	if err != nil {
		return buf, err
	}
	header := [4]byte{control, 0, 0, subIndex}
	binary.BigEndian.PutUint16(header[1:3], index)
	buf = append(buf, header[:]...)
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], value)
	return append(buf, payload[:size]...), nil
}

// SDOResponse is the decoded form of any SDO reply record (read
// success/error or write success/error).
type SDOResponse struct {
	Control  byte
	Index    uint16
	SubIndex byte
	Value    uint64 // valid for read-success records
	ErrCode  uint32 // valid for *-error records
	Size     int    // byte count consumed after the 4-byte header, excluding this header
}

// ParseSDOResponse decodes one SDO response record from the front of
// buf and returns it along with the number of bytes it consumed. It
// returns ok=false if buf is too short for the declared record, or the
// control byte is padding / unrecognized.
func ParseSDOResponse(buf []byte) (resp SDOResponse, consumed int, ok bool) {
	if len(buf) < 4 {
		return SDOResponse{}, 0, false
	}
	control := buf[0]
	if control == SDOControlPadding {
		return SDOResponse{}, 0, false
	}
	index := binary.BigEndian.Uint16(buf[1:3])
	subIndex := buf[3]

	switch {
	case control == SDOControlWriteOK:
		return SDOResponse{Control: control, Index: index, SubIndex: subIndex}, 4, true
	case control == SDOControlWriteErr || control == SDOControlReadErr:
		if len(buf) < 8 {
			return SDOResponse{}, 0, false
		}
		errCode := binary.LittleEndian.Uint32(buf[4:8])
		return SDOResponse{Control: control, Index: index, SubIndex: subIndex, ErrCode: errCode, Size: 4}, 8, true
	default:
		size := SizeFromReadOKControl(control)
		if size == 0 {
			return SDOResponse{}, 0, false
		}
		if len(buf) < 4+size {
			return SDOResponse{}, 0, false
		}
		var payload [8]byte
		copy(payload[:size], buf[4:4+size])
		value := binary.LittleEndian.Uint64(payload[:])
		return SDOResponse{Control: control, Index: index, SubIndex: subIndex, Value: value, Size: size}, 4 + size, true
	}
}

// IsReadSuccess reports whether resp decodes an SDO read success record.
func (r SDOResponse) IsReadSuccess() bool { return SizeFromReadOKControl(r.Control) != 0 }

// IsWriteSuccess reports whether resp decodes an SDO write success record.
func (r SDOResponse) IsWriteSuccess() bool { return r.Control == SDOControlWriteOK }

// IsError reports whether resp decodes a read or write error record.
func (r SDOResponse) IsError() bool {
	return r.Control == SDOControlReadErr || r.Control == SDOControlWriteErr
}
