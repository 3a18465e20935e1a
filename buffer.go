package handdrv

import (
	"fmt"
	"unsafe"
)

// Buffer8 is a fixed 8-byte union-style value used for atomic storage slots
// and for completion-callback context. Completion callbacks on the sweep
// thread are handed a Buffer8 rather than an arbitrary closure so that
// firing one never allocates: the context travels by value.
type Buffer8 [8]byte

// BufferFrom packs a trivially-sized value into a Buffer8. T must be at
// most 8 bytes; larger types panic, mirroring the compile-time
// static_assert the source uses to enforce the same bound.
func BufferFrom[T any](value T) Buffer8 {
	var b Buffer8
	if int(unsafe.Sizeof(value)) > len(b) {
		panic(fmt.Sprintf("handdrv: %T does not fit in an 8-byte buffer", value))
	}
	*(*T)(unsafe.Pointer(&b[0])) = value
	return b
}

// As reinterprets the buffer's storage as T. T must be at most 8 bytes.
func As[T any](b Buffer8) T {
	var zero T
	if int(unsafe.Sizeof(zero)) > len(b) {
		panic(fmt.Sprintf("handdrv: %T does not fit in an 8-byte buffer", zero))
	}
	return *(*T)(unsafe.Pointer(&b[0]))
}

// CompletionFunc is invoked by the SDO sweep thread when an operation
// leaves the engine, either on success or on deadline expiry. It must
// return quickly: it runs inline on the sweep thread between ticks.
type CompletionFunc func(ctx Buffer8, success bool)

// FirmwareVersion is the packed {major, minor, patch, pre} version tag the
// device reports for the hand and for each joint. Comparison is field by
// field, including the pre-release tag, matching the original
// FirmwareVersionData ordering.
type FirmwareVersion struct {
	Major byte
	Minor byte
	Patch byte
	Pre   byte
}

// FirmwareVersionFromU32 unpacks a little-endian uint32 wire value into a
// FirmwareVersion, matching the device's packed encoding.
func FirmwareVersionFromU32(raw uint32) FirmwareVersion {
	return FirmwareVersion{
		Major: byte(raw),
		Minor: byte(raw >> 8),
		Patch: byte(raw >> 16),
		Pre:   byte(raw >> 24),
	}
}

// Less reports whether v is strictly below other, comparing
// major/minor/patch/pre in that order.
func (v FirmwareVersion) Less(other FirmwareVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	if v.Patch != other.Patch {
		return v.Patch < other.Patch
	}
	return v.Pre < other.Pre
}

// AtLeast reports whether v is greater than or equal to other.
func (v FirmwareVersion) AtLeast(other FirmwareVersion) bool {
	return !v.Less(other)
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d-%d", v.Major, v.Minor, v.Patch, v.Pre)
}
