package store

import (
	"math"

	"github.com/wuji-robotics/handdrv"
)

// Policy is the bitset describing how a cell's host-domain value maps
// onto its wire representation.
type Policy uint32

const (
	PolicyNone             Policy = 0
	PolicyMasked           Policy = 1 << 0
	PolicyControlWord      Policy = 1 << 1
	PolicyPosition         Policy = 1 << 2
	PolicyPositionReversed Policy = 1 << 3
	PolicyVelocity         Policy = 1 << 4
	PolicyVelocityReversed Policy = 1 << 5
	PolicyHostHeartbeat    Policy = 1 << 6
	// PolicyEffortLimit is a supplemented policy beyond the original
	// four: wire is uint16 milliamps, host is float64 amps.
	PolicyEffortLimit Policy = 1 << 7
)

// positionScale is INT32_MAX / 2π, the full-range radians-to-wire-int32
// scale factor shared by POSITION and POSITION_REVERSED.
const positionScale = float64(math.MaxInt32) / (2 * math.Pi)

func clampInt32(v float64) int32 {
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(math.Round(v))
}

// encodeWire converts a host-domain value (as carried in a Buffer8 of
// the given byte size) into its wire-domain uint64, according to
// policy. Cells with no recognized translation policy bit pass the
// raw bytes through unchanged.
func encodeWire(policy Policy, size int, host handdrv.Buffer8) uint64 {
	switch {
	case policy&PolicyControlWord != 0:
		if handdrv.As[bool](host) {
			return 1
		}
		return 5
	case policy&PolicyEffortLimit != 0:
		amps := handdrv.As[float64](host)
		return uint64(uint16(math.Round(amps * 1000)))
	case policy&(PolicyPosition|PolicyPositionReversed|PolicyVelocity|PolicyVelocityReversed) != 0:
		angle := handdrv.As[float64](host)
		raw := clampInt32(angle * positionScale)
		if policy&(PolicyPositionReversed|PolicyVelocityReversed) != 0 {
			raw = -raw
		}
		return uint64(uint32(raw))
	default:
		return rawBytesToUint64(host, size)
	}
}

// decodeWire converts a wire-domain value back into a host-domain
// Buffer8, inverse of encodeWire.
func decodeWire(policy Policy, size int, wire uint64) handdrv.Buffer8 {
	switch {
	case policy&PolicyControlWord != 0:
		return handdrv.BufferFrom(wire == 1)
	case policy&PolicyEffortLimit != 0:
		milliamps := uint16(wire)
		return handdrv.BufferFrom(float64(milliamps) / 1000)
	case policy&(PolicyPosition|PolicyPositionReversed|PolicyVelocity|PolicyVelocityReversed) != 0:
		raw := int32(uint32(wire))
		if policy&(PolicyPositionReversed|PolicyVelocityReversed) != 0 {
			raw = -raw
		}
		return handdrv.BufferFrom(float64(raw) / positionScale)
	default:
		return uint64ToRawBytes(wire, size)
	}
}

func rawBytesToUint64(b handdrv.Buffer8, size int) uint64 {
	var v uint64
	for i := 0; i < size && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func uint64ToRawBytes(v uint64, size int) handdrv.Buffer8 {
	var b handdrv.Buffer8
	for i := 0; i < size && i < len(b); i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
