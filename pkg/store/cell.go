package store

import (
	"sync/atomic"

	"github.com/wuji-robotics/handdrv"
)

// Mode is the operation a cell currently carries.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeRead
	ModeWrite
)

// State is a cell's position in the SDO request/reply state machine.
type State uint8

const (
	StateSuccess State = iota
	StateWaiting
	StateReading
	StateWriting
	StateWritingConfirming
)

func pack(mode Mode, state State) uint32 {
	return uint32(mode) | uint32(state)<<8
}

func unpack(v uint32) (Mode, State) {
	return Mode(v & 0xff), State((v >> 8) & 0xff)
}

// Descriptor is a cell's compile-time-constant identity: its object
// dictionary address, wire size, and translation policy. The static
// dictionary table in pkg/hand is a slice of these, one per storage ID.
type Descriptor struct {
	StorageID int
	Index     uint16
	SubIndex  uint8
	Size      int // one of 1, 2, 4, 8
	Policy    Policy
}

// Cell is one object store slot, the counterpart of the source's
// 64-byte cache-line-aligned StorageUnit. Go gives no alignas-equivalent
// over a slice element, and this struct is 88 bytes on 64-bit targets,
// so cells in the backing array are not cache-line aligned — see
// DESIGN.md.
type Cell struct {
	Descriptor

	op       atomic.Uint32 // packed Mode|State<<8
	value    atomic.Uint64 // host-domain value, see policy.go
	version  atomic.Uint32
	deadline atomic.Int64 // UnixNano; math.MaxInt64 means "never"

	// callback and callbackCtx are plain fields, not atomics: the
	// public thread writes them before the release-store that moves
	// the cell out of NONE, and the sweep thread only reads them after
	// an acquire-load observes mode != NONE, so the release/acquire
	// pair on op already establishes the happens-before edge these
	// fields need.
	callback    handdrv.CompletionFunc
	callbackCtx handdrv.Buffer8

	_ [8]byte // trailing padding; the stride stays 88 bytes, not a multiple of 64
}

const neverDeadline = int64(1<<63 - 1)

func (c *Cell) loadOp() (Mode, State) { return unpack(c.op.Load()) }

func (c *Cell) storeOp(mode Mode, state State) { c.op.Store(pack(mode, state)) }

// hostValue returns the cell's current host-domain value as a Buffer8,
// copying the uint64 slot byte for byte (the slot already holds the
// host-domain value; policy decoding happens before it is stored).
func (c *Cell) hostValue() handdrv.Buffer8 {
	raw := c.value.Load()
	var b handdrv.Buffer8
	for i := range b {
		b[i] = byte(raw >> (8 * i))
	}
	return b
}

// bumpVersion increments the cell's monotonic version, skipping the
// reserved value 0 on wraparound (spec.md §3's version invariant).
func (c *Cell) bumpVersion() {
	if c.version.Add(1) == 0 {
		c.version.Add(1)
	}
}

func (c *Cell) setHostValue(v handdrv.Buffer8) {
	var raw uint64
	for i := range v {
		raw |= uint64(v[i]) << (8 * i)
	}
	c.value.Store(raw)
}
