package wire

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/transport"
)

// crcReserved is the trailing byte count left zeroed at the end of
// every frame for a CRC field the device never actually validates on
// this channel; the reservation is kept so the wire layout matches the
// device's framing exactly.
const crcReserved = 2

var errFrameTooLong = errors.New("handdrv/wire: allocation does not fit in a single frame")

// FrameBuilder accumulates typed records into one outgoing frame at a
// time. It is single-producer: the SDO sweep thread owns one instance,
// the PDO loop thread owns another. Allocate reserves space for a
// record; Finalize stamps the header, zero-pads to a 16-byte boundary,
// and hands the frame to the transport.
type FrameBuilder struct {
	t          *transport.Transport
	headerType byte
	log        *logrus.Entry

	buf     *transport.Buffer
	cur     int
	dropped uint64
}

// NewFrameBuilder creates a builder bound to t, stamping headerType
// (FrameTypeSDO or FrameTypePDO) on every frame it produces.
func NewFrameBuilder(t *transport.Transport, headerType byte, log *logrus.Entry) *FrameBuilder {
	return &FrameBuilder{t: t, headerType: headerType, log: log}
}

func (fb *FrameBuilder) ensureBuffer() bool {
	if fb.buf != nil {
		return true
	}
	buf := fb.t.RequestTransmitBuffer()
	if buf == nil {
		return false
	}
	fb.buf = buf
	fb.cur = HeaderLen
	return true
}

// Allocate reserves size contiguous bytes in the current frame,
// leaving room for the trailing CRC placeholder, and returns a slice
// over that region to fill in. If the current frame doesn't have room
// it is finalized and a fresh one started; if the fresh frame still
// can't fit size (size exceeds the transport's maximum transfer
// length), Allocate returns an error.
func (fb *FrameBuilder) Allocate(size int) ([]byte, error) {
	if !fb.ensureBuffer() {
		// Pool exhausted: there's nothing to allocate into, so this
		// record is genuinely lost.
		fb.dropped++
		return nil, handdrv.ErrPoolExhausted
	}
	capacity := len(fb.buf.Bytes())
	if capacity-fb.cur <= size+crcReserved {
		fb.Finalize()
		if !fb.ensureBuffer() {
			fb.dropped++
			return nil, handdrv.ErrPoolExhausted
		}
		capacity = len(fb.buf.Bytes())
		if capacity-fb.cur <= size+crcReserved {
			return nil, errFrameTooLong
		}
	}
	start := fb.cur
	fb.cur += size
	return fb.buf.Bytes()[start:fb.cur], nil
}

// Finalize stamps the header on the current frame, zero-pads it to a
// 16-byte boundary, and transmits it. If nothing was ever allocated
// into the current frame (fb.buf is still nil), there is nothing to
// send and Finalize is a no-op — that is the common case on an idle
// sweep tick, not a dropped frame. A genuine drop is counted in
// Allocate, when the transmit pool is exhausted and a buffer can't be
// obtained at all.
func (fb *FrameBuilder) Finalize() {
	if fb.buf == nil {
		return
	}
	length := fb.cur + crcReserved
	blocks := (length + FrameAlignment - 1) / FrameAlignment
	padded := blocks * FrameAlignment

	bytes := fb.buf.Bytes()
	for i := fb.cur; i < padded && i < len(bytes); i++ {
		bytes[i] = 0
	}
	PutHeader(bytes, fb.headerType, uint16(blocks))

	buf := fb.buf
	fb.buf = nil
	if err := fb.t.Transmit(buf, padded); err != nil {
		fb.log.Errorf("transmit frame: %v", err)
	}
}

// DroppedFrameCount reports how many records this builder discarded
// because the transport's transmit pool was exhausted when it needed a
// buffer — not how many idle ticks passed with nothing queued.
func (fb *FrameBuilder) DroppedFrameCount() uint64 { return fb.dropped }
