// Package transport owns the USB bulk endpoint pair: device selection,
// a pool of reusable transmit buffers, and a receive loop that delivers
// completed IN transfers to a single subscriber. It is the only package
// that imports github.com/google/gousb; everything above it speaks in
// terms of byte slices.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/internal/ring"
)

const (
	// MaxTransferLength is the fixed ceiling on a single outgoing frame.
	MaxTransferLength = 2048

	targetInterface = 0x01
	outEndpointAddr = 0x01
	inEndpointAddr  = 0x81

	transmitPoolSize = 64

	// receiveWorkers is fixed at one: the rest of the stack (the SDO
	// cell state machine's single-reception-thread invariant,
	// pkg/pdo's per-joint error-code diffing) is documented and
	// implemented assuming every completed IN transfer is delivered to
	// exactly one callback invocation at a time, in frame-arrival
	// order. Raising this would require making every received-frame
	// handler concurrency-safe first.
	receiveWorkers = 1
)

// Selector identifies the device to open. PID and Serial are optional;
// zero values match any.
type Selector struct {
	VID    gousb.ID
	PID    gousb.ID // 0 matches any product ID
	Serial string   // "" matches any serial number
}

// Buffer is one slot in the transmit pool: a fixed-capacity byte array
// plus the length currently in use.
type Buffer struct {
	data [MaxTransferLength]byte
	n    int
}

// Bytes returns the buffer's storage, writable up to MaxTransferLength.
func (b *Buffer) Bytes() []byte { return b.data[:] }

// ReceiveCallback is invoked once per completed IN transfer. It must
// not block: the receive loop calls it synchronously before resubmitting.
type ReceiveCallback func(payload []byte)

// Transport owns the claimed USB interface and the transmit buffer
// pool. Construct via Open; call Close to release the device and stop
// the receive loop.
type Transport struct {
	log *logrus.Entry

	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	ifaceCloser func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint

	pool *ring.Ring[Buffer]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	droppedFrames uint64
	droppedMu     sync.Mutex

	onReceive ReceiveCallback
	recvMu    sync.Mutex
}

// Open enumerates USB devices matching sel, claims the hand's bulk
// interface on the unique match, and returns a Transport ready to
// receive once Receive has been called and StartReceive invoked.
func Open(sel Selector, log *logrus.Entry) (*Transport, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx := gousb.NewContext()

	var matched []*gousb.Device
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != sel.VID {
			return false
		}
		if sel.PID != 0 && desc.Product != sel.PID {
			return false
		}
		return true
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("handdrv/transport: enumerate devices: %w", err)
	}

	for _, d := range devs {
		if sel.Serial != "" {
			serial, serr := d.SerialNumber()
			if serr != nil || serial != sel.Serial {
				d.Close()
				continue
			}
		}
		matched = append(matched, d)
	}

	switch len(matched) {
	case 0:
		ctx.Close()
		return nil, handdrv.ErrDeviceNotFound
	case 1:
		// fall through
	default:
		for _, d := range matched {
			d.Close()
		}
		ctx.Close()
		log.Errorf("matched %d devices for vid=%s pid=%s serial=%q, rejecting ambiguous selection",
			len(matched), sel.VID, sel.PID, sel.Serial)
		return nil, handdrv.ErrAmbiguousDevice
	}
	dev := matched[0]

	if err := dev.SetAutoDetach(true); err != nil {
		log.Warnf("set auto-detach kernel driver: %v", err)
	}

	iface, closer, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("handdrv/transport: claim interface: %w", err)
	}

	out, err := iface.OutEndpoint(outEndpointAddr)
	if err != nil {
		closer()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("handdrv/transport: open OUT endpoint: %w", err)
	}
	in, err := iface.InEndpoint(inEndpointAddr & 0x7f)
	if err != nil {
		closer()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("handdrv/transport: open IN endpoint: %w", err)
	}

	bufs := make([]*Buffer, transmitPoolSize)
	for i := range bufs {
		bufs[i] = &Buffer{}
	}

	t := &Transport{
		log:         log,
		ctx:         ctx,
		device:      dev,
		iface:       iface,
		ifaceCloser: closer,
		in:          in,
		out:         out,
		pool:        ring.New(bufs),
	}
	return t, nil
}

// RequestTransmitBuffer returns an owned buffer from the free pool, or
// nil if the pool is exhausted. Non-blocking, callable from any thread.
func (t *Transport) RequestTransmitBuffer() *Buffer {
	buf, ok := t.pool.Pop()
	if !ok {
		t.droppedMu.Lock()
		t.droppedFrames++
		t.droppedMu.Unlock()
		return nil
	}
	return buf
}

// DroppedFrameCount returns how many times RequestTransmitBuffer found
// the pool empty.
func (t *Transport) DroppedFrameCount() uint64 {
	t.droppedMu.Lock()
	defer t.droppedMu.Unlock()
	return t.droppedFrames
}

// Transmit hands buf's first size bytes to the OUT endpoint and
// returns buf to the free pool once the transfer completes. size must
// not exceed MaxTransferLength.
func (t *Transport) Transmit(buf *Buffer, size int) error {
	defer t.pool.Push(buf)
	if size > MaxTransferLength {
		return handdrv.ErrTransferTooLarge
	}
	_, err := t.out.Write(buf.data[:size])
	if err != nil {
		t.log.Errorf("bulk OUT transfer failed: %v", err)
		return err
	}
	return nil
}

// Receive subscribes callback to completed IN transfers. Call exactly
// once, before StartReceive.
func (t *Transport) Receive(callback ReceiveCallback) {
	t.recvMu.Lock()
	t.onReceive = callback
	t.recvMu.Unlock()
}

// StartReceive launches the receive workers. Each loops issuing
// blocking bulk IN reads and invoking the subscribed callback,
// automatically resubmitting on success. An unrecoverable read failure
// terminates the process after logging, matching the transport's
// no-recovery contract for device disconnects.
func (t *Transport) StartReceive() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	for i := 0; i < receiveWorkers; i++ {
		t.wg.Add(1)
		go t.receiveLoop(ctx)
	}
}

func (t *Transport) receiveLoop(ctx context.Context) {
	defer t.wg.Done()
	buf := make([]byte, MaxTransferLength)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := t.in.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Fatalf("unrecoverable bulk IN transfer failure, terminating: %v", err)
		}
		t.recvMu.Lock()
		cb := t.onReceive
		t.recvMu.Unlock()
		if cb != nil && n > 0 {
			cb(buf[:n])
		}
	}
}

// Close stops the receive loop, closes the pool to further returns,
// releases the claimed interface, and closes the USB device handle.
func (t *Transport) Close() error {
	t.pool.Close()
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.ifaceCloser()
	err := t.device.Close()
	t.ctx.Close()
	return err
}
