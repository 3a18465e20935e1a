package pdo

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// Frequency is the PDO loop's nominal tick rate.
const Frequency = 500

var tickPeriod = time.Second / time.Duration(Frequency)

// TickFunc is invoked once per scheduled tick. elapsed is the wall
// time since the previous tick actually ran; scheduled is how far
// into the session the *intended* tick boundary falls, letting the
// caller stamp outgoing frames against a drift-free clock rather than
// the jittery wall-clock read.
type TickFunc func(fb *wire.FrameBuilder, elapsed, scheduled time.Duration)

// ReceiveFunc is invoked for every received PDO frame's payload
// (the bytes following the {write_id, read_id} header), with readID
// already split out.
type ReceiveFunc func(readID byte, payload []byte)

// Engine owns the PDO frame builder, the upstream position/error
// mirrors, and the single 500 Hz loop thread. Exactly one of a
// filtering controller or a latency test may run the loop at a time;
// Run enforces that exclusivity.
type Engine struct {
	fb  *wire.FrameBuilder
	log *logrus.Entry

	mu      sync.Mutex
	running bool
	recv    ReceiveFunc

	actualPos     [wire.NumFingers][wire.NumJoints]atomic.Uint64 // float64 bits
	errorCode     [wire.NumFingers][wire.NumJoints]atomic.Uint32
	// lastErrorCode is touched only from the transport's receive
	// callback (pkg/transport.Transport.StartReceive runs exactly one
	// receive worker, so HandlePDOFrame→applyUpstreamErrors never runs
	// concurrently with itself); it is not the 500 Hz loop thread.
	lastErrorCode [wire.NumFingers][wire.NumJoints]uint32
	upstreamVer   atomic.Uint64
}

// NewEngine binds an Engine to the PDO frame builder fb.
func NewEngine(fb *wire.FrameBuilder, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{fb: fb, log: log}
}

// Handle represents one running loop attachment (controller or latency
// tester). Stop ends the loop and joins its goroutine.
type Handle struct {
	engine *Engine
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Stop signals the loop goroutine to exit, waits for it to join, and
// releases the engine's exclusivity lock.
func (h *Handle) Stop() {
	close(h.stopCh)
	h.wg.Wait()
	h.engine.mu.Lock()
	h.engine.running = false
	h.engine.recv = nil
	h.engine.mu.Unlock()
}

// Run starts the 500 Hz loop invoking tick once per scheduled period
// and routing received PDO payloads to recv. It fails with
// ErrControllerAttached if a controller or latency test is already
// running.
func (e *Engine) Run(tick TickFunc, recv ReceiveFunc) (*Handle, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, handdrv.ErrControllerAttached
	}
	e.running = true
	e.recv = recv
	e.mu.Unlock()

	h := &Handle{engine: e, stopCh: make(chan struct{})}
	h.wg.Add(1)
	go e.loop(h.stopCh, &h.wg, tick)
	return h, nil
}

func (e *Engine) loop(stop <-chan struct{}, wg *sync.WaitGroup, tick TickFunc) {
	defer wg.Done()
	RaisePriority(e.log)
	start := time.Now()
	next := tickPeriod
	last := time.Duration(0)
	for {
		select {
		case <-stop:
			return
		default:
		}
		now := time.Since(start)
		if now < next {
			time.Sleep(next - now)
			now = time.Since(start)
		}
		elapsed := now - last
		last = now
		tick(e.fb, elapsed, next)
		next += tickPeriod
	}
}

// HandlePDOFrame is called by the demux with a received PDO frame's
// payload, already stripped of the framing header. It routes to the
// currently attached mode's receive function, if any.
func (e *Engine) HandlePDOFrame(payload []byte) {
	if len(payload) < 2 {
		return
	}
	readID := payload[1]
	e.mu.Lock()
	recv := e.recv
	e.mu.Unlock()
	if recv != nil {
		recv(readID, payload[2:])
	}
}

// UpstreamVersion returns the monotonically increasing counter bumped
// every time an upstream frame updates the position/error mirrors. A
// caller wanting a torn-free snapshot must read this before and after
// reading the mirrors and retry on mismatch, or accept per-element
// tearing (spec.md §5).
func (e *Engine) UpstreamVersion() uint64 { return e.upstreamVer.Load() }

// ActualPositions snapshots the actual-position mirror.
func (e *Engine) ActualPositions() JointPositions {
	var jp JointPositions
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			jp[f][j] = math.Float64frombits(e.actualPos[f][j].Load())
		}
	}
	return jp
}

// ErrorCodes snapshots the error-code mirror.
func (e *Engine) ErrorCodes() [wire.NumFingers][wire.NumJoints]uint32 {
	var ec [wire.NumFingers][wire.NumJoints]uint32
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			ec[f][j] = e.errorCode[f][j].Load()
		}
	}
	return ec
}

// decodeJointAngle inverts the wire int32 encoding applied to upstream
// positions: thumb (finger 0) joint 0 is un-negated, every other
// finger's joint 0 is negated, per the POSITION_REVERSED convention
// spec.md §4.6 calls out for the downstream write path and which
// applies symmetrically upstream.
func decodeJointAngle(f, j int, raw int32) float64 {
	if j == 0 && f != 0 {
		raw = -raw
	}
	return float64(raw) / positionScale
}

// encodeJointAngle is decodeJointAngle's inverse, used to build the
// downstream target PDO.
func encodeJointAngle(f, j int, angle float64) int32 {
	raw := clampInt32(angle * positionScale)
	if j == 0 && f != 0 {
		raw = -raw
	}
	return raw
}

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

// applyUpstreamPositions stores a decoded positions frame into the
// actual-position mirror and bumps the upstream version, per spec.md
// §5's relaxed-store-plus-release-fence ordering: individual elements
// use relaxed stores, and the version counter bump afterward acts as
// the release a consistency-seeking reader acquires against.
func (e *Engine) applyUpstreamPositions(positions [wire.NumFingers][wire.NumJoints]int32) {
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			angle := decodeJointAngle(f, j, positions[f][j])
			e.actualPos[f][j].Store(math.Float64bits(angle))
		}
	}
	e.upstreamVer.Add(1)
}

// applyUpstreamErrors stores a decoded error-code frame into the
// error-code mirror and logs one line per newly-set fault bit per
// joint, diffed against the previous cycle.
func (e *Engine) applyUpstreamErrors(codes [wire.NumFingers][wire.NumJoints]uint32) {
	for f := 0; f < wire.NumFingers; f++ {
		for j := 0; j < wire.NumJoints; j++ {
			cur := codes[f][j]
			prev := e.lastErrorCode[f][j]
			if cur != prev {
				diffErrorBits(prev, cur, func(bit int, fb faultBit) {
					entry := e.log.WithFields(logrus.Fields{
						"finger":   f,
						"joint":    j,
						"bit":      bit,
						"severity": fb.severity,
					})
					if fb.severity == SeverityWarning {
						entry.Warnf("joint fault: %s", fb.name)
					} else {
						entry.Errorf("joint fault: %s", fb.name)
					}
				})
				e.lastErrorCode[f][j] = cur
				e.errorCode[f][j].Store(cur)
			}
		}
	}
}
