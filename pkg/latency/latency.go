// Package latency implements the alternate PDO mode that stamps
// outgoing test IDs and correlates the five-stage timestamps the
// device echoes back (spec.md §4.9 / component table). It shares
// pkg/pdo's Engine and its single-attachment exclusivity with the
// real-time controller: starting a latency test while a controller is
// attached fails the same way a second controller attach would.
package latency

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv/pkg/pdo"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// Sample is one correlated round trip: the outgoing probe id, the
// device's five internal stage timestamps, and the host-observed
// round-trip duration.
type Sample struct {
	ID          uint32
	Stages      [5]uint32 // device-clock microsecond timestamps T0..T4
	SpinalTxUs  uint32
	USBRxTxUs   uint32
	RoundTrip   time.Duration
}

// Tester runs the PDO loop in latency-probe mode: every tick it sends
// a new correlation id and logs the matching result frame when it
// arrives.
type Tester struct {
	engine *pdo.Engine
	log    *logrus.Entry

	mu      sync.Mutex
	nextID  uint32
	sentAt  map[uint32]time.Time
	samples []Sample
}

// New constructs a Tester bound to engine. The PDO engine must not
// already have a controller or another latency test attached.
func New(engine *pdo.Engine, log *logrus.Entry) *Tester {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tester{engine: engine, log: log, sentAt: make(map[uint32]time.Time)}
}

// Start begins stamping and sending latency probes. Stop (via the
// returned handle) ends the test.
func (t *Tester) Start() (*pdo.Handle, error) {
	tick := func(fb *wire.FrameBuilder, elapsed, scheduled time.Duration) {
		t.mu.Lock()
		id := t.nextID
		t.nextID++
		t.sentAt[id] = time.Now()
		t.mu.Unlock()

		rec := wire.PutPDOLatencyTest(nil, id)
		if dst, err := fb.Allocate(len(rec)); err == nil {
			copy(dst, rec)
		}
	}

	recv := func(readID byte, payload []byte) {
		if readID != wire.PDOReadLatencyTestResult {
			return
		}
		res, _, ok := wire.ParseLatencyTestResult(payload)
		if !ok {
			return
		}
		t.correlate(res)
	}

	return t.engine.Run(tick, recv)
}

func (t *Tester) correlate(res wire.LatencyTestResult) {
	// The result frame carries one trace per joint; the probe id is
	// common across all twenty, so any non-zero entry identifies the
	// round trip it answers.
	var id uint32
	var stages [5]uint32
	for _, j := range res.Joints {
		if j.ID != 0 {
			id = j.ID
			stages = [5]uint32{j.T0, j.T1, j.T2, j.T3, j.T4}
			break
		}
	}

	t.mu.Lock()
	sentAt, ok := t.sentAt[id]
	if ok {
		delete(t.sentAt, id)
	}
	t.mu.Unlock()
	if !ok {
		t.log.Warnf("latency: result for unknown probe id %d discarded", id)
		return
	}

	sample := Sample{
		ID:         id,
		Stages:     stages,
		SpinalTxUs: res.T5SpinalTx,
		USBRxTxUs:  res.TUsbRxTx,
		RoundTrip:  time.Since(sentAt),
	}
	t.mu.Lock()
	t.samples = append(t.samples, sample)
	t.mu.Unlock()
	t.log.Debugf("latency: probe %d round trip %s", id, sample.RoundTrip)
}

// Samples returns every correlated round trip observed so far.
func (t *Tester) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}
