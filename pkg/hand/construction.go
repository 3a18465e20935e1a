package hand

import (
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv"
	"github.com/wuji-robotics/handdrv/pkg/pdo"
	"github.com/wuji-robotics/handdrv/pkg/store"
	"github.com/wuji-robotics/handdrv/pkg/transport"
	"github.com/wuji-robotics/handdrv/pkg/wire"
)

// defaultVID is the hand's USB vendor ID when Config.VID is left zero.
const defaultVID = 0x0483

// constructionTimeout bounds every individual SDO round trip the
// construction sequence performs; a timeout at any step surfaces as an
// initialization error, per spec.md §4.8.
const constructionTimeout = 500 * time.Millisecond

const (
	controlModeBaseline  = 6
	controlModeFiltered  = 9
	controlModeStreaming = 5
	pdoIntervalUs        = 2000
	pdoIntervalDirectUs  = 1000

	// legacyEffortLimitAmps is the CurrentLimit fallback construction
	// writes to every joint on firmware that predates on-device
	// filtering: 1 A, i.e. the literal 1000 (milliamps on the wire) in
	// device/hand.hpp's constructor.
	legacyEffortLimitAmps = 1.0
)

// Minimum firmware versions gating construction, per spec.md §4.8 /
// SPEC_FULL.md §6.2. The "pre" byte on the two feature-gate versions
// encodes the vendor's release-channel letter tag (J, B), not a
// numeric pre-release level; FirmwareVersion.Less/AtLeast compare it
// like any other field.
var (
	minHandFirmware       = handdrv.FirmwareVersion{Major: 3}
	firmwareFilterMinimum = handdrv.FirmwareVersion{Major: 6, Minor: 4, Pre: 'J'}
	rpdoDirectMinimum     = handdrv.FirmwareVersion{Major: 3, Minor: 2, Pre: 'B'}
	tpdoProactiveMinimum  = handdrv.FirmwareVersion{Major: 1, Minor: 1}
)

// Open claims the USB device matching cfg, brings up the transport,
// object store, and PDO engine, and runs the construction sequence
// (firmware validation, feature-gate resolution, joint baseline).
// Open is the thread that owns the returned Hand for the owner-thread
// guard, unless EnableOwnerThreadGuard is false.
func Open(cfg Config) (*Hand, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.VID == 0 {
		cfg.VID = defaultVID
	}

	pid := gousb.ID(0)
	if cfg.PID > 0 {
		pid = gousb.ID(cfg.PID)
	}
	sel := transport.Selector{VID: gousb.ID(cfg.VID), PID: pid, Serial: cfg.Serial}

	t, err := transport.Open(sel, cfg.Log)
	if err != nil {
		return nil, err
	}

	dict := buildDictionary(cfg.Mask, cfg.Overrides)
	st := store.New(dict.descriptors, cfg.Log)
	sdoFB := wire.NewFrameBuilder(t, wire.FrameTypeSDO, cfg.Log)
	pdoFB := wire.NewFrameBuilder(t, wire.FrameTypePDO, cfg.Log)
	pdoEngine := pdo.NewEngine(pdoFB, cfg.Log)

	h := &Hand{
		cfg:       cfg,
		log:       cfg.Log,
		transport: t,
		sdoFB:     sdoFB,
		pdoFB:     pdoFB,
		store:     st,
		pdoEngine: pdoEngine,
		dict:      dict,
	}
	for f := 0; f < wireNumFingers; f++ {
		fg := &Finger{hand: h, index: f}
		for j := 0; j < wireNumJoints; j++ {
			fg.joints[j] = &Joint{hand: h, finger: f, idx: j}
		}
		h.fingers[f] = fg
	}

	h.guardOwner()

	t.Receive(h.demux)
	t.StartReceive()
	st.StartSweep(sdoFB, -1)

	if err := h.runConstructionSequence(); err != nil {
		st.StopSweep()
		t.Close()
		return nil, err
	}
	return h, nil
}

// demux routes a completed bulk IN transfer's payload to the SDO or
// PDO handling path by the frame type in its header, discarding
// frames that fail to parse (the device never sends anything else on
// this endpoint, but a torn read at start-of-stream is possible).
func (h *Hand) demux(payload []byte) {
	hdr, ok := wire.ParseHeader(payload)
	if !ok {
		h.log.Warnf("handdrv: discarding %d-byte frame with invalid header", len(payload))
		return
	}
	end := hdr.FrameLength
	if end > len(payload) {
		end = len(payload)
	}
	body := payload[wire.HeaderLen:end]
	switch hdr.Type {
	case wire.FrameTypeSDO:
		h.store.HandleSDOFrame(body)
	case wire.FrameTypePDO:
		h.pdoEngine.HandlePDOFrame(body)
	default:
		h.log.Warnf("handdrv: discarding frame with unknown type %#02x", hdr.Type)
	}
}

// runConstructionSequence implements spec.md §4.8: read and validate
// firmware versions, resolve the version-gated feature flags, and
// disable every joint, setting its control mode to the baseline mode
// (or to the filtered mode on firmware that filters on-device).
func (h *Hand) runConstructionSequence() error {
	handRaw, err := h.store.Read(h.dict.handIDs[HandFirmwareVersion], constructionTimeout)
	if err != nil {
		return err
	}
	handVer := handdrv.FirmwareVersionFromU32(handdrv.As[uint32](handRaw))
	if handVer.Less(minHandFirmware) {
		return &handdrv.FirmwareIncompatibleError{Component: "hand", Got: handVer, Want: minHandFirmware}
	}

	sysRaw, err := h.store.Read(h.dict.handIDs[FullSystemFirmwareVersion], constructionTimeout)
	if err != nil {
		return err
	}
	sysVer := handdrv.FirmwareVersionFromU32(handdrv.As[uint32](sysRaw))

	// Probe every joint's firmware version for consistency. A joint
	// running older firmware than the hand reports is only logged, not
	// fatal: spec.md's construction sequence names hand-version
	// validation as the one firmware check that blocks startup.
	for f := 0; f < wireNumFingers; f++ {
		for j := 0; j < wireNumJoints; j++ {
			raw, err := h.store.Read(h.dict.jointIDs[f][j][JointFirmwareVersion], constructionTimeout)
			if err != nil {
				return err
			}
			jointVer := handdrv.FirmwareVersionFromU32(handdrv.As[uint32](raw))
			if jointVer.Less(handVer) {
				h.log.WithFields(logrus.Fields{"finger": f, "joint": j}).
					Warnf("joint firmware %s is older than hand firmware %s", jointVer, handVer)
			}
		}
	}

	h.firmwareFilter = sysVer.AtLeast(firmwareFilterMinimum)
	h.rpdoDirect = handVer.AtLeast(rpdoDirectMinimum)
	h.tpdoProactive = sysVer.AtLeast(tpdoProactiveMinimum)

	controlMode := uint16(controlModeBaseline)
	if h.firmwareFilter {
		controlMode = controlModeFiltered
	}
	for f := 0; f < wireNumFingers; f++ {
		for j := 0; j < wireNumJoints; j++ {
			jt := h.fingers[f].joints[j]
			if err := jt.SetEnabled(false, constructionTimeout); err != nil {
				return err
			}
			if err := jt.Write(ControlMode, handdrv.BufferFrom(controlMode), constructionTimeout); err != nil {
				return err
			}
		}
	}

	// On firmware new enough to filter targets on-device, wire up the
	// filtered-mode PDO channel; older firmware instead gets the legacy
	// per-joint current limit, exactly as device/hand.hpp's constructor
	// branches.
	if h.firmwareFilter {
		if err := h.store.Write(h.dict.handIDs[RPdoID], handdrv.BufferFrom(uint16(0x01)), constructionTimeout); err != nil {
			return err
		}
		if err := h.store.Write(h.dict.handIDs[TPdoID], handdrv.BufferFrom(uint16(0x01)), constructionTimeout); err != nil {
			return err
		}
		interval := uint32(pdoIntervalUs)
		if h.rpdoDirect {
			interval = pdoIntervalDirectUs
		}
		if err := h.store.Write(h.dict.handIDs[PdoInterval], handdrv.BufferFrom(interval), constructionTimeout); err != nil {
			return err
		}
		if err := h.store.Write(h.dict.handIDs[PdoEnabled], handdrv.BufferFrom(uint8(1)), constructionTimeout); err != nil {
			return err
		}
	} else {
		for f := 0; f < wireNumFingers; f++ {
			for j := 0; j < wireNumJoints; j++ {
				jt := h.fingers[f].joints[j]
				if err := jt.Write(EffortLimit, handdrv.BufferFrom(float64(legacyEffortLimitAmps)), constructionTimeout); err != nil {
					return err
				}
			}
		}
	}

	if err := h.store.Write(h.dict.handIDs[RPdoDirectlyDistribute], handdrv.BufferFrom(boolToU8(h.rpdoDirect)), constructionTimeout); err != nil {
		return err
	}
	if err := h.store.Write(h.dict.handIDs[TPdoProactivelyReport], handdrv.BufferFrom(boolToU8(h.tpdoProactive)), constructionTimeout); err != nil {
		return err
	}

	if h.tpdoProactive {
		h.store.EnableHostHeartbeat(h.dict.handIDs[HostHeartbeat])
	}

	return nil
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// ProductSerialNumber reads the six-chunk serial number readout,
// per SPEC_FULL.md §6 item 6 — an optional accessor, not part of the
// mandatory construction sequence.
func (h *Hand) ProductSerialNumber(timeout time.Duration) ([6]uint32, error) {
	var out [6]uint32
	objs := [6]HandObject{ProductSerial0, ProductSerial1, ProductSerial2, ProductSerial3, ProductSerial4, ProductSerial5}
	for i, o := range objs {
		v, err := h.HandRead(o, timeout)
		if err != nil {
			return out, err
		}
		out[i] = handdrv.As[uint32](v)
	}
	return out, nil
}

// Close stops the SDO sweep thread and releases the USB device. It does
// not stop the PDO loop: a controller or latency test still attached
// keeps its loop goroutine running until its handle is detached or
// stopped.
func (h *Hand) Close() error {
	h.store.StopSweep()
	return h.transport.Close()
}
