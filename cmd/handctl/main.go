// Command handctl is a diagnostic CLI over the handdrv public
// surface: raw SDO read/write, a streaming actual-position dump, a
// latency test runner, and a PDF session report. Subcommand dispatch
// and flag handling follow the teacher's cmd/canopen tools: one
// flag.FlagSet per subcommand, plain log.Fatal on setup failure.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wuji-robotics/handdrv/pkg/config"
	"github.com/wuji-robotics/handdrv/pkg/hand"
	"github.com/wuji-robotics/handdrv/pkg/pdo"
)

// passthroughController commands each joint to hold its last observed
// actual position and keeps that snapshot, so the stream subcommand can
// read upstream values without driving any motion.
type passthroughController struct {
	last atomic.Pointer[pdo.JointPositions]
}

func (*passthroughController) Setup(frequencyHz float64) {}

func (c *passthroughController) Step(actual pdo.JointPositions) pdo.JointPositions {
	c.last.Store(&actual)
	return actual
}

const defaultTimeout = 500 * time.Millisecond

func main() {
	log.SetLevel(log.InfoLevel)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "read":
		cmdRead(os.Args[2:])
	case "write":
		cmdWrite(os.Args[2:])
	case "stream":
		cmdStream(os.Args[2:])
	case "latency":
		cmdLatency(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: handctl <read|write|stream|latency|report> [flags]")
}

// deviceFlagSet is the set of flags every subcommand exposes to pick a
// device (raw -vid/-pid/-serial) and, optionally, a YAML device
// profile and an INI object-dictionary override profile that take
// precedence over the raw flags where they overlap.
type deviceFlagSet struct {
	vid       *uint
	pid       *int
	serial    *string
	profile   *string
	overrides *string
}

func deviceFlags(fs *flag.FlagSet) deviceFlagSet {
	return deviceFlagSet{
		vid:       fs.Uint("vid", 0x0483, "USB vendor ID"),
		pid:       fs.Int("pid", -1, "USB product ID, -1 matches any"),
		serial:    fs.String("serial", "", "USB serial number, empty matches any"),
		profile:   fs.String("profile", "", "path to a YAML device profile (see pkg/config.Profile)"),
		overrides: fs.String("overrides", "", "path to an INI object-dictionary override profile"),
	}
}

// openHand resolves df into a hand.Config, loading a device profile
// and an object-override profile when given, then opens the device.
// A profile's log section builds the hand's logger (level, and
// optionally a rotating file sink) via pkg/config.ConfigureLogging
// before the hand is opened, so construction-sequence logging already
// goes through it; this command's own log calls keep logrus's
// standard logger.
func openHand(df deviceFlagSet) *hand.Hand {
	cfg := hand.Config{
		VID:    uint16(*df.vid),
		PID:    int32(*df.pid),
		Serial: *df.serial,
	}

	if *df.profile != "" {
		p, err := config.LoadProfile(*df.profile)
		if err != nil {
			log.Fatalf("load profile: %v", err)
		}
		if p.SerialNumber != "" {
			cfg.Serial = p.SerialNumber
		}
		if p.USBVendorID != 0 {
			cfg.VID = p.USBVendorID
		}
		if p.USBProductID != 0 {
			cfg.PID = p.USBProductID
		}
		mask, err := p.MaskBits()
		if err != nil {
			log.Fatalf("profile mask: %v", err)
		}
		cfg.Mask = mask

		entry, err := p.ConfigureLogging()
		if err != nil {
			log.Fatalf("configure logging: %v", err)
		}
		cfg.Log = entry
	}
	if cfg.Log == nil {
		cfg.Log = log.NewEntry(log.StandardLogger())
	}

	if *df.overrides != "" {
		overrides, err := config.LoadObjectOverrides(*df.overrides)
		if err != nil {
			log.Fatalf("load overrides: %v", err)
		}
		cfg.Overrides = make(map[string]hand.IndexOverride, len(overrides))
		for _, ov := range overrides {
			cfg.Overrides[ov.Name] = hand.IndexOverride{Index: ov.Index, SubIndex: ov.SubIndex}
		}
	}

	h, err := hand.Open(cfg)
	if err != nil {
		log.Fatalf("open hand: %v", err)
	}
	return h
}

func cmdRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	df := deviceFlags(fs)
	index := fs.String("index", "", "object index, hex, e.g. 0x5201")
	sub := fs.Uint("sub", 0, "object sub-index")
	fs.Parse(args)

	idx, err := strconv.ParseUint(*index, 0, 16)
	if err != nil {
		log.Fatalf("invalid -index %q: %v", *index, err)
	}

	h := openHand(df)
	defer h.Close()

	data, err := h.RawRead(uint16(idx), uint8(*sub), defaultTimeout)
	if err != nil {
		log.Fatalf("raw read %#04x:%d: %v", idx, *sub, err)
	}
	fmt.Printf("% x\n", data)
}

func cmdWrite(args []string) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	df := deviceFlags(fs)
	index := fs.String("index", "", "object index, hex, e.g. 0x5201")
	sub := fs.Uint("sub", 0, "object sub-index")
	value := fs.Uint64("value", 0, "value to write")
	size := fs.Uint("size", 4, "payload size in bytes: 1, 2, 4, or 8")
	fs.Parse(args)

	idx, err := strconv.ParseUint(*index, 0, 16)
	if err != nil {
		log.Fatalf("invalid -index %q: %v", *index, err)
	}

	buf := make([]byte, *size)
	for i := range buf {
		buf[i] = byte(*value >> (8 * i))
	}

	h := openHand(df)
	defer h.Close()

	if err := h.RawWrite(uint16(idx), uint8(*sub), buf, defaultTimeout); err != nil {
		log.Fatalf("raw write %#04x:%d: %v", idx, *sub, err)
	}
	fmt.Println("ok")
}

func cmdStream(args []string) {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	df := deviceFlags(fs)
	duration := fs.Duration("duration", 5*time.Second, "how long to stream")
	fs.Parse(args)

	h := openHand(df)
	defer h.Close()

	ctrl := &passthroughController{}
	ctrlHandle, err := h.AttachController(ctrl, true, defaultTimeout)
	if err != nil {
		log.Fatalf("attach controller: %v", err)
	}
	defer ctrlHandle.Detach()

	deadline := time.Now().Add(*duration)
	for time.Now().Before(deadline) {
		if positions := ctrl.last.Load(); positions != nil {
			fmt.Printf("thumb J1 = %.4f rad\n", positions[0][0])
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func cmdLatency(args []string) {
	fs := flag.NewFlagSet("latency", flag.ExitOnError)
	df := deviceFlags(fs)
	duration := fs.Duration("duration", 3*time.Second, "how long to run the latency test")
	fs.Parse(args)

	h := openHand(df)
	defer h.Close()

	lt, err := h.StartLatencyTest()
	if err != nil {
		log.Fatalf("start latency test: %v", err)
	}
	time.Sleep(*duration)
	lt.Stop()

	samples := lt.Samples()
	fmt.Printf("collected %d samples\n", len(samples))
	var total time.Duration
	for _, s := range samples {
		total += s.RoundTrip
	}
	if len(samples) > 0 {
		fmt.Printf("average round trip: %s\n", total/time.Duration(len(samples)))
	}
}
