// Package config loads the two on-disk profile formats a deployment
// may supply: a YAML device profile (serial number, VID/PID, joint
// mask, logging) and an INI-based object-dictionary override profile
// (per-object index remaps), mirroring the teacher's pkg/od EDS/INI
// loading and pkg/config node configurator split between "connection
// parameters" and "dictionary parameters".
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// Profile is the YAML device profile: everything hand.Config needs
// plus the ambient logging setup the construction sequence itself has
// no opinion about.
type Profile struct {
	SerialNumber string `yaml:"serial_number"`
	USBVendorID  uint16 `yaml:"usb_vid"`
	USBProductID int32  `yaml:"usb_pid"`

	// Mask lists the (finger, joint) pairs to exclude from all
	// operations, written the readable way in YAML and folded into a
	// 20-bit bitmap by MaskBits.
	Mask []JointRef `yaml:"mask"`

	Log LogProfile `yaml:"log"`
}

// JointRef names one (finger, joint) pair in a YAML mask list.
type JointRef struct {
	Finger int `yaml:"finger"`
	Joint  int `yaml:"joint"`
}

// LogProfile configures logrus's level and, optionally, a rotating
// file sink behind it.
type LogProfile struct {
	Level string `yaml:"level"`

	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

const (
	numFingers = 5
	numJoints  = 4

	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

// LoadProfile reads and parses a YAML device profile from path.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("handdrv/config: read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("handdrv/config: parse profile %s: %w", path, err)
	}
	return &p, nil
}

// MaskBits folds the profile's joint mask list into the 20-bit bitmap
// hand.Config.Mask expects (bit index = finger*4+joint).
func (p *Profile) MaskBits() (uint32, error) {
	var mask uint32
	for _, ref := range p.Mask {
		if ref.Finger < 0 || ref.Finger >= numFingers || ref.Joint < 0 || ref.Joint >= numJoints {
			return 0, fmt.Errorf("handdrv/config: mask entry finger=%d joint=%d out of range", ref.Finger, ref.Joint)
		}
		mask |= 1 << uint(ref.Finger*numJoints+ref.Joint)
	}
	return mask, nil
}

// ConfigureLogging builds a *logrus.Entry per the profile's Log
// section: parses the level, and if a file path is set, routes output
// through a lumberjack rotating writer instead of stderr.
func (p *Profile) ConfigureLogging() (*logrus.Entry, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if p.Log.Level != "" {
		parsed, err := logrus.ParseLevel(p.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("handdrv/config: parse log level %q: %w", p.Log.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	if p.Log.File != "" {
		maxSize := p.Log.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}
		maxBackups := p.Log.MaxBackups
		if maxBackups <= 0 {
			maxBackups = defaultMaxBackups
		}
		maxAge := p.Log.MaxAgeDays
		if maxAge <= 0 {
			maxAge = defaultMaxAgeDays
		}
		logger.SetOutput(&lumberjack.Logger{
			Filename:   p.Log.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   p.Log.Compress,
		})
	}

	return logrus.NewEntry(logger), nil
}

// ObjectOverride is one object-dictionary index remap entry from an
// INI override profile: the object named by Name gets relocated to
// (Index, SubIndex) instead of its compiled-in default.
type ObjectOverride struct {
	Name     string
	Index    uint16
	SubIndex uint8
}

// LoadObjectOverrides parses an INI-format object-dictionary override
// profile. Each section name is the object's symbolic name (matching
// a HandObject/JointObject constant's String-ish identifier, e.g.
// "EffortLimit"); its "Index" and "SubIndex" keys give the replacement
// address. This mirrors the teacher's pkg/od EDS section-per-object
// layout, simplified to a flat remap table since this driver's
// dictionary shape (unlike a general CANopen node) is fixed at compile
// time and only its addresses are meant to be overridable.
func LoadObjectOverrides(path string) ([]ObjectOverride, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("handdrv/config: load override profile %s: %w", path, err)
	}

	var overrides []ObjectOverride
	for _, section := range f.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		idxKey, err := section.GetKey("Index")
		if err != nil {
			return nil, fmt.Errorf("handdrv/config: section %s: %w", section.Name(), err)
		}
		idx, err := strconv.ParseUint(idxKey.Value(), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("handdrv/config: section %s: invalid Index %q", section.Name(), idxKey.Value())
		}

		subIndex := uint64(0)
		if subKey, err := section.GetKey("SubIndex"); err == nil {
			subIndex, err = strconv.ParseUint(subKey.Value(), 0, 8)
			if err != nil {
				return nil, fmt.Errorf("handdrv/config: section %s: invalid SubIndex %q", section.Name(), subKey.Value())
			}
		}

		overrides = append(overrides, ObjectOverride{
			Name:     section.Name(),
			Index:    uint16(idx),
			SubIndex: uint8(subIndex),
		})
	}
	return overrides, nil
}
