package hand

import "github.com/wuji-robotics/handdrv/pkg/store"

// Rebase constants from spec.md §6: finger f (0..4) and joint j (0..3)
// rebase a joint-level base index by adding 0x2000 + 0x800*f + 0x100*j.
const (
	jointRebaseBase   = 0x2000
	jointRebaseFinger = 0x0800
	jointRebaseJoint  = 0x0100
)

func rebase(baseIndex uint16, finger, joint int) uint16 {
	return baseIndex + jointRebaseBase + uint16(finger)*jointRebaseFinger + uint16(joint)*jointRebaseJoint
}

// isReversedJoint reports whether (finger, joint) is one of the joints
// whose POSITION-policy objects carry the POSITION_REVERSED bit
// instead of plain POSITION: joint 0 ("J1") on every finger but the
// thumb (finger 0), per spec.md §4.6 and §4.4.
func isReversedJoint(finger, joint int) bool {
	return joint == 0 && finger != 0
}

// HandObject enumerates the hand-level object dictionary entries, in the
// order their storage IDs are assigned.
type HandObject int

const (
	Handedness HandObject = iota
	HostHeartbeat
	HandFirmwareVersion
	HandFirmwareDate
	FullSystemFirmwareVersion
	SystemTime
	HandTemperature
	InputVoltage
	RPdoDirectlyDistribute
	TPdoProactivelyReport
	PdoEnabled
	RPdoID
	TPdoID
	PdoInterval
	TriggerOffsetA
	TriggerOffsetB
	ProductSerial0
	ProductSerial1
	ProductSerial2
	ProductSerial3
	ProductSerial4
	ProductSerial5
	numHandObjs
)

type descTemplate struct {
	index    uint16
	subIndex uint8
	size     int
	policy   store.Policy
}

var handTemplates = [numHandObjs]descTemplate{
	Handedness:                {0x5090, 0, 1, store.PolicyNone},
	HostHeartbeat:             {0x50A0, 1, 4, store.PolicyHostHeartbeat},
	HandFirmwareVersion:       {0x5201, 1, 4, store.PolicyNone},
	HandFirmwareDate:          {0x5201, 2, 4, store.PolicyNone},
	FullSystemFirmwareVersion: {0x5201, 3, 4, store.PolicyNone},
	SystemTime:                {0x520A, 1, 4, store.PolicyNone},
	HandTemperature:           {0x520A, 9, 4, store.PolicyNone},
	InputVoltage:              {0x520A, 10, 4, store.PolicyNone},
	RPdoDirectlyDistribute:    {0x52A0, 3, 1, store.PolicyNone},
	TPdoProactivelyReport:     {0x52A0, 4, 1, store.PolicyNone},
	PdoEnabled:                {0x52A0, 5, 1, store.PolicyNone},
	RPdoID:                    {0x52A4, 1, 2, store.PolicyNone},
	TPdoID:                    {0x52A4, 2, 2, store.PolicyNone},
	PdoInterval:               {0x52A4, 5, 4, store.PolicyNone},
	TriggerOffsetA:            {0x52A4, 6, 4, store.PolicyNone},
	TriggerOffsetB:            {0x52A4, 7, 4, store.PolicyNone},
	ProductSerial0:            {0x5202, 1, 4, store.PolicyNone},
	ProductSerial1:            {0x5202, 2, 4, store.PolicyNone},
	ProductSerial2:            {0x5202, 3, 4, store.PolicyNone},
	ProductSerial3:            {0x5202, 4, 4, store.PolicyNone},
	ProductSerial4:            {0x5202, 5, 4, store.PolicyNone},
	ProductSerial5:            {0x5202, 6, 4, store.PolicyNone},
}

// JointObject enumerates the joint-level object dictionary entries, one
// set per (finger, joint) pair.
type JointObject int

const (
	JointFirmwareVersion JointObject = iota
	JointFirmwareDate
	ControlMode
	SinLevel
	PositionFilterCutoffFreq
	TorqueSlopeLimitPerCycle
	EffortLimit
	BusVoltage
	JointTemperature
	ResetError
	UpperLimit
	LowerLimit
	ErrorCode
	Enabled
	ActualPosition
	TargetPosition
	numJointObjs
)

var jointTemplates = [numJointObjs]descTemplate{
	JointFirmwareVersion:     {0x01, 1, 4, store.PolicyNone},
	JointFirmwareDate:        {0x01, 2, 4, store.PolicyNone},
	ControlMode:              {0x02, 1, 2, store.PolicyNone},
	SinLevel:                 {0x05, 8, 2, store.PolicyNone},
	PositionFilterCutoffFreq: {0x05, 19, 4, store.PolicyNone},
	TorqueSlopeLimitPerCycle: {0x05, 20, 4, store.PolicyNone},
	EffortLimit:              {0x07, 2, 2, store.PolicyEffortLimit},
	BusVoltage:               {0x0B, 8, 4, store.PolicyNone},
	JointTemperature:         {0x0B, 9, 4, store.PolicyNone},
	ResetError:               {0x0D, 4, 2, store.PolicyNone},
	UpperLimit:               {0x0E, 27, 4, store.PolicyPosition},
	LowerLimit:               {0x0E, 28, 4, store.PolicyPosition},
	ErrorCode:                {0x3F, 0, 4, store.PolicyNone},
	Enabled:                  {0x40, 0, 2, store.PolicyControlWord},
	ActualPosition:           {0x64, 0, 4, store.PolicyPosition},
	TargetPosition:           {0x7A, 0, 4, store.PolicyPosition},
}

// positionObjs are the joint-level objects whose POSITION policy flips
// to POSITION_REVERSED (and whose 27/28 sub-indices swap meaning) on a
// reversed joint.
var positionObjs = map[JointObject]bool{
	UpperLimit:      true,
	LowerLimit:      true,
	ActualPosition:  true,
	TargetPosition:  true,
}

// dictionary holds the fully resolved descriptor table plus the
// storage-ID lookup functions the public surface uses. It is built
// once at construction and never mutated afterward (index map
// invariant, spec.md §3).
type dictionary struct {
	descriptors []store.Descriptor
	handIDs     [numHandObjs]int
	jointIDs    [wireNumFingers][wireNumJoints][numJointObjs]int
}

const (
	wireNumFingers = 5
	wireNumJoints  = 4
)

// IndexOverride relocates one object's wire address to Index/SubIndex
// instead of its compiled-in default, keyed by the object's symbolic
// name (the strings in handObjectNames/jointObjectNames below). A
// joint-level override applies to the un-rebased template, so it
// takes effect identically on every (finger, joint) instance.
type IndexOverride struct {
	Index    uint16
	SubIndex uint8
}

// handObjectNames gives each HandObject constant the symbolic name an
// override profile addresses it by.
var handObjectNames = [numHandObjs]string{
	Handedness:                "Handedness",
	HostHeartbeat:             "HostHeartbeat",
	HandFirmwareVersion:       "HandFirmwareVersion",
	HandFirmwareDate:          "HandFirmwareDate",
	FullSystemFirmwareVersion: "FullSystemFirmwareVersion",
	SystemTime:                "SystemTime",
	HandTemperature:           "HandTemperature",
	InputVoltage:              "InputVoltage",
	RPdoDirectlyDistribute:    "RPdoDirectlyDistribute",
	TPdoProactivelyReport:     "TPdoProactivelyReport",
	PdoEnabled:                "PdoEnabled",
	RPdoID:                    "RPdoID",
	TPdoID:                    "TPdoID",
	PdoInterval:               "PdoInterval",
	TriggerOffsetA:            "TriggerOffsetA",
	TriggerOffsetB:            "TriggerOffsetB",
	ProductSerial0:            "ProductSerial0",
	ProductSerial1:            "ProductSerial1",
	ProductSerial2:            "ProductSerial2",
	ProductSerial3:            "ProductSerial3",
	ProductSerial4:            "ProductSerial4",
	ProductSerial5:            "ProductSerial5",
}

// jointObjectNames gives each JointObject constant the symbolic name
// an override profile addresses it by.
var jointObjectNames = [numJointObjs]string{
	JointFirmwareVersion:     "JointFirmwareVersion",
	JointFirmwareDate:        "JointFirmwareDate",
	ControlMode:              "ControlMode",
	SinLevel:                 "SinLevel",
	PositionFilterCutoffFreq: "PositionFilterCutoffFreq",
	TorqueSlopeLimitPerCycle: "TorqueSlopeLimitPerCycle",
	EffortLimit:              "EffortLimit",
	BusVoltage:               "BusVoltage",
	JointTemperature:         "JointTemperature",
	ResetError:               "ResetError",
	UpperLimit:               "UpperLimit",
	LowerLimit:               "LowerLimit",
	ErrorCode:                "ErrorCode",
	Enabled:                  "Enabled",
	ActualPosition:           "ActualPosition",
	TargetPosition:           "TargetPosition",
}

// buildDictionary constructs the static descriptor table, applying
// the finger/joint rebase, the reversed-joint swap, and any index
// overrides keyed by object name, and assigns each descriptor a dense
// storage ID equal to its position in the slice (the Store requires
// this).
func buildDictionary(mask uint32, overrides map[string]IndexOverride) *dictionary {
	d := &dictionary{}
	id := 0

	for h := HandObject(0); h < numHandObjs; h++ {
		t := handTemplates[h]
		index, subIndex := t.index, t.subIndex
		if ov, ok := overrides[handObjectNames[h]]; ok {
			index, subIndex = ov.Index, ov.SubIndex
		}
		d.descriptors = append(d.descriptors, store.Descriptor{
			StorageID: id,
			Index:     index,
			SubIndex:  subIndex,
			Size:      t.size,
			Policy:    t.policy,
		})
		d.handIDs[h] = id
		id++
	}

	// Resolve the joint templates' overrides once, up front, so the
	// reversed-joint subtree swap below (UpperLimit<->LowerLimit) swaps
	// the *resolved* sub-indices rather than the compiled-in constants,
	// should an override profile have relocated either one.
	var resolvedJointIndex [numJointObjs]uint16
	var resolvedJointSub [numJointObjs]uint8
	for o := JointObject(0); o < numJointObjs; o++ {
		resolvedJointIndex[o], resolvedJointSub[o] = jointTemplates[o].index, jointTemplates[o].subIndex
		if ov, ok := overrides[jointObjectNames[o]]; ok {
			resolvedJointIndex[o], resolvedJointSub[o] = ov.Index, ov.SubIndex
		}
	}

	for f := 0; f < wireNumFingers; f++ {
		for j := 0; j < wireNumJoints; j++ {
			reversed := isReversedJoint(f, j)
			jointMasked := mask&(1<<uint(f*wireNumJoints+j)) != 0
			for o := JointObject(0); o < numJointObjs; o++ {
				t := jointTemplates[o]
				baseIndex, subIndex := resolvedJointIndex[o], resolvedJointSub[o]
				policy := t.policy
				if reversed && positionObjs[o] {
					policy |= store.PolicyPositionReversed
					if o == UpperLimit {
						subIndex = resolvedJointSub[LowerLimit]
					} else if o == LowerLimit {
						subIndex = resolvedJointSub[UpperLimit]
					}
				}
				if jointMasked {
					policy |= store.PolicyMasked
				}
				d.descriptors = append(d.descriptors, store.Descriptor{
					StorageID: id,
					Index:     rebase(baseIndex, f, j),
					SubIndex:  subIndex,
					Size:      t.size,
					Policy:    policy,
				})
				d.jointIDs[f][j][o] = id
				id++
			}
		}
	}

	return d
}
