package handdrv

import "errors"

var (
	ErrIllegalArgument     = errors.New("error in function arguments")
	ErrTimeout             = errors.New("operation did not complete before its deadline")
	ErrPoolExhausted       = errors.New("transmit buffer pool exhausted, frame dropped")
	ErrTransferTooLarge    = errors.New("payload exceeds maximum transfer length")
	ErrAmbiguousDevice     = errors.New("more than one USB device matched the given selector")
	ErrDeviceNotFound      = errors.New("no USB device matched the given selector")
	ErrControllerAttached  = errors.New("a real-time controller or latency tester is already attached")
	ErrControllerDetached  = errors.New("no real-time controller is attached")
	ErrReadPending         = errors.New("an unchecked read is already pending on this object")
	ErrUnknownObject       = errors.New("index/sub-index does not name a registered object")
	ErrRawSlotsExhausted   = errors.New("all raw SDO slots are in use")
	ErrNotOwnerThread      = errors.New("public operation invoked from a thread other than the owning one")
	ErrFirmwareIncompatible = errors.New("device firmware version is below the minimum supported version")
)

// TimeoutError is returned by synchronous calls that did not complete
// before their deadline. It wraps ErrTimeout so callers can use
// errors.Is(err, ErrTimeout) while still recovering the storage ID that
// timed out.
type TimeoutError struct {
	StorageID int
}

func (e *TimeoutError) Error() string { return "handdrv: operation timed out" }

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// FirmwareIncompatibleError is raised at construction when the hand
// reports a firmware version below the minimum this driver supports.
// Joint firmware versions are not checked against a minimum.
type FirmwareIncompatibleError struct {
	Component string
	Got       FirmwareVersion
	Want      FirmwareVersion
}

func (e *FirmwareIncompatibleError) Error() string {
	return "handdrv: " + e.Component + " firmware " + e.Got.String() +
		" is below minimum supported " + e.Want.String()
}

func (e *FirmwareIncompatibleError) Unwrap() error { return ErrFirmwareIncompatible }
