// Package core runs the extended sparse address space probe against a
// device.Instance: capability negotiation, device creation and the
// sparse image stress allocation.
package core

import (
	"github.com/foijord/ExtendedSparseAddressSpace/device"
)

// Reason tags a fatal probe failure
type Reason int

// Identifies the failing stage
const (
	ReasonEnumeration Reason = iota
	ReasonNoDevice
	ReasonDeviceIndex
	ReasonQuery
	ReasonMissingCapability
	ReasonFormatUnsupported
	ReasonUsageUnsupported
	ReasonDeviceCreation
)

var reasonNames = map[Reason]string{
	ReasonEnumeration:       "enumeration",
	ReasonNoDevice:          "no device",
	ReasonDeviceIndex:       "device index",
	ReasonQuery:             "query",
	ReasonMissingCapability: "missing capability",
	ReasonFormatUnsupported: "format unsupported",
	ReasonUsageUnsupported:  "usage unsupported",
	ReasonDeviceCreation:    "device creation",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Failure is a fatal precondition failure. The message names the
// failing check, Err holds the driver error if there was one.
type Failure struct {
	Reason     Reason
	Capability device.Capability
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(reason Reason, message string, err error) *Failure {
	return &Failure{Reason: reason, Message: message, Err: err}
}
