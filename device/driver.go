package device

import (
	"io"

	"gopherpc/kernel"
)

// Driver is the interface every device driver implements.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device. Anything the driver wants to
	// report during initialization goes to the supplied io.Writer via
	// kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn checks for the presence of a particular piece of hardware and
// returns a driver instance for it, or nil when the hardware is absent.
type ProbeFn func() Driver

// DetectOrder specifies when a driver probe runs relative to the other
// registered drivers.
type DetectOrder int8

const (
	// DetectOrderEarly drivers are probed before everything else. The
	// interrupt controller must be up before any driver that registers
	// an interrupt handler.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderDefault suits most peripheral drivers.
	DetectOrderDefault DetectOrder = 0

	// DetectOrderLast drivers are probed after every other driver.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo describes a driver registered with the hardware detection code.
type DriverInfo struct {
	// Order controls when the Probe function runs during hardware
	// detection.
	Order DetectOrder

	// Probe checks for the presence of the hardware the driver manages
	// and returns a Driver instance for it, or nil if the hardware is
	// not present.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that sorts by detection
// order.
type DriverInfoList []*DriverInfo

// Len returns the number of entries in the list.
func (l DriverInfoList) Len() int { return len(l) }

// Less reports whether the driver at index i probes before the one at j.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

// Swap exchanges two list entries.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver to the list that the hardware detection code
// probes at boot. It is meant to be called from driver package init blocks.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
