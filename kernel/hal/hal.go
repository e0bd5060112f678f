package hal

import (
	"bytes"
	"io"
	"sort"

	"gopherpc/device"
	"gopherpc/kernel/cpu"
	"gopherpc/kernel/irq"
	"gopherpc/kernel/kfmt"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	// activeIntController is the interrupt controller that the irq
	// package routes vector enable/disable and ack requests through.
	activeIntController irq.Controller

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer

	disableInterruptsFn = cpu.DisableInterrupts
)

// ActiveDrivers returns the list of drivers that were successfully
// initialized by the last call to DetectHardware.
func ActiveDrivers() []device.Driver {
	return devices.activeDrivers
}

// ActiveIntController returns the interrupt controller selected by the last
// call to DetectHardware or nil if no controller was detected.
func ActiveIntController() irq.Controller {
	return devices.activeIntController
}

// Quiesce stops interrupt delivery on the CPU and masks every line on the
// active interrupt controller. Panic and reboot paths invoke it so that a
// chatty device cannot keep raising interrupts while the machine goes down.
func Quiesce() {
	disableInterruptsFn()

	if devices.activeIntController != nil {
		devices.activeIntController.MaskAll()
	}
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: sinkWriter{}}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. The first driver that implements
// irq.Controller gets wired to the irq package; the first driver that
// implements io.Writer becomes the kfmt output sink unless one is already
// installed.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case irq.Controller:
		if devices.activeIntController != nil {
			return
		}

		devices.activeIntController = drvImpl
		irq.SetController(drvImpl)
	case io.Writer:
		if kfmt.GetOutputSink() != nil {
			return
		}

		kfmt.SetOutputSink(drvImpl)
	}
}

// sinkWriter forwards writes to the writer that kfmt currently routes output
// to. Probing resolves the destination per write rather than snapshotting it
// so that output from later probes reaches a sink installed by an earlier
// probe.
type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) {
	return kfmt.Output().Write(p)
}
