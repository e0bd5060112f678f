// Package kbd provides a driver for the PS/2 keyboard controller. Scancodes
// delivered on the keyboard interrupt line are buffered so that normal
// context code can consume them at its own pace.
package kbd

import (
	"io"

	"gopherpc/device"
	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
	"gopherpc/kernel/irq"
	"gopherpc/kernel/kfmt"
	"gopherpc/kernel/sync"
)

const (
	dataPort   = 0x60
	statusPort = 0x64

	// statusOutputFull is set while the controller holds a byte for the
	// CPU to read.
	statusOutputFull = 0x01

	// bufferSize bounds the scancode backlog. Must be a power of two;
	// the oldest entries are dropped on overflow.
	bufferSize = 32
)

var portReadByteFn = cpu.PortReadByte

// Driver buffers the scancodes delivered by the keyboard interrupt.
type Driver struct {
	// lock guards the scancode ring; the interrupt handler and normal
	// context readers contend for it.
	lock sync.Spinlock

	buffer [bufferSize]uint8
	head   int
	count  int
}

// NewDriver returns a keyboard driver with an empty scancode buffer.
func NewDriver() *Driver {
	return &Driver{}
}

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "kbd"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit registers the scancode handler and arms the keyboard line.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	irq.RegisterHandler(irq.VectorKeyboard, d)
	if err := irq.EnableVector(irq.VectorKeyboard); err != nil {
		return err
	}

	kfmt.Fprintf(w, "scancode buffer: %d entries\n", bufferSize)
	return nil
}

// ServiceInterrupt drains the controller's output buffer into the scancode
// ring. Keystrokes never request a reschedule.
func (d *Driver) ServiceInterrupt(_ irq.Vector) irq.Disposition {
	flags := d.lock.AcquireIrqSave()
	for portReadByteFn(statusPort)&statusOutputFull != 0 {
		d.push(portReadByteFn(dataPort))
	}
	d.lock.ReleaseIrqRestore(flags)

	return irq.NoReschedule
}

// push appends a scancode, dropping the oldest one when the ring is full.
// The caller must hold d.lock.
func (d *Driver) push(code uint8) {
	d.buffer[(d.head+d.count)&(bufferSize-1)] = code
	if d.count == bufferSize {
		d.head = (d.head + 1) & (bufferSize - 1)
	} else {
		d.count++
	}
}

// ReadScancode pops the oldest buffered scancode; it reports false when the
// buffer is empty.
func (d *Driver) ReadScancode() (uint8, bool) {
	flags := d.lock.AcquireIrqSave()
	if d.count == 0 {
		d.lock.ReleaseIrqRestore(flags)
		return 0, false
	}

	code := d.buffer[d.head]
	d.head = (d.head + 1) & (bufferSize - 1)
	d.count--
	d.lock.ReleaseIrqRestore(flags)

	return code, true
}

// Pending returns the number of buffered scancodes.
func (d *Driver) Pending() int {
	flags := d.lock.AcquireIrqSave()
	n := d.count
	d.lock.ReleaseIrqRestore(flags)

	return n
}

// probeForKeyboard always reports the controller as present; the 8042 (or
// an emulation of it) ships with every PC compatible platform.
func probeForKeyboard() device.Driver {
	return NewDriver()
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderDefault,
		Probe: probeForKeyboard,
	})
}
