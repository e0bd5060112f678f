// Package i8259 provides a driver for the pair of cascaded 8259A
// programmable interrupt controllers found on PC compatible platforms. The
// driver remaps the 16 hardware lines away from the CPU exception vectors,
// arms and disarms individual lines and issues end of interrupt commands on
// behalf of the dispatch code.
package i8259

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
	masterCmdPort  = 0x20
	masterDataPort = 0x21
	slaveCmdPort   = 0xa0
	slaveDataPort  = 0xa1

	// icw1Init starts the initialization sequence in cascade mode with
	// ICW4 present.
	icw1Init = 0x11

	// icw4Master and icw4Slave select 8086 mode; the master variant also
	// carries the master select bit.
	icw4Master = 0x05
	icw4Slave  = 0x01

	// eoiCmd is the non-specific end of interrupt command.
	eoiCmd = 0x20

	// cascadeLine is the master line that the slave chip is wired to.
	cascadeLine = 2

	linesPerChip = 8
	allMasked    = 0xff
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errVectorOutOfRange = &kernel.Error{Module: "i8259", Message: "vector lies outside the interrupt vector space"}
)

// chip tracks the software visible state of a single 8259A.
type chip struct {
	cmdPort  uint16
	dataPort uint16

	// base is the vector that the chip's line 0 is remapped to.
	base irq.Vector

	// shadow mirrors the chip's interrupt mask register. A set bit masks
	// the corresponding line. It is re-synced from the hardware around
	// every mask mutation so that mask queries never need port reads.
	shadow uint8
}

// owns reports whether vector maps to one of the chip's eight lines.
func (c *chip) owns(vector irq.Vector) bool {
	return vector >= c.base && vector < c.base+linesPerChip
}

// bit returns the mask register bit for vector. The caller must ensure that
// the chip owns the vector.
func (c *chip) bit(vector irq.Vector) uint8 {
	return 1 << uint(vector-c.base)
}

// Driver manages the cascaded chip pair as a single 16 line interrupt
// controller. It implements both the device.Driver and the irq.Controller
// interfaces.
type Driver struct {
	// lock guards the shadow registers. Mask mutations can be triggered
	// from interrupt context, so the lock disables interrupt delivery on
	// the local CPU while held.
	lock sync.Spinlock

	master chip
	slave  chip
}

// NewDriver returns a Driver that remaps the master chip's lines to
// [masterBase, masterBase+8) and the slave chip's lines to
// [slaveBase, slaveBase+8) once initialized.
func NewDriver(masterBase, slaveBase irq.Vector) *Driver {
	return &Driver{
		master: chip{cmdPort: masterCmdPort, dataPort: masterDataPort, base: masterBase},
		slave:  chip{cmdPort: slaveCmdPort, dataPort: slaveDataPort, base: slaveBase},
	}
}

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "i8259"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit runs the chip initialization sequence. Both chips come out of
// it remapped to their configured vector bases with every line masked.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	flags := d.lock.AcquireIrqSave()
	d.remap()
	d.lock.ReleaseIrqRestore(flags)

	kfmt.Fprintf(w, "vector bases: master 0x%x, slave 0x%x\n", uint8(d.master.base), uint8(d.slave.base))
	return nil
}

// remap issues the four step initialization sequence to both chips and masks
// every line. The shadows are authoritative from this point on; the caller
// must hold d.lock.
func (d *Driver) remap() {
	// ICW1: begin initialization, edge triggered, cascade mode.
	portWriteByteFn(d.master.cmdPort, icw1Init)
	portWriteByteFn(d.slave.cmdPort, icw1Init)

	// ICW2: vector bases.
	portWriteByteFn(d.master.dataPort, uint8(d.master.base))
	portWriteByteFn(d.slave.dataPort, uint8(d.slave.base))

	// ICW3: the slave chip hangs off master line 2; the slave gets told
	// its own cascade identity.
	portWriteByteFn(d.master.dataPort, 1<<cascadeLine)
	portWriteByteFn(d.slave.dataPort, cascadeLine)

	// ICW4: 8086 mode.
	portWriteByteFn(d.master.dataPort, icw4Master)
	portWriteByteFn(d.slave.dataPort, icw4Slave)

	// Mask every line until a driver arms it.
	portWriteByteFn(d.master.dataPort, allMasked)
	portWriteByteFn(d.slave.dataPort, allMasked)
	d.master.shadow = allMasked
	d.slave.shadow = allMasked
}

// EnableVector unmasks the line feeding vector.
func (d *Driver) EnableVector(vector irq.Vector) *kernel.Error {
	return d.SetVectorEnabled(vector, true)
}

// DisableVector masks the line feeding vector.
func (d *Driver) DisableVector(vector irq.Vector) *kernel.Error {
	return d.SetVectorEnabled(vector, false)
}

// SetVectorEnabled masks or unmasks the controller line feeding vector.
// Vectors inside the interrupt vector space but outside the two chip ranges
// are tolerated as no-ops so that callers need not special-case lines this
// controller does not own. Vectors outside the vector space altogether
// report an error.
func (d *Driver) SetVectorEnabled(vector irq.Vector, enabled bool) *kernel.Error {
	if vector >= irq.NumVectors {
		return errVectorOutOfRange
	}

	flags := d.lock.AcquireIrqSave()
	d.setLineEnabled(vector, enabled)
	d.lock.ReleaseIrqRestore(flags)

	return nil
}

// VectorEnabled reports whether the line feeding vector is currently
// unmasked. The answer comes from the shadow registers without touching the
// hardware; vectors this controller does not own report false.
func (d *Driver) VectorEnabled(vector irq.Vector) bool {
	var enabled bool

	flags := d.lock.AcquireIrqSave()
	switch {
	case d.master.owns(vector):
		enabled = d.master.shadow&d.master.bit(vector) == 0
	case d.slave.owns(vector):
		enabled = d.slave.shadow&d.slave.bit(vector) == 0
	}
	d.lock.ReleaseIrqRestore(flags)

	return enabled
}

// setLineEnabled applies a single mask bit change. The caller must hold
// d.lock.
func (d *Driver) setLineEnabled(vector irq.Vector, enabled bool) {
	var c *chip
	switch {
	case d.master.owns(vector):
		c = &d.master
	case d.slave.owns(vector):
		c = &d.slave
	default:
		return
	}

	bit := c.bit(vector)
	if enabled == (c.shadow&bit == 0) {
		// Line already in the requested state; skip the hardware
		// access entirely.
		return
	}

	// Re-sync the shadow before modifying it: firmware (SMM) can flip
	// mask bits behind the driver's back. The read back after the write
	// confirms the new mask landed.
	c.shadow = portReadByteFn(c.dataPort)
	if enabled {
		c.shadow &^= bit
	} else {
		c.shadow |= bit
	}
	portWriteByteFn(c.dataPort, c.shadow)
	c.shadow = portReadByteFn(c.dataPort)

	if c == &d.slave {
		// The master's cascade line stays masked exactly while every
		// slave line is masked.
		d.setLineEnabled(d.master.base+cascadeLine, c.shadow != allMasked)
	}
}

// Acknowledge issues the end of interrupt command for vector. Interrupts
// delivered through the slave chip require an EOI to both chips, slave
// first: the master treats the whole slave as a single line and keeps the
// cascade blocked until it sees its own EOI. Vectors outside the two chip
// ranges are ignored.
func (d *Driver) Acknowledge(vector irq.Vector) {
	switch {
	case d.slave.owns(vector):
		portWriteByteFn(d.slave.cmdPort, eoiCmd)
		portWriteByteFn(d.master.cmdPort, eoiCmd)
	case d.master.owns(vector):
		portWriteByteFn(d.master.cmdPort, eoiCmd)
	}
}

// MaskAll masks all 16 lines. The shadows are re-read from the hardware so
// they keep tracking the true register contents.
func (d *Driver) MaskAll() {
	flags := d.lock.AcquireIrqSave()

	d.master.shadow = portReadByteFn(d.master.dataPort)
	d.slave.shadow = portReadByteFn(d.slave.dataPort)
	portWriteByteFn(d.master.dataPort, allMasked)
	portWriteByteFn(d.slave.dataPort, allMasked)
	d.master.shadow = portReadByteFn(d.master.dataPort)
	d.slave.shadow = portReadByteFn(d.slave.dataPort)

	d.lock.ReleaseIrqRestore(flags)
}

// probeForController always detects the controller pair: every PC compatible
// platform carries one, or an emulation of one.
func probeForController() device.Driver {
	return NewDriver(irq.MasterBase, irq.SlaveBase)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForController,
	})
}
