// Package uart drives a 16550 compatible serial port. The transmit side is
// polled so the port can serve as the kernel log sink; received bytes arrive
// over the port's interrupt line and are buffered for normal context
// readers.
package uart

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
	com1Base = 0x3f8

	// Register offsets from the port base. The data and interrupt enable
	// registers double as the divisor latch while the DLAB bit is set.
	regData       = 0
	regIntEnable  = 1
	regFIFOCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5
	regScratch    = 7

	lineCtrl8N1  = 0x03
	lineCtrlDLAB = 0x80

	// intEnableRxData raises the port interrupt whenever received data
	// becomes available.
	intEnableRxData = 0x01

	// fifoCtrlEnableClear enables both FIFOs, flushes them and sets a 14
	// byte receive trigger level.
	fifoCtrlEnableClear = 0xc7

	// modemCtrlReady raises DTR and RTS and opens the OUT2 gate that
	// routes the port interrupt to the controller.
	modemCtrlReady = 0x0b

	lineStatusRxReady = 0x01
	lineStatusTxEmpty = 0x20

	// clockRate divided by the divisor latch value yields the baud rate.
	clockRate = 115200

	// DefaultBaudRate is used by the probed COM1 driver.
	DefaultBaudRate = 115200

	scratchProbeVal = 0xae

	// bufferSize bounds the receive backlog. Must be a power of two; the
	// oldest entries are dropped on overflow.
	bufferSize = 64
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errBadBaudRate = &kernel.Error{Module: "uart", Message: "baud rate must divide the clock rate into a 16 bit divisor"}
)

// Driver manages a single 16550 port.
type Driver struct {
	base     uint16
	baudRate uint32

	// lock guards the receive ring; the interrupt handler and normal
	// context readers contend for it.
	lock   sync.Spinlock
	buffer [bufferSize]uint8
	head   int
	count  int
}

// NewDriver returns a Driver for the port at base, programmed to baudRate
// once initialized.
func NewDriver(base uint16, baudRate uint32) *Driver {
	return &Driver{base: base, baudRate: baudRate}
}

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "uart"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit programs the line parameters, registers the receive handler
// and arms the port's interrupt line.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	if d.baudRate == 0 {
		return errBadBaudRate
	}
	divisor := uint32(clockRate) / d.baudRate
	if divisor == 0 || divisor > 0xffff {
		return errBadBaudRate
	}

	// Quiesce the port, program the divisor latch and switch to 8N1.
	portWriteByteFn(d.base+regIntEnable, 0)
	portWriteByteFn(d.base+regLineCtrl, lineCtrlDLAB)
	portWriteByteFn(d.base+regData, uint8(divisor))
	portWriteByteFn(d.base+regIntEnable, uint8(divisor>>8))
	portWriteByteFn(d.base+regLineCtrl, lineCtrl8N1)
	portWriteByteFn(d.base+regFIFOCtrl, fifoCtrlEnableClear)
	portWriteByteFn(d.base+regModemCtrl, modemCtrlReady)

	irq.RegisterHandler(irq.VectorCOM1, d)
	if err := irq.EnableVector(irq.VectorCOM1); err != nil {
		return err
	}
	portWriteByteFn(d.base+regIntEnable, intEnableRxData)

	kfmt.Fprintf(w, "%d baud, 8N1\n", d.baudRate)
	return nil
}

// ServiceInterrupt drains the receive FIFO into the ring buffer. Received
// bytes never request a reschedule.
func (d *Driver) ServiceInterrupt(_ irq.Vector) irq.Disposition {
	flags := d.lock.AcquireIrqSave()
	for portReadByteFn(d.base+regLineStatus)&lineStatusRxReady != 0 {
		d.push(portReadByteFn(d.base + regData))
	}
	d.lock.ReleaseIrqRestore(flags)

	return irq.NoReschedule
}

// push appends a received byte, dropping the oldest one when the ring is
// full. The caller must hold d.lock.
func (d *Driver) push(b uint8) {
	d.buffer[(d.head+d.count)&(bufferSize-1)] = b
	if d.count == bufferSize {
		d.head = (d.head + 1) & (bufferSize - 1)
	} else {
		d.count++
	}
}

// ReadByte pops the oldest received byte; it reports false when the buffer
// is empty.
func (d *Driver) ReadByte() (uint8, bool) {
	flags := d.lock.AcquireIrqSave()
	if d.count == 0 {
		d.lock.ReleaseIrqRestore(flags)
		return 0, false
	}

	b := d.buffer[d.head]
	d.head = (d.head + 1) & (bufferSize - 1)
	d.count--
	d.lock.ReleaseIrqRestore(flags)

	return b, true
}

// Write sends p out of the port, spinning on the transmitter status between
// bytes. It implements io.Writer so the port can act as the kernel log
// sink.
func (d *Driver) Write(p []byte) (int, error) {
	for _, b := range p {
		for portReadByteFn(d.base+regLineStatus)&lineStatusTxEmpty == 0 {
		}
		portWriteByteFn(d.base+regData, b)
	}

	return len(p), nil
}

// probeForCOM1 pokes the scratch register to detect the port: real hardware
// echoes the value back while a missing port floats.
func probeForCOM1() device.Driver {
	portWriteByteFn(com1Base+regScratch, scratchProbeVal)
	if portReadByteFn(com1Base+regScratch) != scratchProbeVal {
		return nil
	}

	return NewDriver(com1Base, DefaultBaudRate)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderDefault,
		Probe: probeForCOM1,
	})
}
