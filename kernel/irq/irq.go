// Package irq provides the registry that maps interrupt vectors to handlers
// and the dispatch entry point invoked by the interrupt gate stubs.
package irq

import (
	"gopherpc/kernel"
	"gopherpc/kernel/kfmt"
	"gopherpc/kernel/sync"
)

// Disposition is returned by interrupt handlers and by Dispatch to signal
// whether the scheduler must run before control returns to the interrupted
// context.
type Disposition uint8

const (
	// NoReschedule resumes the interrupted context directly.
	NoReschedule Disposition = iota

	// Reschedule asks the trap return path to invoke the scheduler first.
	Reschedule
)

// Handler services interrupts delivered on a single vector.
type Handler interface {
	ServiceInterrupt(vector Vector) Disposition
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(Vector) Disposition

// ServiceInterrupt calls f.
func (f HandlerFunc) ServiceInterrupt(vector Vector) Disposition { return f(vector) }

// Controller abstracts the interrupt controller hardware that gates and
// acknowledges the vectors in the [MasterBase, SlaveBase+8) range.
type Controller interface {
	// EnableVector unmasks the controller line feeding vector.
	EnableVector(vector Vector) *kernel.Error

	// DisableVector masks the controller line feeding vector.
	DisableVector(vector Vector) *kernel.Error

	// Acknowledge signals completion of the in-service interrupt so the
	// controller can deliver the next one. Vectors outside the controller
	// range are ignored.
	Acknowledge(vector Vector)

	// MaskAll masks every line managed by the controller.
	MaskAll()
}

var (
	errNoController = &kernel.Error{Module: "irq", Message: "no interrupt controller registered"}
	errBadVector    = &kernel.Error{Module: "irq", Message: "interrupt vector out of range"}

	// registryLock serializes handler registrations. Dispatch runs with
	// interrupts disabled and reads the table without taking the lock, so
	// a vector must stay masked until its registration completes.
	registryLock sync.Spinlock
	handlers     [NumVectors]Handler

	controller Controller

	// panicFn is swapped out by tests that exercise fatal paths.
	panicFn = kfmt.Panic
)

// SetController installs the interrupt controller driver that EnableVector,
// DisableVector and Dispatch delegate to. It is invoked once by the hardware
// detection code before interrupts are enabled.
func SetController(c Controller) {
	controller = c
}

// RegisterHandler installs h as the handler for the given vector, replacing
// any previously registered handler. Passing a vector outside the dispatch
// table is a programming error and triggers a kernel panic.
func RegisterHandler(vector Vector, h Handler) {
	if vector >= NumVectors {
		panicFn(errBadVector)
		return
	}

	flags := registryLock.AcquireIrqSave()
	handlers[vector] = h
	registryLock.ReleaseIrqRestore(flags)
}

// RegisteredHandler returns the handler currently installed for vector, or
// nil when the vector has no handler or lies outside the dispatch table.
// Like Dispatch, it reads the table without taking the registration lock.
func RegisteredHandler(vector Vector) Handler {
	if vector >= NumVectors {
		return nil
	}
	return handlers[vector]
}

// EnableVector unmasks the controller line feeding the given vector.
func EnableVector(vector Vector) *kernel.Error {
	if controller == nil {
		return errNoController
	}
	return controller.EnableVector(vector)
}

// DisableVector masks the controller line feeding the given vector.
func DisableVector(vector Vector) *kernel.Error {
	if controller == nil {
		return errNoController
	}
	return controller.DisableVector(vector)
}

// Dispatch is invoked by the interrupt entry stubs once the register state
// has been captured into frame. It runs the handler registered for the
// frame's vector, acknowledges the interrupt and reports whether the
// scheduler needs to run before returning to the interrupted context.
//
// Unregistered vectors are tolerated: the interrupt is acknowledged and the
// interrupted context resumes. A vector outside the dispatch table means a
// corrupt frame or a stub bug and triggers a kernel panic.
func Dispatch(frame *Frame) Disposition {
	vector := frame.Vector
	if vector < uint64(MasterBase) || vector >= NumVectors {
		panicFn(errBadVector)
		return NoReschedule
	}

	disposition := NoReschedule
	if h := handlers[vector]; h != nil {
		disposition = h.ServiceInterrupt(Vector(vector))
	}

	// Acknowledge after the handler has run; the controller holds back
	// further interrupts on this line until it sees the acknowledgment.
	if controller != nil {
		controller.Acknowledge(Vector(vector))
	}

	return disposition
}
