// Package sync provides the spinlock primitive used to guard kernel state
// that is shared between normal execution and interrupt context.
package sync

import (
	"sync/atomic"

	"gopherpc/kernel/cpu"
)

// spinsBeforeYield is the number of failed acquisition attempts after which a
// spinning task offers the CPU to whoever holds the lock.
const spinsBeforeYield = 64

var (
	// yieldFn is invoked while busy-waiting so that the lock holder gets a
	// chance to run. It stays nil until a scheduler is available.
	yieldFn func()
)

// Spinlock implements mutual exclusion by busy-waiting until the lock becomes
// available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock is held by the caller. Attempting to
// re-acquire a lock already held by the current task deadlocks.
func (l *Spinlock) Acquire() {
	var spins uint32
	for !l.TryToAcquire() {
		archSpinHint()
		if spins++; spins == spinsBeforeYield {
			spins = 0
			if yieldFn != nil {
				yieldFn()
			}
		}
	}
}

// TryToAcquire makes a single attempt to acquire the lock and reports whether
// it succeeded.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Releasing a free lock has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// AcquireIrqSave disables local interrupt delivery before acquiring the lock.
// This is required for any critical section that can also be entered from an
// interrupt handler: without it, an interrupt arriving while the lock is held
// on the same CPU would spin forever against its own interrupted task. The
// returned flag state must be handed to the matching ReleaseIrqRestore call.
func (l *Spinlock) AcquireIrqSave() uint64 {
	flags := cpu.SaveFlagsAndDisableInterrupts()
	l.Acquire()
	return flags
}

// ReleaseIrqRestore relinquishes the lock and re-establishes the interrupt
// delivery state captured by the matching AcquireIrqSave call.
func (l *Spinlock) ReleaseIrqRestore(flags uint64) {
	l.Release()
	cpu.RestoreFlags(flags)
}

// archSpinHint signals the processor that the caller is inside a busy-wait
// loop.
func archSpinHint()
