package irq

import (
	"testing"

	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
	"gopherpc/kernel/kfmt"
)

func TestRegisterHandlerOverwritesPreviousHandler(t *testing.T) {
	defer resetRegistry()
	defer stubInterruptGating()()

	var firstCalls, secondCalls int
	RegisterHandler(VectorKeyboard, HandlerFunc(func(Vector) Disposition {
		firstCalls++
		return NoReschedule
	}))
	RegisterHandler(VectorKeyboard, HandlerFunc(func(Vector) Disposition {
		secondCalls++
		return Reschedule
	}))

	h := handlers[VectorKeyboard]
	if h == nil {
		t.Fatal("expected a handler to be registered for the keyboard vector")
	}

	if got := h.ServiceInterrupt(VectorKeyboard); got != Reschedule {
		t.Fatalf("expected the most recent registration to win; got disposition %d", got)
	}
	if firstCalls != 0 || secondCalls != 1 {
		t.Fatalf("expected calls to reach only the second handler; got first=%d, second=%d", firstCalls, secondCalls)
	}
}

func TestRegisteredHandler(t *testing.T) {
	defer resetRegistry()
	defer stubInterruptGating()()

	if got := RegisteredHandler(VectorCOM2); got != nil {
		t.Fatalf("expected no handler for an empty slot; got %v", got)
	}

	h := HandlerFunc(func(Vector) Disposition { return NoReschedule })
	RegisterHandler(VectorCOM2, h)

	if got := RegisteredHandler(VectorCOM2); got == nil {
		t.Fatal("expected the registered handler to be returned")
	}

	if got := RegisteredHandler(NumVectors); got != nil {
		t.Fatalf("expected nil for an out of range vector; got %v", got)
	}
}

func TestRegisterHandlerRestoresInterruptState(t *testing.T) {
	defer resetRegistry()

	var saveCalls, restoreCalls int
	origSave, origRestore := cpu.SaveFlagsAndDisableInterrupts, cpu.RestoreFlags
	defer func() {
		cpu.SaveFlagsAndDisableInterrupts = origSave
		cpu.RestoreFlags = origRestore
	}()
	cpu.SaveFlagsAndDisableInterrupts = func() uint64 {
		saveCalls++
		return 0x246
	}
	cpu.RestoreFlags = func(flags uint64) {
		restoreCalls++
		if flags != 0x246 {
			t.Errorf("expected the saved flag value to be restored; got %x", flags)
		}
	}

	RegisterHandler(VectorPIT, HandlerFunc(func(Vector) Disposition { return NoReschedule }))

	if saveCalls != 1 || restoreCalls != 1 {
		t.Fatalf("expected registration to disable and restore interrupts exactly once; got save=%d, restore=%d", saveCalls, restoreCalls)
	}
}

func TestRegisterHandlerOutOfRange(t *testing.T) {
	defer resetRegistry()
	defer stubInterruptGating()()

	var panicErr interface{}
	panicFn = func(e interface{}) { panicErr = e }

	RegisterHandler(NumVectors, HandlerFunc(func(Vector) Disposition { return NoReschedule }))

	if panicErr != errBadVector {
		t.Fatalf("expected an out of range registration to panic with errBadVector; got %v", panicErr)
	}

	// The last table slot is still a legal registration target.
	panicErr = nil
	RegisterHandler(NumVectors-1, HandlerFunc(func(Vector) Disposition { return NoReschedule }))
	if panicErr != nil {
		t.Fatalf("unexpected panic for an in-range registration: %v", panicErr)
	}
	if handlers[NumVectors-1] == nil {
		t.Fatal("expected the syscall vector registration to be recorded")
	}
}

func TestDispatch(t *testing.T) {
	defer resetRegistry()
	defer stubInterruptGating()()

	m := &mockController{}
	SetController(m)

	var gotVector Vector
	RegisterHandler(VectorKeyboard, HandlerFunc(func(vector Vector) Disposition {
		gotVector = vector
		return Reschedule
	}))

	frame := &Frame{Vector: uint64(VectorKeyboard)}
	if got := Dispatch(frame); got != Reschedule {
		t.Fatalf("expected Dispatch to propagate the handler disposition; got %d", got)
	}

	if gotVector != VectorKeyboard {
		t.Fatalf("expected the handler to receive vector %x; got %x", VectorKeyboard, gotVector)
	}
	if len(m.acked) != 1 || m.acked[0] != VectorKeyboard {
		t.Fatalf("expected exactly one acknowledgment for vector %x; got %v", VectorKeyboard, m.acked)
	}
}

func TestDispatchUnregisteredVector(t *testing.T) {
	defer resetRegistry()

	m := &mockController{}
	SetController(m)

	// No handler registered: the interrupt must still be acknowledged so
	// the controller does not wedge the line.
	if got := Dispatch(&Frame{Vector: uint64(VectorRTC)}); got != NoReschedule {
		t.Fatalf("expected NoReschedule for an unregistered vector; got %d", got)
	}
	if len(m.acked) != 1 || m.acked[0] != VectorRTC {
		t.Fatalf("expected the unregistered vector to be acknowledged; got %v", m.acked)
	}
}

func TestDispatchWithoutController(t *testing.T) {
	defer resetRegistry()
	defer stubInterruptGating()()

	var calls int
	RegisterHandler(VectorPIT, HandlerFunc(func(Vector) Disposition {
		calls++
		return NoReschedule
	}))

	if got := Dispatch(&Frame{Vector: uint64(VectorPIT)}); got != NoReschedule {
		t.Fatalf("expected NoReschedule; got %d", got)
	}
	if calls != 1 {
		t.Fatalf("expected the handler to run even with no controller installed; got %d calls", calls)
	}
}

func TestDispatchVectorOutOfRange(t *testing.T) {
	defer resetRegistry()

	m := &mockController{}
	SetController(m)

	var panicErr interface{}
	panicFn = func(e interface{}) { panicErr = e }

	specs := []uint64{
		uint64(MasterBase) - 1,
		NumVectors,
	}

	for specIndex, vector := range specs {
		panicErr = nil
		if got := Dispatch(&Frame{Vector: vector}); got != NoReschedule {
			t.Errorf("[spec %d] expected NoReschedule; got %d", specIndex, got)
		}
		if panicErr != errBadVector {
			t.Errorf("[spec %d] expected a panic with errBadVector; got %v", specIndex, panicErr)
		}
	}

	if len(m.acked) != 0 {
		t.Fatalf("expected no acknowledgment for out of range vectors; got %v", m.acked)
	}
}

func TestEnableDisableVector(t *testing.T) {
	defer resetRegistry()

	if err := EnableVector(VectorPIT); err != errNoController {
		t.Fatalf("expected errNoController; got %v", err)
	}
	if err := DisableVector(VectorPIT); err != errNoController {
		t.Fatalf("expected errNoController; got %v", err)
	}

	m := &mockController{}
	SetController(m)

	if err := EnableVector(VectorCOM1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := DisableVector(VectorCOM1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.enabled) != 1 || m.enabled[0] != VectorCOM1 {
		t.Fatalf("expected the enable request to reach the controller; got %v", m.enabled)
	}
	if len(m.disabled) != 1 || m.disabled[0] != VectorCOM1 {
		t.Fatalf("expected the disable request to reach the controller; got %v", m.disabled)
	}

	expErr := &kernel.Error{Module: "test", Message: "enable failed"}
	m.nextErr = expErr
	if err := EnableVector(VectorCOM1); err != expErr {
		t.Fatalf("expected the controller error to propagate; got %v", err)
	}
}

// mockController records the calls made through the Controller interface.
type mockController struct {
	enabled      []Vector
	disabled     []Vector
	acked        []Vector
	maskAllCalls int
	nextErr      *kernel.Error
}

func (m *mockController) EnableVector(vector Vector) *kernel.Error {
	m.enabled = append(m.enabled, vector)
	return m.nextErr
}

func (m *mockController) DisableVector(vector Vector) *kernel.Error {
	m.disabled = append(m.disabled, vector)
	return m.nextErr
}

func (m *mockController) Acknowledge(vector Vector) {
	m.acked = append(m.acked, vector)
}

func (m *mockController) MaskAll() {
	m.maskAllCalls++
}

// stubInterruptGating replaces the privileged flag save/restore primitives
// with no-ops and returns a function that puts the originals back.
func stubInterruptGating() func() {
	origSave, origRestore := cpu.SaveFlagsAndDisableInterrupts, cpu.RestoreFlags
	cpu.SaveFlagsAndDisableInterrupts = func() uint64 { return 0 }
	cpu.RestoreFlags = func(uint64) {}
	return func() {
		cpu.SaveFlagsAndDisableInterrupts = origSave
		cpu.RestoreFlags = origRestore
	}
}

func resetRegistry() {
	handlers = [NumVectors]Handler{}
	controller = nil
	panicFn = kfmt.Panic
}
