package pit

import (
	"bytes"
	"testing"

	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
	"gopherpc/kernel/irq"
)

func TestDriverInit(t *testing.T) {
	defer stubInterruptGating()()
	defer func() {
		portWriteByteFn = cpu.PortWriteByte
		irq.SetController(nil)
		irq.RegisterHandler(irq.VectorPIT, nil)
	}()

	ctrl := &mockController{}
	irq.SetController(ctrl)

	// 100Hz yields divisor 11931 (0x2e9b).
	expWrites := []struct {
		port uint16
		val  uint8
	}{
		{cmdPort, cmdCh0RateGen},
		{ch0DataPort, 0x9b},
		{ch0DataPort, 0x2e},
	}

	writeCallCount := 0
	portWriteByteFn = func(port uint16, val uint8) {
		exp := expWrites[writeCallCount]
		if port != exp.port || val != exp.val {
			t.Errorf("[port write %d] expected port: 0x%x, val: 0x%x; got port: 0x%x, val: 0x%x", writeCallCount, exp.port, exp.val, port, val)
		}

		writeCallCount++
	}

	d := NewDriver(DefaultFrequency)

	var buf bytes.Buffer
	if err := d.DriverInit(&buf); err != nil {
		t.Fatalf("unexpected DriverInit error: %v", err)
	}

	if writeCallCount != len(expWrites) {
		t.Errorf("expected cpu.PortWriteByte to be called %d times; got %d", len(expWrites), writeCallCount)
	}

	if irq.RegisteredHandler(irq.VectorPIT) == nil {
		t.Error("expected the tick handler to be registered")
	}
	if len(ctrl.enabled) != 1 || ctrl.enabled[0] != irq.VectorPIT {
		t.Errorf("expected the timer line to be armed; got %v", ctrl.enabled)
	}
	if exp, got := "tick frequency: 100Hz\n", buf.String(); got != exp {
		t.Errorf("expected init to log %q; got %q", exp, got)
	}
}

func TestDriverInitInvalidFrequency(t *testing.T) {
	defer func() {
		portWriteByteFn = cpu.PortWriteByte
	}()

	portWriteByteFn = func(port uint16, val uint8) {
		t.Errorf("unexpected write to port 0x%x", port)
	}

	var buf bytes.Buffer
	for specIndex, frequency := range []uint32{0, 5, 2000000} {
		d := NewDriver(frequency)
		if err := d.DriverInit(&buf); err != errInvalidFrequency {
			t.Errorf("[spec %d] expected errInvalidFrequency; got %v", specIndex, err)
		}
	}
}

func TestDriverInitWithoutController(t *testing.T) {
	defer stubInterruptGating()()
	defer func() {
		portWriteByteFn = cpu.PortWriteByte
		irq.RegisterHandler(irq.VectorPIT, nil)
	}()

	portWriteByteFn = func(uint16, uint8) {}

	var buf bytes.Buffer
	err := NewDriver(DefaultFrequency).DriverInit(&buf)
	if err == nil {
		t.Fatal("expected DriverInit to fail when no interrupt controller is installed")
	}
	if err.Module != "irq" {
		t.Fatalf("expected the error to originate from the irq facade; got %v", err)
	}
}

func TestServiceInterrupt(t *testing.T) {
	d := NewDriver(DefaultFrequency)

	for i := 0; i < 3; i++ {
		if got := d.ServiceInterrupt(irq.VectorPIT); got != irq.Reschedule {
			t.Fatalf("expected every tick to request a reschedule; got %d", got)
		}
	}

	if got := d.Ticks(); got != 3 {
		t.Fatalf("expected 3 serviced ticks; got %d", got)
	}
}

func TestTickDispatch(t *testing.T) {
	defer stubInterruptGating()()
	defer func() {
		irq.SetController(nil)
		irq.RegisterHandler(irq.VectorPIT, nil)
	}()

	ctrl := &mockController{}
	irq.SetController(ctrl)

	d := NewDriver(DefaultFrequency)
	irq.RegisterHandler(irq.VectorPIT, d)

	frame := &irq.Frame{Vector: uint64(irq.VectorPIT)}
	if got := irq.Dispatch(frame); got != irq.Reschedule {
		t.Fatalf("expected the dispatched tick to request a reschedule; got %d", got)
	}

	if got := d.Ticks(); got != 1 {
		t.Fatalf("expected 1 serviced tick; got %d", got)
	}
	if len(ctrl.acked) != 1 || ctrl.acked[0] != irq.VectorPIT {
		t.Fatalf("expected the tick to be acknowledged; got %v", ctrl.acked)
	}
}

func TestProbe(t *testing.T) {
	drv := probeForPIT()
	if drv == nil {
		t.Fatal("expected probeForPIT to always detect the timer")
	}

	d, ok := drv.(*Driver)
	if !ok {
		t.Fatalf("expected probe to return a *Driver; got %T", drv)
	}
	if got := d.Frequency(); got != DefaultFrequency {
		t.Fatalf("expected the probed driver to use the default frequency; got %d", got)
	}
}

type mockController struct {
	enabled []irq.Vector
	acked   []irq.Vector
}

func (m *mockController) EnableVector(vector irq.Vector) *kernel.Error {
	m.enabled = append(m.enabled, vector)
	return nil
}

func (m *mockController) DisableVector(irq.Vector) *kernel.Error { return nil }

func (m *mockController) Acknowledge(vector irq.Vector) {
	m.acked = append(m.acked, vector)
}

func (m *mockController) MaskAll() {}

func stubInterruptGating() func() {
	origSave, origRestore := cpu.SaveFlagsAndDisableInterrupts, cpu.RestoreFlags
	cpu.SaveFlagsAndDisableInterrupts = func() uint64 { return 0 }
	cpu.RestoreFlags = func(uint64) {}
	return func() {
		cpu.SaveFlagsAndDisableInterrupts = origSave
		cpu.RestoreFlags = origRestore
	}
}
