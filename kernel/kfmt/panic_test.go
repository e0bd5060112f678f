package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		errRuntimePanic.Message = "unknown cause"
		sink = nil
	}()

	var haltCalled bool
	cpuHaltFn = func() { haltCalled = true }

	t.Run("with *kernel.Error", func(t *testing.T) {
		var buf bytes.Buffer
		sink = &buf
		haltCalled = false

		err := &kernel.Error{Module: "test", Message: "panic test"}
		Panic(err)

		exp := "\n*** kernel panic ***\n[test] panic test\nsystem halted\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic to print:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected panic to halt the CPU")
		}
	})

	t.Run("with error", func(t *testing.T) {
		var buf bytes.Buffer
		sink = &buf
		haltCalled = false

		Panic(errors.New("go error"))

		exp := "\n*** kernel panic ***\n[rt] go error\nsystem halted\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic to print:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected panic to halt the CPU")
		}
	})

	t.Run("with string", func(t *testing.T) {
		var buf bytes.Buffer
		sink = &buf
		haltCalled = false

		Panic("runtime string error")

		exp := "\n*** kernel panic ***\n[rt] runtime string error\nsystem halted\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic to print:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected panic to halt the CPU")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		var buf bytes.Buffer
		sink = &buf
		haltCalled = false

		Panic(nil)

		exp := "\n*** kernel panic ***\nsystem halted\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected panic to print:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected panic to halt the CPU")
		}
	})
}
