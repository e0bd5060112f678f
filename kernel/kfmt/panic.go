package kfmt

import (
	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
)

var (
	// cpuHaltFn is swapped out by tests; in kernel builds the compiler
	// inlines the direct call.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints the supplied error to the active output sink and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic).
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n*** kernel panic ***\n")
	if err != nil {
		Printf("[%s] %s\n", err.Module, err.Message)
	}
	Printf("system halted\n")

	cpuHaltFn()
}

// panicString serves as a redirection target for runtime.throw.
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
