package kmain

import (
	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
	"gopherpc/kernel/hal"
	"gopherpc/kernel/kfmt"
)

var errNoIntController = &kernel.Error{Module: "kmain", Message: "no interrupt controller detected"}

// Kmain is the only Go symbol that is visible (exported) to the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and a minimal g0 struct that allows Go code to
// use the stack allocated by the assembly code.
//
// Kmain detects and initializes the machine hardware, unmasks maskable
// interrupts on the CPU and then parks in a halt loop servicing whatever
// interrupt lines the detected drivers armed. It is not expected to return.
//
//go:noinline
func Kmain() {
	hal.DetectHardware()

	// Without an interrupt controller the idle loop below would never wake
	// up again; stop the boot here instead.
	if hal.ActiveIntController() == nil {
		hal.Quiesce()
		kfmt.Panic(errNoIntController)
	}

	kfmt.Printf("entering interrupt-driven idle loop\n")
	cpu.EnableInterrupts()

	for {
		cpu.WaitForInterrupt()
	}
}
