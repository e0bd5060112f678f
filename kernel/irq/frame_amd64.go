package irq

import (
	"io"

	"gopherpc/kernel/kfmt"
)

// Frame is the register snapshot that the per-vector interrupt entry stubs
// assemble on the stack before transferring control to Dispatch. The general
// purpose registers at the front are pushed by the stub; the tail of the
// struct is the frame the CPU pushes on its own when it takes the interrupt.
type Frame struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Vector is pushed by the entry stub so that the shared dispatch path
	// can tell which line fired.
	Vector uint64

	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo writes a dump of the captured register state to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", f.RAX, f.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", f.RCX, f.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", f.RSI, f.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", f.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", f.R8, f.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", f.R10, f.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", f.R12, f.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", f.R14, f.R15)
	kfmt.Fprintf(w, "VEC = %16x\n", f.Vector)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", f.RFlags)
}
