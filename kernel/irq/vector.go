package irq

// Vector identifies an entry in the interrupt dispatch table.
type Vector uint8

const (
	// MasterBase and SlaveBase are the vector offsets that the two
	// cascaded interrupt controller chips get programmed with. The CPU
	// reserves vectors 0x00 to 0x1f for exceptions so the 16 hardware
	// lines are remapped to start right after them.
	MasterBase Vector = 0x20
	SlaveBase  Vector = 0x28

	// NumVectors bounds the dispatch table. It covers the 16 controller
	// lines plus the software syscall gate that follows them.
	NumVectors = 0x31
)

// Well-known vectors for the wired ISA peripherals.
const (
	VectorPIT      = MasterBase + 0
	VectorKeyboard = MasterBase + 1
	// VectorCascade is the master line that the slave chip signals
	// through; it never dispatches a handler of its own.
	VectorCascade      = MasterBase + 2
	VectorCOM2         = MasterBase + 3
	VectorCOM1         = MasterBase + 4
	VectorLPT2         = MasterBase + 5
	VectorFloppy       = MasterBase + 6
	VectorLPT1         = MasterBase + 7
	VectorRTC          = SlaveBase + 0
	VectorPS2Mouse     = SlaveBase + 4
	VectorFPU          = SlaveBase + 5
	VectorATAPrimary   = SlaveBase + 6
	VectorATASecondary = SlaveBase + 7

	VectorSyscall Vector = 0x30
)
