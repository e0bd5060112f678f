// Package kfmt provides formatted output routines that are safe to call at
// any point during kernel execution, including before the Go allocator has
// been bootstrapped. None of the routines allocate memory.
package kfmt

import (
	"io"
	"unsafe"
)

// digitBufSize sizes the scratch buffer used for formatting numbers. It fits
// a 64-bit value in base 8 together with a sign and any requested padding.
const digitBufSize = 32

var (
	badVerb    = []byte("%!(NOVERB)")
	badArgType = []byte("%!(WRONGTYPE)")
	missingArg = []byte("(MISSING)")
	extraArg   = []byte("%!(EXTRA)")
	boolTrue   = []byte("true")
	boolFalse  = []byte("false")

	// digitBuf is the shared scratch space used by emitInt. Kernel output
	// is serialized by its callers so sharing is safe.
	digitBuf [digitBufSize]byte

	// charBuf carries one byte at a time into doWrite; handing sub-slices
	// of a format string to an io.Writer would make them escape and
	// trigger an allocation.
	charBuf = []byte{0}

	// earlyBuf captures output emitted before an output sink is installed.
	earlyBuf ringBuffer

	// sink is the writer that receives formatted output. While nil, output
	// is routed to earlyBuf.
	sink io.Writer
)

// SetOutputSink directs all future formatted output to w and drains any
// output accumulated in the early boot buffer into it.
func SetOutputSink(w io.Writer) {
	sink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// GetOutputSink returns the writer that currently receives formatted output.
func GetOutputSink() io.Writer {
	return sink
}

// Output returns the writer that Printf routes to right now: the installed
// sink, or the early boot buffer while no sink is present.
func Output() io.Writer {
	if sink != nil {
		return sink
	}
	return &earlyBuf
}

// Printf formats its arguments and writes the result to the active output
// sink. Until a sink is installed via SetOutputSink the output accumulates in
// a ring buffer that the first SetOutputSink call drains.
//
// Only the subset of fmt's verbs that kernel code actually needs is
// supported:
//
//	%s	string or []byte, left-padded with spaces
//	%d	integers, base 10, left-padded with spaces
//	%o	integers, base 8, left-padded with zeroes
//	%x	integers, base 16 with lower-case digits, left-padded with zeroes
//	%t	booleans, "true" or "false"
//
// An optional decimal width may precede the verb. There is no %p: pointer
// formatting would drag in reflect and, with it, the allocating
// runtime.convT2E path, which would crash the kernel when invoked before the
// allocator is ready.
func Printf(format string, args ...interface{}) {
	Fprintf(sink, format, args...)
}

// Fprintf behaves like Printf with the output directed to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
		i, from  int
	)

	for i < len(format) {
		if format[i] != '%' {
			i++
			continue
		}

		emitLiteral(w, format, from, i)

		width = 0
		i++
	scanVerb:
		for ; i < len(format); i++ {
			switch ch := format[i]; {
			case ch == '%':
				charBuf[0] = '%'
				doWrite(w, charBuf)
				break scanVerb
			case ch >= '0' && ch <= '9':
				width = width*10 + int(ch-'0')
			case ch == 'd' || ch == 'o' || ch == 'x' || ch == 's' || ch == 't':
				if argIndex >= len(args) {
					doWrite(w, missingArg)
					break scanVerb
				}

				switch ch {
				case 'd':
					emitInt(w, args[argIndex], 10, width)
				case 'o':
					emitInt(w, args[argIndex], 8, width)
				case 'x':
					emitInt(w, args[argIndex], 16, width)
				case 's':
					emitString(w, args[argIndex], width)
				case 't':
					emitBool(w, args[argIndex])
				}

				argIndex++
				break scanVerb
			default:
				doWrite(w, badVerb)
				break scanVerb
			}
		}
		i++
		from = i
	}

	emitLiteral(w, format, from, i)

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, extraArg)
	}
}

// emitLiteral writes format[from:to] one byte at a time; carving a sub-slice
// out of the format string would escape it to the heap.
func emitLiteral(w io.Writer, format string, from, to int) {
	for ; from < to; from++ {
		charBuf[0] = format[from]
		doWrite(w, charBuf)
	}
}

// emitPad writes count repetitions of ch; it is a no-op for count <= 0.
func emitPad(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		charBuf[0] = ch
		doWrite(w, charBuf)
	}
}

// emitBool writes the text representation of a boolean argument.
func emitBool(w io.Writer, arg interface{}) {
	v, ok := arg.(bool)
	if !ok {
		doWrite(w, badArgType)
		return
	}

	if v {
		doWrite(w, boolTrue)
		return
	}
	doWrite(w, boolFalse)
}

// emitString writes a string or []byte argument, left-padding it with spaces
// up to width.
func emitString(w io.Writer, arg interface{}, width int) {
	switch v := arg.(type) {
	case string:
		emitPad(w, ' ', width-len(v))
		for i := 0; i < len(v); i++ {
			charBuf[0] = v[i]
			doWrite(w, charBuf)
		}
	case []byte:
		emitPad(w, ' ', width-len(v))
		doWrite(w, v)
	default:
		doWrite(w, badArgType)
	}
}

// emitInt writes an integer argument of any built-in signed or unsigned type
// in the requested base, applying the base's padding character up to width.
func emitInt(w io.Writer, arg interface{}, base, width int) {
	var (
		uval   uint64
		sval   int64
		signed bool
		neg    bool
	)

	switch v := arg.(type) {
	case uint8:
		uval = uint64(v)
	case uint16:
		uval = uint64(v)
	case uint32:
		uval = uint64(v)
	case uint64:
		uval = v
	case uint:
		uval = uint64(v)
	case uintptr:
		uval = uint64(v)
	case int8:
		sval, signed = int64(v), true
	case int16:
		sval, signed = int64(v), true
	case int32:
		sval, signed = int64(v), true
	case int64:
		sval, signed = v, true
	case int:
		sval, signed = int64(v), true
	default:
		doWrite(w, badArgType)
		return
	}

	if signed {
		if sval < 0 {
			neg = true
			uval = uint64(-sval)
		} else {
			uval = uint64(sval)
		}
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	if width > digitBufSize-1 {
		width = digitBufSize - 1
	}

	// Emit digits in reverse order, then padding and sign, and flip the
	// buffer before writing it out.
	n := 0
	for {
		d := byte(uval % uint64(base))
		if d < 10 {
			digitBuf[n] = '0' + d
		} else {
			digitBuf[n] = 'a' + d - 10
		}
		n++

		uval /= uint64(base)
		if uval == 0 {
			break
		}
	}

	switch {
	case neg && padCh == '0':
		for ; n < width-1; n++ {
			digitBuf[n] = padCh
		}
		digitBuf[n] = '-'
		n++
	case neg:
		digitBuf[n] = '-'
		n++
		for ; n < width; n++ {
			digitBuf[n] = padCh
		}
	default:
		for ; n < width; n++ {
			digitBuf[n] = padCh
		}
	}

	for left, right := 0, n-1; left < right; left, right = left+1, right-1 {
		digitBuf[left], digitBuf[right] = digitBuf[right], digitBuf[left]
	}

	doWrite(w, digitBuf[:n])
}

// doWrite routes p through the noEscape trick before handing it to the sink.
// Without it the compiler cannot prove that p does not escape into the
// (unknown) sink writer, every caller would then allocate, and Printf calls
// made before the allocator is ready would crash the kernel.
func doWrite(w io.Writer, p []byte) {
	sinkWrite(w, noEscape(unsafe.Pointer(&p)))
}

func sinkWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w == nil {
		earlyBuf.Write(p)
		return
	}
	w.Write(p)
}

// noEscape hides a pointer from escape analysis. Copied over from
// runtime/stubs.go.
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
