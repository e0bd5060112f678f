package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// fixed prefix at the beginning of every output line.
type PrefixWriter struct {
	// Sink receives the prefixed output.
	Sink io.Writer

	// Prefix is injected before the first byte of each line.
	Prefix []byte

	// midLine tracks whether the last write left the cursor in the middle
	// of a line, in which case the next write must not re-inject the
	// prefix.
	midLine bool
}

// Write writes p to the underlying sink, inserting the configured prefix at
// the start of each line. The returned count covers the bytes of p only, not
// the injected prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, from int

	for i := 0; i < len(p); i++ {
		if !w.midLine {
			w.Sink.Write(w.Prefix)
			w.midLine = true
		}

		if p[i] != '\n' {
			continue
		}

		n, err := w.Sink.Write(p[from : i+1])
		written += n
		if err != nil {
			return written, err
		}
		w.midLine = false
		from = i + 1
	}

	if from < len(p) {
		n, err := w.Sink.Write(p[from:])
		written += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
