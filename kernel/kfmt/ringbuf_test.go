package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBufferReadWrite(t *testing.T) {
	var rb ringBuffer

	payload := []byte("the quick brown fox")
	if n, err := rb.Write(payload); n != len(payload) || err != nil {
		t.Fatalf("expected Write to report (%d, nil); got (%d, %v)", len(payload), n, err)
	}

	got := make([]byte, earlyBufferSize)
	n, err := rb.Read(got)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !bytes.Equal(got[:n], payload) {
		t.Fatalf("expected to read back %q; got %q", payload, got[:n])
	}

	if _, err = rb.Read(got); err != io.EOF {
		t.Fatalf("expected io.EOF after draining the buffer; got %v", err)
	}
}

func TestRingBufferChunkedRead(t *testing.T) {
	var rb ringBuffer
	rb.Write([]byte("0123456789"))

	chunk := make([]byte, 4)
	var drained []byte
	for {
		n, err := rb.Read(chunk)
		drained = append(drained, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
	}

	if exp := "0123456789"; string(drained) != exp {
		t.Fatalf("expected chunked reads to drain %q; got %q", exp, drained)
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	var rb ringBuffer

	for i := 0; i < earlyBufferSize; i++ {
		rb.Write([]byte{'a'})
	}
	rb.Write([]byte("XYZ"))

	got := make([]byte, earlyBufferSize+1)
	n, err := rb.Read(got)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if n != earlyBufferSize {
		t.Fatalf("expected a full buffer to yield %d bytes; got %d", earlyBufferSize, n)
	}

	for i := 0; i < earlyBufferSize-3; i++ {
		if got[i] != 'a' {
			t.Fatalf("expected byte %d to be %q; got %q", i, 'a', got[i])
		}
	}
	if exp := "XYZ"; string(got[earlyBufferSize-3:n]) != exp {
		t.Fatalf("expected the most recent bytes %q to survive the overwrite; got %q", exp, got[earlyBufferSize-3:n])
	}
}
