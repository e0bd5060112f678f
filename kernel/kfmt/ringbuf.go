package kfmt

import "io"

// earlyBufferSize is the capacity of the ring buffer that captures output
// produced before an output sink is installed. It is sized to hold a bit more
// than a full 80x25 text screen and must be a power of two.
const earlyBufferSize = 2048

// ringBuffer is a fixed-capacity byte ring. Writes never fail; once the ring
// fills up each new byte overwrites the oldest buffered one so that the most
// recent boot output survives.
type ringBuffer struct {
	data  [earlyBufferSize]byte
	head  int // index of the oldest buffered byte
	count int // number of buffered bytes
}

// Write appends p to the ring and always reports len(p) bytes written.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[(rb.head+rb.count)&(earlyBufferSize-1)] = b
		if rb.count == earlyBufferSize {
			rb.head = (rb.head + 1) & (earlyBufferSize - 1)
		} else {
			rb.count++
		}
	}

	return len(p), nil
}

// Read drains up to len(p) bytes into p, oldest first, and returns io.EOF
// once the ring is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := rb.count
	if n > len(p) {
		n = len(p)
	}

	// The buffered region may wrap around the end of the backing array.
	first := earlyBufferSize - rb.head
	if first > n {
		first = n
	}
	copy(p, rb.data[rb.head:rb.head+first])
	copy(p[first:], rb.data[:n-first])

	rb.head = (rb.head + n) & (earlyBufferSize - 1)
	rb.count -= n

	return n, nil
}
