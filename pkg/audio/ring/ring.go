// Package ring provides the fixed-capacity byte FIFO used between the USB
// transfer cadence and the converter sample cadence.
//
// A [Ring] is not safe for concurrent use; the owner serializes access with
// its own lock so that ring updates and the decisions that depend on them
// happen atomically.
package ring

import "fmt"

// Ring is a circular byte buffer with free-running read and write cursors.
// The capacity is a power of two so cursor wrap is a mask.
type Ring struct {
	buf  []byte
	mask uint32
	head uint32 // next write position (free running)
	tail uint32 // next read position (free running)
}

// New returns a ring holding size bytes. size must be a power of two.
func New(size int) (*Ring, error) {
	if size <= 0 || size&(size-1) != 0 || size > 1<<30 {
		return nil, fmt.Errorf("ring: size %d is not a power of two", size)
	}
	return &Ring{buf: make([]byte, size), mask: uint32(size - 1)}, nil
}

// MustNew is like [New] but panics on an invalid size. Intended for
// compile-time constant sizes.
func MustNew(size int) *Ring {
	r, err := New(size)
	if err != nil {
		panic(err)
	}
	return r
}

// Cap returns the ring capacity in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of buffered bytes.
func (r *Ring) Len() int { return int(r.head - r.tail) }

// Free returns the number of bytes that can be written without dropping.
func (r *Ring) Free() int { return len(r.buf) - r.Len() }

// Put copies as much of p as fits and returns the number of bytes stored.
// Bytes that do not fit are dropped; content already buffered is kept.
func (r *Ring) Put(p []byte) int {
	n := min(len(p), r.Free())
	for i := 0; i < n; {
		off := (r.head + uint32(i)) & r.mask
		c := copy(r.buf[off:], p[i:n])
		i += c
	}
	r.head += uint32(n)
	return n
}

// Get moves up to len(p) buffered bytes into p and returns the count.
func (r *Ring) Get(p []byte) int {
	n := min(len(p), r.Len())
	for i := 0; i < n; {
		off := (r.tail + uint32(i)) & r.mask
		end := min(uint32(len(r.buf)), off+uint32(n-i))
		c := copy(p[i:n], r.buf[off:end])
		i += c
	}
	r.tail += uint32(n)
	return n
}

// Reset discards all buffered content.
func (r *Ring) Reset() {
	r.head = 0
	r.tail = 0
}
