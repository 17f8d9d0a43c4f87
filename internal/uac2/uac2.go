// Package uac2 bridges a USB Audio Class 2 device function to the radio's
// converters through two 512-byte rings.
//
// USB-OUT transfers (host playback) land on terminal 1 and fill the TX ring
// that feeds the DAC. ADC samples fill the RX ring, which a 1 ms sender loop
// drains into 16-byte USB-IN transfers on terminal 4. A [Pump] moves samples
// between the rings and the converters: [DirectPump] runs a per-sample
// worker, [EnginePump] delegates to a [stream.Engine].
package uac2

import "github.com/MrWong99/sa818bridge/pkg/audio/ring"

// Terminal ids and buffer geometry of the audio function.
const (
	TerminalOut uint8 = 1
	TerminalIn  uint8 = 4

	RingSize       = 512
	PoolBuffers    = 8
	PoolBufferSize = 32

	// BytesPerFrame is one 1 ms USB-IN transfer: 8 samples of 8 kHz
	// 16-bit mono.
	BytesPerFrame = 16
)

// Ops are the callbacks a USB audio stack invokes on the device function.
// They are called from transport goroutines and never block on I/O.
type Ops interface {
	// SOF is called on every start-of-frame.
	SOF()

	// TerminalUpdate reports that the host enabled or disabled a terminal.
	TerminalUpdate(terminal uint8, enabled, microframes bool)

	// GetRecvBuf returns a buffer for an OUT transfer of size bytes, or nil
	// to reject it.
	GetRecvBuf(terminal uint8, size int) []byte

	// DataRecv delivers a completed OUT transfer in a buffer obtained from
	// GetRecvBuf.
	DataRecv(terminal uint8, buf []byte)

	// BufRelease hands back a buffer obtained from GetRecvBuf once the
	// transfer has been processed.
	BufRelease(terminal uint8, buf []byte)
}

// Transport is the USB side: it installs the device function's Ops and
// carries IN transfers to the host. Send must not retain buf after it
// returns; the bridge reclaims the buffer then.
type Transport interface {
	SetOps(ops Ops)
	Send(terminal uint8, buf []byte) error
}

// Pool hands out fixed transfer buffers round robin. A buffer stays claimed
// until Release, and Next skips claimed buffers. The caller serialises
// access; inside [Bridge] that is the bridge mutex.
type Pool struct {
	bufs [PoolBuffers][PoolBufferSize]byte
	busy [PoolBuffers]bool
	next int
}

// Next claims the next free buffer, or returns nil when all are in flight.
func (p *Pool) Next() []byte {
	for range PoolBuffers {
		i := p.next
		p.next = (p.next + 1) % PoolBuffers
		if !p.busy[i] {
			p.busy[i] = true
			return p.bufs[i][:]
		}
	}
	return nil
}

// Release frees the pool buffer that buf was sliced from. It reports false
// for slices that do not belong to the pool.
func (p *Pool) Release(buf []byte) bool {
	if cap(buf) == 0 {
		return false
	}
	head := &buf[:1][0]
	for i := range p.bufs {
		if head == &p.bufs[i][0] {
			p.busy[i] = false
			return true
		}
	}
	return false
}

// InFlight returns the number of claimed buffers.
func (p *Pool) InFlight() int {
	n := 0
	for _, b := range p.busy {
		if b {
			n++
		}
	}
	return n
}

func newRings() (tx, rx *ring.Ring) {
	return ring.MustNew(RingSize), ring.MustNew(RingSize)
}
