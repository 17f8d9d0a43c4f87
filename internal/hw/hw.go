// Package hw defines the analog converter boundary of the radio: an ADC
// sampling the receiver audio pin and a DAC driving the transmitter audio pin.
//
// Raw codes are unsigned and resolution-dependent. Conversion to and from
// signed PCM lives in [audio.PCMToDAC] and [audio.ADCToPCM].
package hw

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// ErrClosed is returned by converters used after Close.
var ErrClosed = errors.New("hw: converter closed")

// ADC reads one raw sample from the receive audio pin.
type ADC interface {
	// Read returns the current raw code in [0, 2^Resolution()).
	Read() (uint32, error)

	// Resolution reports the converter width in bits.
	Resolution() uint8
}

// DAC writes one raw code to the transmit audio pin.
type DAC interface {
	// Write outputs code. Values above the converter range are clamped by
	// the implementation.
	Write(code uint32) error

	// Resolution reports the converter width in bits.
	Resolution() uint8
}

// EmulatedADC is an ADC whose code is set by software, used by the
// simulation pipeline in place of a sampled pin. Safe for concurrent use.
type EmulatedADC struct {
	res uint8
	raw atomic.Uint32
}

// NewEmulatedADC returns an emulated ADC of the given width. A width of 0
// selects 12 bits.
func NewEmulatedADC(res uint8) *EmulatedADC {
	if res == 0 {
		res = 12
	}
	return &EmulatedADC{res: res}
}

// SetRaw stores the next code returned by Read, clamped to the range.
func (a *EmulatedADC) SetRaw(code uint32) {
	a.raw.Store(min(code, audio.DACMax(a.res)))
}

// Raw returns the stored code.
func (a *EmulatedADC) Raw() uint32 { return a.raw.Load() }

// Read implements [ADC]. It never fails.
func (a *EmulatedADC) Read() (uint32, error) { return a.raw.Load(), nil }

// Resolution implements [ADC].
func (a *EmulatedADC) Resolution() uint8 { return a.res }

// NullDAC discards every write.
type NullDAC struct {
	Res uint8
}

// Write implements [DAC].
func (d NullDAC) Write(uint32) error { return nil }

// Resolution implements [DAC].
func (d NullDAC) Resolution() uint8 { return d.Res }

// MemoryDAC keeps the last written code and a write count, so the control
// API can report what the transmitter would output. Safe for concurrent use.
type MemoryDAC struct {
	res uint8

	mu     sync.Mutex
	last   uint32
	writes uint64
}

// NewMemoryDAC returns a MemoryDAC of the given width, starting at midpoint.
func NewMemoryDAC(res uint8) *MemoryDAC {
	return &MemoryDAC{res: res, last: audio.DACMidpoint(res)}
}

// Write implements [DAC].
func (d *MemoryDAC) Write(code uint32) error {
	d.mu.Lock()
	d.last = min(code, audio.DACMax(d.res))
	d.writes++
	d.mu.Unlock()
	return nil
}

// Resolution implements [DAC].
func (d *MemoryDAC) Resolution() uint8 { return d.res }

// Last returns the most recent code.
func (d *MemoryDAC) Last() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Writes returns the number of Write calls.
func (d *MemoryDAC) Writes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}
