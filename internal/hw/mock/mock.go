// Package mock provides recording implementations of [hw.ADC] and [hw.DAC]
// for unit tests.
//
// Both mocks are safe for concurrent use. Set the exported fields before use
// to control results; inspect the call counters and recorded values after.
//
//	adc := &mock.ADC{Res: 12, Values: []uint32{2048, 4095}}
//	dac := &mock.DAC{Res: 16}
//	engine := stream.New(adc, dac)
package mock

import (
	"sync"

	"github.com/MrWong99/sa818bridge/internal/hw"
)

var (
	_ hw.ADC = (*ADC)(nil)
	_ hw.DAC = (*DAC)(nil)
)

// ADC is a mock [hw.ADC].
type ADC struct {
	mu sync.Mutex

	// Res is returned by Resolution.
	Res uint8

	// Values are returned by successive Read calls. Once exhausted, the last
	// value repeats (0 when empty).
	Values []uint32

	// ReadError, when non-nil, is returned by every Read.
	ReadError error

	// CallCountRead records how many times Read was called.
	CallCountRead int
}

// Read implements [hw.ADC].
func (a *ADC) Read() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CallCountRead++
	if a.ReadError != nil {
		return 0, a.ReadError
	}
	if len(a.Values) == 0 {
		return 0, nil
	}
	i := min(a.CallCountRead-1, len(a.Values)-1)
	return a.Values[i], nil
}

// Resolution implements [hw.ADC].
func (a *ADC) Resolution() uint8 { return a.Res }

// Reads returns CallCountRead under the lock.
func (a *ADC) Reads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.CallCountRead
}

// DAC is a mock [hw.DAC].
type DAC struct {
	mu sync.Mutex

	// Res is returned by Resolution.
	Res uint8

	// WriteError, when non-nil, is returned by every Write. The code is
	// still recorded.
	WriteError error

	// Written holds every code passed to Write, in order.
	Written []uint32

	// CallCountWrite records how many times Write was called.
	CallCountWrite int
}

// Write implements [hw.DAC].
func (d *DAC) Write(code uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountWrite++
	d.Written = append(d.Written, code)
	return d.WriteError
}

// Resolution implements [hw.DAC].
func (d *DAC) Resolution() uint8 { return d.Res }

// Codes returns a copy of Written.
func (d *DAC) Codes() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.Written...)
}

// Last returns the most recent code and whether any write happened.
func (d *DAC) Last() (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Written) == 0 {
		return 0, false
	}
	return d.Written[len(d.Written)-1], true
}

// SetWriteError replaces WriteError under the lock.
func (d *DAC) SetWriteError(err error) {
	d.mu.Lock()
	d.WriteError = err
	d.mu.Unlock()
}
