// Package sim feeds synthetic or recorded audio into an emulated ADC, so the
// receive chain can run without a radio attached.
//
// A [Pipeline] pulls normalized samples from a [SampleSource] at the
// source's rate and writes them to an [ADCSink].
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidSine is returned by [ValidateSine].
var ErrInvalidSine = errors.New("sim: invalid sine parameters")

// Sine generator defaults.
const (
	DefaultSineFreqHz    = 1000
	DefaultSineAmplitude = 1.0
	DefaultSineRateHz    = 8000
)

const twoPi = 2 * math.Pi

// SampleSource produces normalized samples in [-1, 1].
type SampleSource interface {
	SampleRateHz() uint32
	NextSampleNorm() float32
}

// SineSource is a phase-accumulator sine generator. Safe for concurrent use.
type SineSource struct {
	mu     sync.Mutex
	freqHz uint32
	amp    float32
	rateHz uint32
	phase  float32
}

// NewSineSource returns a generator with the default parameters.
func NewSineSource() *SineSource {
	s := &SineSource{}
	s.Configure(DefaultSineFreqHz, DefaultSineAmplitude, DefaultSineRateHz)
	return s
}

// Configure sets the generator parameters and resets the phase.
func (s *SineSource) Configure(freqHz uint32, amp float32, rateHz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freqHz, s.amp, s.rateHz = freqHz, amp, rateHz
	s.phase = 0
}

// SampleRateHz implements [SampleSource].
func (s *SineSource) SampleRateHz() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateHz
}

// FreqHz returns the configured frequency.
func (s *SineSource) FreqHz() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.freqHz
}

// Amplitude returns the configured amplitude.
func (s *SineSource) Amplitude() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.amp
}

// NextSampleNorm implements [SampleSource]. It returns sin(phase)·amp and
// advances the phase by 2π·f/rate, wrapped at 2π.
func (s *SineSource) NextSampleNorm() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := float32(math.Sin(float64(s.phase))) * s.amp
	if s.rateHz == 0 {
		return v
	}
	s.phase += float32(twoPi * float64(s.freqHz) / float64(s.rateHz))
	if s.phase >= twoPi {
		s.phase -= twoPi
	}
	return v
}

// ValidateSine checks generator parameters: 1 ≤ freq ≤ rate/2 and
// 0 ≤ amp ≤ 1.
func ValidateSine(freqHz uint32, amp float32, rateHz uint32) error {
	if rateHz == 0 || freqHz == 0 || freqHz > rateHz/2 {
		return fmt.Errorf("%w: freq must be 1..%d (Nyquist)", ErrInvalidSine, rateHz/2)
	}
	if !(amp >= 0 && amp <= 1) {
		return fmt.Errorf("%w: amplitude must be 0.0..1.0", ErrInvalidSine)
	}
	return nil
}
