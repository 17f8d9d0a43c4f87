// Package audio holds the PCM format description and the pure sample
// conversions shared by every streaming path: PCM to DAC code, ADC code to
// PCM, and PCM to and from the normalized float representation used by the
// simulation sources.
//
// Samples are signed 16-bit little-endian values when stored in byte buffers.
package audio

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is returned by [Format.Validate] for unusable formats.
var ErrInvalidFormat = errors.New("audio: invalid format")

// Format describes a PCM stream. Only 16-bit mono is exercised end to end,
// but 8-bit and stereo layouts are accepted so byte accounting stays correct.
type Format struct {
	// SampleRate in Hz. Must be at least 1.
	SampleRate uint32

	// BitDepth is 8 or 16.
	BitDepth uint8

	// Channels is 1 (mono) or 2 (stereo).
	Channels uint8
}

// Default is the negotiated radio format: 8 kHz, 16-bit, mono.
var Default = Format{SampleRate: 8000, BitDepth: 16, Channels: 1}

// BytesPerSample returns the size of one sample frame across all channels.
func (f Format) BytesPerSample() int {
	return int(f.BitDepth/8) * int(f.Channels)
}

// Validate reports whether f can be streamed.
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidFormat)
	}
	if f.BitDepth != 8 && f.BitDepth != 16 {
		return fmt.Errorf("%w: bit depth %d (want 8 or 16)", ErrInvalidFormat, f.BitDepth)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("%w: %d channels (want 1 or 2)", ErrInvalidFormat, f.Channels)
	}
	return nil
}

// PeriodMicros is the sample period in whole microseconds (125 at 8 kHz).
func (f Format) PeriodMicros() uint32 {
	if f.SampleRate == 0 {
		return 0
	}
	return 1_000_000 / f.SampleRate
}

// String renders f as "8000Hz/16bit/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}
