package hw

import (
	"fmt"
	"os"
	"sync"

	"github.com/MrWong99/sa818bridge/pkg/audio"
	"github.com/MrWong99/sa818bridge/pkg/audio/wav"
)

// wavFlushSamples is how many samples WAVDAC batches before writing.
const wavFlushSamples = 256

// WAVDAC records every code as a mono 16-bit WAV file. Codes are scaled to
// 16 bits and recentered to signed PCM. The header sizes are patched on
// Close. Safe for concurrent use.
type WAVDAC struct {
	res uint8

	mu      sync.Mutex
	f       *os.File
	w       *wav.Writer
	pending []int16
	closed  bool
}

// OpenWAVDAC creates (or truncates) path and records at sampleRate.
func OpenWAVDAC(path string, sampleRate uint32, res uint8) (*WAVDAC, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("hw: open wav dac: %w", err)
	}
	return &WAVDAC{
		res:     res,
		f:       f,
		w:       wav.NewWriter(f, sampleRate),
		pending: make([]int16, 0, wavFlushSamples),
	}, nil
}

// Write implements [DAC].
func (d *WAVDAC) Write(code uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.pending = append(d.pending, audio.DACToPCM(min(code, audio.DACMax(d.res)), d.res))
	if len(d.pending) < wavFlushSamples {
		return nil
	}
	return d.flushLocked()
}

// Resolution implements [DAC].
func (d *WAVDAC) Resolution() uint8 { return d.res }

// Samples returns the number of samples recorded so far.
func (d *WAVDAC) Samples() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.Samples() + len(d.pending)
}

func (d *WAVDAC) flushLocked() error {
	if len(d.pending) == 0 {
		return nil
	}
	err := d.w.WriteSamples(d.pending...)
	d.pending = d.pending[:0]
	if err != nil {
		return fmt.Errorf("hw: wav dac write: %w", err)
	}
	return nil
}

// Close flushes pending samples, finalises the header and closes the file.
func (d *WAVDAC) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	flushErr := d.flushLocked()
	if err := d.w.Close(); err != nil {
		_ = d.f.Close()
		return fmt.Errorf("hw: wav dac finalise: %w", err)
	}
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("hw: wav dac close: %w", err)
	}
	return flushErr
}
