package sim

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MrWong99/sa818bridge/pkg/audio"
	"github.com/MrWong99/sa818bridge/pkg/audio/wav"
)

// WAVSource loops over a mono 16-bit PCM clip held in memory. Safe for
// concurrent use.
type WAVSource struct {
	mu      sync.Mutex
	path    string
	rateHz  uint32
	samples []int16
	pos     int
}

// WAVInfo describes the loaded clip.
type WAVInfo struct {
	Path     string `json:"path,omitempty"`
	Loaded   bool   `json:"loaded"`
	RateHz   uint32 `json:"rate_hz"`
	Samples  int    `json:"samples"`
	Position int    `json:"position"`
}

// Load reads the clip at path.
func (w *WAVSource) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		w.clear()
		return fmt.Errorf("sim: load wav: %w", err)
	}
	defer f.Close()
	if err := w.LoadReader(f); err != nil {
		return err
	}
	w.mu.Lock()
	w.path = path
	w.mu.Unlock()
	return nil
}

// LoadReader replaces the clip with the one decoded from r. A failed load
// leaves the source empty. Clips longer than [wav.MaxSamples] are truncated.
func (w *WAVSource) LoadReader(r io.ReadSeeker) error {
	clip, err := wav.Decode(r)
	if err != nil {
		w.clear()
		return fmt.Errorf("sim: load wav: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.path = ""
	w.rateHz = clip.SampleRate
	w.samples = clip.Samples
	w.pos = 0
	return nil
}

func (w *WAVSource) clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.path = ""
	w.rateHz = 0
	w.samples = nil
	w.pos = 0
}

// Loaded reports whether a clip is available.
func (w *WAVSource) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples) > 0
}

// SampleRateHz implements [SampleSource].
func (w *WAVSource) SampleRateHz() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rateHz
}

// NextSampleNorm implements [SampleSource]. It returns 0 when nothing is
// loaded and wraps to the start after the last sample.
func (w *WAVSource) NextSampleNorm() float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0
	}
	s := w.samples[w.pos]
	w.pos++
	if w.pos >= len(w.samples) {
		w.pos = 0
	}
	return audio.Normalize(s)
}

// Info returns a snapshot of the source.
func (w *WAVSource) Info() WAVInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WAVInfo{
		Path:     w.path,
		Loaded:   len(w.samples) > 0,
		RateHz:   w.rateHz,
		Samples:  len(w.samples),
		Position: w.pos,
	}
}
