package sim

import (
	"errors"
	"sync"

	"github.com/MrWong99/sa818bridge/internal/clock"
)

// Errors returned by [Pipeline.Start].
var (
	ErrSinkNotReady = errors.New("sim: adc sink not ready")
	ErrNoSampleRate = errors.New("sim: source has no sample rate")
)

// Pipeline clocks a source into a sink. Safe for concurrent use.
type Pipeline struct {
	sink  *ADCSink
	clock clock.SampleClock

	mu      sync.Mutex
	src     SampleSource
	running bool
}

// NewPipeline returns an idle pipeline writing to sink.
func NewPipeline(sink *ADCSink) *Pipeline {
	return &Pipeline{sink: sink}
}

// Start drives src at its own sample rate, replacing any running source. A
// source without a rate, such as an empty [WAVSource], leaves the pipeline
// unchanged.
func (p *Pipeline) Start(src SampleSource) error {
	if !p.sink.Ready() {
		return ErrSinkNotReady
	}
	rate := src.SampleRateHz()
	if rate == 0 {
		return ErrNoSampleRate
	}
	p.mu.Lock()
	p.src = src
	p.running = true
	p.mu.Unlock()
	p.clock.Start(rate, p.tick)
	return nil
}

func (p *Pipeline) tick() {
	p.mu.Lock()
	src, running := p.src, p.running
	p.mu.Unlock()
	if !running || src == nil {
		return
	}
	p.sink.WriteNorm(src.NextSampleNorm())
}

// Stop halts the clock and parks the ADC at the centre code.
func (p *Pipeline) Stop() {
	p.clock.Stop()
	p.mu.Lock()
	p.running = false
	p.src = nil
	p.mu.Unlock()
	p.sink.WriteNorm(0)
}

// Running reports whether a source is being clocked.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Source returns the active source, or nil.
func (p *Pipeline) Source() SampleSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}
