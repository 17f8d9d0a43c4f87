// Package stream implements the generic audio streaming engine: a periodic
// worker that pulls PCM from a producer for the DAC and pushes ADC samples
// to a consumer, both through registered callbacks.
//
// One tick handles TX before RX. TX requests up to 32 samples and writes
// every complete sample to the DAC; RX reads a single ADC sample. The tick
// reschedules itself one sample period later for as long as the engine is
// streaming.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/internal/observe"
	"github.com/MrWong99/sa818bridge/internal/sched"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// Sentinel errors returned by [Engine].
var (
	ErrNilCallbacks  = errors.New("stream: nil callbacks")
	ErrNotRegistered = errors.New("stream: no callbacks registered")
)

const (
	// TxBufferSize is the scratch buffer handed to TxRequest (32 samples).
	TxBufferSize = 64

	startDelay = time.Millisecond
)

// Callbacks connect the engine to a PCM producer and consumer. Both are
// called from the engine goroutine without engine locks held.
type Callbacks interface {
	// TxRequest fills buf with little-endian PCM for the DAC and returns the
	// number of bytes written.
	TxRequest(buf []byte) int

	// RxData receives one little-endian sample read from the ADC.
	RxData(buf []byte)
}

// PathGate reports which audio directions the radio currently routes.
type PathGate interface {
	AudioTxEnabled() bool
	AudioRxEnabled() bool
}

type openGate struct{}

func (openGate) AudioTxEnabled() bool { return true }
func (openGate) AudioRxEnabled() bool { return true }

// Option configures an [Engine].
type Option func(*Engine)

// WithPathGate gates TX and RX on the radio's audio path flags. Without it
// both directions are always open.
func WithPathGate(g PathGate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithMetrics records engine activity to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the generic streaming engine. Create one with [New].
type Engine struct {
	adc     hw.ADC
	dac     hw.DAC
	gate    PathGate
	metrics *observe.Metrics
	work    *sched.Work
	ticks   atomic.Uint64

	// txBuf is only touched by the tick.
	txBuf [TxBufferSize]byte

	// lifeMu serialises Start and Stop. Lock order: lifeMu, then mu.
	lifeMu sync.Mutex

	mu        sync.Mutex
	cb        Callbacks
	format    audio.Format
	streaming bool
}

// New returns an idle engine moving samples between adc and dac.
func New(adc hw.ADC, dac hw.DAC, opts ...Option) *Engine {
	e := &Engine{adc: adc, dac: dac, gate: openGate{}}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.work = sched.New(e.tick)
	return e
}

// Register installs cb, replacing any previous registration.
func (e *Engine) Register(cb Callbacks) error {
	if cb == nil {
		return ErrNilCallbacks
	}
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
	return nil
}

// Start begins streaming in format f. Starting a streaming engine logs a
// warning and succeeds without changing anything.
func (e *Engine) Start(f audio.Format) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streaming {
		slog.Warn("stream: already streaming", "format", e.format.String())
		return nil
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("stream: start: %w", err)
	}
	if e.cb == nil {
		return ErrNotRegistered
	}
	e.format = f
	e.streaming = true
	e.work.Schedule(startDelay)
	e.metrics.Streaming.Add(context.Background(), 1)
	slog.Info("stream: started", "format", f.String())
	return nil
}

// Stop ends streaming and returns once no tick is running. A concurrent
// Start waits until Stop has returned.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	was := e.streaming
	e.streaming = false
	e.mu.Unlock()

	e.work.CancelSync()
	if was {
		e.metrics.Streaming.Add(context.Background(), -1)
		slog.Info("stream: stopped")
	}
}

// Streaming reports whether the engine is running.
func (e *Engine) Streaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

// Format returns the format of the current or last stream.
func (e *Engine) Format() audio.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format
}

// Ticks returns the number of processing ticks run so far.
func (e *Engine) Ticks() uint64 { return e.ticks.Load() }

func (e *Engine) tick() {
	e.mu.Lock()
	streaming, cb, format := e.streaming, e.cb, e.format
	e.mu.Unlock()
	if !streaming || cb == nil {
		return
	}

	ctx := context.Background()
	e.ticks.Add(1)
	e.metrics.EngineTicks.Add(ctx, 1)

	if e.gate.AudioTxEnabled() {
		e.transmit(ctx, cb)
	}
	if e.gate.AudioRxEnabled() {
		e.receive(ctx, cb)
	}

	e.mu.Lock()
	if e.streaming {
		e.work.Schedule(time.Duration(format.PeriodMicros()) * time.Microsecond)
	}
	e.mu.Unlock()
}

func (e *Engine) transmit(ctx context.Context, cb Callbacks) {
	n := cb.TxRequest(e.txBuf[:])
	n = max(0, min(n, len(e.txBuf)))
	res := e.dac.Resolution()
	written := 0
	for i := 0; i+1 < n; i += 2 {
		if err := e.dac.Write(audio.PCMToDAC(audio.Sample(e.txBuf[i:]), res)); err != nil {
			e.metrics.RecordConverterError(ctx, "dac")
			slog.Error("stream: dac write failed", "err", err)
			break
		}
		written++
	}
	if written > 0 {
		e.metrics.RecordSamples(ctx, "tx", written)
	}
}

func (e *Engine) receive(ctx context.Context, cb Callbacks) {
	raw, err := e.adc.Read()
	if err != nil {
		e.metrics.RecordConverterError(ctx, "adc")
		slog.Error("stream: adc read failed", "err", err)
		return
	}
	var buf [2]byte
	audio.PutSample(buf[:], audio.ADCToPCM(raw, e.adc.Resolution()))
	cb.RxData(buf[:])
	e.metrics.RecordSamples(ctx, "rx", 1)
}
