package uac2

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/internal/sched"
	"github.com/MrWong99/sa818bridge/internal/stream"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// pumpStartDelay is the delay between the first enabled terminal and the
// first worker run.
const pumpStartDelay = time.Millisecond

// Pump moves samples between the bridge rings and the converters.
type Pump interface {
	// Attach binds the pump to b during [Bridge.Init].
	Attach(b *Bridge) error

	// Activate is called when the first terminal is enabled.
	Activate()

	// Deactivate is called when the last terminal is disabled. It returns
	// once the pump no longer touches the rings.
	Deactivate()

	// Close stops the pump for good during [Bridge.Disable].
	Close()
}

// DirectPump is a per-sample worker: every sample period it pops one TX
// sample to the DAC and pushes one ADC sample into the RX ring, both under
// the bridge lock.
type DirectPump struct {
	adc    hw.ADC
	dac    hw.DAC
	b      *Bridge
	work   *sched.Work
	period time.Duration
}

var (
	_ Pump = (*DirectPump)(nil)
	_ Pump = (*EnginePump)(nil)
)

// NewDirectPump returns a pump driving adc and dac directly.
func NewDirectPump(adc hw.ADC, dac hw.DAC) *DirectPump {
	return &DirectPump{adc: adc, dac: dac}
}

// Attach implements [Pump].
func (p *DirectPump) Attach(b *Bridge) error {
	p.b = b
	p.period = time.Duration(b.format.PeriodMicros()) * time.Microsecond
	p.work = sched.New(p.step)
	return nil
}

// Activate implements [Pump].
func (p *DirectPump) Activate() { p.work.Schedule(pumpStartDelay) }

// Deactivate implements [Pump].
func (p *DirectPump) Deactivate() { p.work.CancelSync() }

// Close implements [Pump].
func (p *DirectPump) Close() {
	if p.work != nil {
		p.work.CancelSync()
	}
}

// Pending reports whether the sample worker is armed.
func (p *DirectPump) Pending() bool { return p.work != nil && p.work.Pending() }

// Runs returns how many sample periods the worker has run.
func (p *DirectPump) Runs() uint64 {
	if p.work == nil {
		return 0
	}
	return p.work.Runs()
}

func (p *DirectPump) step() {
	b := p.b
	b.mu.Lock()
	active := b.pumpSampleLocked(p.adc, p.dac)
	b.mu.Unlock()
	if active {
		p.work.Schedule(p.period)
	}
}

// pumpSampleLocked moves one sample in each enabled direction and reports
// whether any terminal is still enabled.
func (b *Bridge) pumpSampleLocked(adc hw.ADC, dac hw.DAC) bool {
	ctx := context.Background()
	if b.txEnabled && b.tx.Len() >= 2 {
		var s [2]byte
		b.tx.Get(s[:])
		if err := dac.Write(audio.PCMToDAC(audio.Sample(s[:]), dac.Resolution())); err != nil {
			b.stats.DACErrors++
			b.metrics.RecordConverterError(ctx, "dac")
			slog.Debug("uac2: dac write failed", "err", err)
		}
	}
	if b.rxEnabled && b.rx.Free() >= 2 {
		raw, err := adc.Read()
		if err != nil {
			b.stats.ADCErrors++
			b.metrics.RecordConverterError(ctx, "adc")
			slog.Debug("uac2: adc read failed", "err", err)
		} else {
			var s [2]byte
			audio.PutSample(s[:], audio.ADCToPCM(raw, adc.Resolution()))
			b.rx.Put(s[:])
		}
	} else if b.rxEnabled {
		b.stats.RxDropped += 2
		b.metrics.RecordOverflow(ctx, "rx", 2)
	}
	return b.txEnabled || b.rxEnabled
}

// EnginePump hands the bridge rings to a [stream.Engine] as its callbacks.
// The engine runs from Init until Close; terminal updates only gate the
// callbacks.
type EnginePump struct {
	engine *stream.Engine
}

// NewEnginePump returns a pump backed by e.
func NewEnginePump(e *stream.Engine) *EnginePump {
	return &EnginePump{engine: e}
}

// Attach implements [Pump] by registering the bridge and starting the engine.
func (p *EnginePump) Attach(b *Bridge) error {
	if err := p.engine.Register(b); err != nil {
		return err
	}
	return p.engine.Start(b.format)
}

// Activate implements [Pump].
func (p *EnginePump) Activate() {}

// Deactivate implements [Pump].
func (p *EnginePump) Deactivate() {}

// Close implements [Pump].
func (p *EnginePump) Close() { p.engine.Stop() }
