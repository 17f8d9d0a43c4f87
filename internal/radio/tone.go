package radio

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// Test tone limits.
const (
	ToneSampleRate  = 8000
	ToneMinFreq     = 100
	ToneMaxFreq     = 3000
	ToneMaxDuration = time.Hour
)

const tonePeriod = time.Second / ToneSampleRate

type toneState struct {
	active    bool
	freq      uint16
	amplitude uint8
	phase     float64
	end       time.Time
}

// StartTone generates a sine test tone on the DAC at [ToneSampleRate],
// replacing any running tone, and enables the TX audio path. A duration of
// zero is continuous. amplitude scales the swing around the DAC midpoint,
// 255 being full scale.
func (d *Device) StartTone(freqHz uint16, duration time.Duration, amplitude uint8) error {
	if freqHz < ToneMinFreq || freqHz > ToneMaxFreq {
		return fmt.Errorf("%w: tone frequency %d Hz outside %d..%d", ErrInvalidParam, freqHz, ToneMinFreq, ToneMaxFreq)
	}
	if duration < 0 || duration > ToneMaxDuration {
		return fmt.Errorf("%w: tone duration %s outside 0..%s", ErrInvalidParam, duration, ToneMaxDuration)
	}

	d.toneMu.Lock()
	defer d.toneMu.Unlock()

	d.mu.Lock()
	replacing := d.tone.active
	d.tone.active = false
	d.mu.Unlock()
	if replacing {
		slog.Warn("sa818 stopping existing test tone")
		d.toneWork.CancelSync()
	}

	d.mu.Lock()
	d.tone = toneState{active: true, freq: freqHz, amplitude: amplitude}
	if duration > 0 {
		d.tone.end = d.now().Add(duration)
	}
	d.txEnabled = true
	d.mu.Unlock()

	slog.Info("sa818 test tone started", "freq_hz", freqHz, "duration", duration, "amplitude", amplitude)
	d.toneWork.Schedule(0)
	return nil
}

// StopTone ends the test tone, parks the DAC at midpoint and disables the TX
// audio path. It is a no-op when no tone runs.
func (d *Device) StopTone() {
	d.toneMu.Lock()
	defer d.toneMu.Unlock()

	d.mu.Lock()
	if !d.tone.active {
		d.mu.Unlock()
		return
	}
	d.tone.active = false
	d.mu.Unlock()

	d.toneWork.CancelSync()

	d.mu.Lock()
	d.parkDACLocked()
	d.txEnabled = false
	d.mu.Unlock()
	slog.Info("sa818 test tone stopped")
}

// ToneActive reports whether a test tone is running.
func (d *Device) ToneActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tone.active
}

func (d *Device) parkDACLocked() {
	if err := d.dac.Write(audio.DACMidpoint(d.dac.Resolution())); err != nil {
		slog.Warn("sa818 park dac", "err", err)
	}
}

// toneStep outputs one tone sample and reschedules itself.
func (d *Device) toneStep() {
	d.mu.Lock()
	t := &d.tone
	if !t.active {
		d.mu.Unlock()
		return
	}
	if !t.end.IsZero() && !d.now().Before(t.end) {
		t.active = false
		d.txEnabled = false
		d.parkDACLocked()
		d.mu.Unlock()
		slog.Info("sa818 test tone duration expired")
		return
	}

	res := d.dac.Resolution()
	top := int64(audio.DACMax(res))
	mid := int64(audio.DACMidpoint(res))
	s := math.Sin(t.phase) * float64(t.amplitude) / 255
	v := min(max(mid+int64(s*float64(mid)), 0), top)

	if err := d.dac.Write(uint32(v)); err != nil {
		t.active = false
		d.txEnabled = false
		d.mu.Unlock()
		slog.Error("sa818 dac write failed during test tone", "err", err)
		return
	}

	t.phase = math.Mod(t.phase+2*math.Pi*float64(t.freq)/ToneSampleRate, 2*math.Pi)
	d.mu.Unlock()

	d.toneWork.Schedule(tonePeriod)
}
