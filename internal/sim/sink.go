package sim

import (
	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// ADCSink writes samples into an emulated ADC.
type ADCSink struct {
	adc *hw.EmulatedADC
}

// NewADCSink returns a sink for adc. A nil adc yields a sink that is not
// ready.
func NewADCSink(adc *hw.EmulatedADC) *ADCSink {
	return &ADCSink{adc: adc}
}

// Ready reports whether the sink has an ADC to write to.
func (s *ADCSink) Ready() bool { return s != nil && s.adc != nil }

// WriteRaw stores a raw code, clamped to the converter range.
func (s *ADCSink) WriteRaw(raw uint32) {
	if !s.Ready() {
		return
	}
	s.adc.SetRaw(raw)
}

// WriteNorm maps x from [-1, 1] onto [0, max] with rounding, so -1 gives 0
// and +1 gives the full-scale code (4095 at 12 bits).
func (s *ADCSink) WriteNorm(x float32) {
	if !s.Ready() {
		return
	}
	x = max(-1, min(1, x))
	full := audio.DACMax(s.adc.Resolution())
	raw := int64((x+1)*0.5*float32(full) + 0.5)
	raw = max(0, min(int64(full), raw))
	s.adc.SetRaw(uint32(raw))
}
