package app

import (
	"github.com/MrWong99/sa818bridge/internal/config"
	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// RegisterBuiltinDrivers registers the converter drivers that ship with the
// daemon:
//
//	adc: emul
//	dac: null, memory, wav
func RegisterBuiltinDrivers(reg *config.Registry) {
	reg.RegisterADC("emul", func(c config.ADCConfig) (hw.ADC, error) {
		return hw.NewEmulatedADC(c.Resolution), nil
	})

	reg.RegisterDAC("null", func(c config.DACConfig, _ audio.Format) (hw.DAC, error) {
		return hw.NullDAC{Res: c.Resolution}, nil
	})
	reg.RegisterDAC("memory", func(c config.DACConfig, _ audio.Format) (hw.DAC, error) {
		return hw.NewMemoryDAC(c.Resolution), nil
	})
	reg.RegisterDAC("wav", func(c config.DACConfig, f audio.Format) (hw.DAC, error) {
		d, err := hw.OpenWAVDAC(c.OutputFile, f.SampleRate, c.Resolution)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
