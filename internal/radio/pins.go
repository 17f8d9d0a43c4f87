package radio

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pins are the four control lines of the SA818.
//
// PowerDown and PTT are active low on the module; the levels driven here are
// the pin levels, not the logical state.
type Pins struct {
	PowerDown gpio.PinOut
	PTT       gpio.PinOut
	HighLow   gpio.PinOut
	Squelch   gpio.PinIn
}

// PinNames maps each control line to a name understood by the periph GPIO
// registry, for example "GPIO17".
type PinNames struct {
	PowerDown string `yaml:"power_down"`
	PTT       string `yaml:"ptt"`
	HighLow   string `yaml:"high_low"`
	Squelch   string `yaml:"squelch"`
}

// OpenPins initialises the periph host drivers and resolves every pin by name.
func OpenPins(names PinNames) (Pins, error) {
	if _, err := host.Init(); err != nil {
		return Pins{}, fmt.Errorf("radio: init gpio host: %w", err)
	}

	var errs []error
	lookup := func(role, name string) gpio.PinIO {
		if name == "" {
			errs = append(errs, fmt.Errorf("radio: gpio %s: no pin name", role))
			return nil
		}
		p := gpioreg.ByName(name)
		if p == nil {
			errs = append(errs, fmt.Errorf("radio: gpio %s: pin %q not found", role, name))
		}
		return p
	}

	pins := Pins{
		PowerDown: lookup("power_down", names.PowerDown),
		PTT:       lookup("ptt", names.PTT),
		HighLow:   lookup("high_low", names.HighLow),
		Squelch:   lookup("squelch", names.Squelch),
	}
	if err := errors.Join(errs...); err != nil {
		return Pins{}, err
	}
	return pins, nil
}

func (p Pins) validate() error {
	if p.PowerDown == nil || p.PTT == nil || p.HighLow == nil || p.Squelch == nil {
		return fmt.Errorf("radio: %w: all four pins are required", ErrInvalidParam)
	}
	return nil
}
