package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// ErrDriverNotRegistered is returned by Create* methods when no factory has
// been registered under the requested driver name.
var ErrDriverNotRegistered = errors.New("config: driver not registered")

// ADCFactory builds an ADC from its config section.
type ADCFactory func(ADCConfig) (hw.ADC, error)

// DACFactory builds a DAC from its config section and the stream format.
type DACFactory func(DACConfig, audio.Format) (hw.DAC, error)

// Registry maps driver names to their constructor functions for each
// converter kind. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	adc map[string]ADCFactory
	dac map[string]DACFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		adc: make(map[string]ADCFactory),
		dac: make(map[string]DACFactory),
	}
}

// RegisterADC registers an ADC factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterADC(name string, factory ADCFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adc[name] = factory
}

// RegisterDAC registers a DAC factory under name.
func (r *Registry) RegisterDAC(name string, factory DACFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dac[name] = factory
}

// CreateADC instantiates the ADC registered under cfg.Driver.
// Returns [ErrDriverNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateADC(cfg ADCConfig) (hw.ADC, error) {
	r.mu.RLock()
	factory, ok := r.adc[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: adc/%q", ErrDriverNotRegistered, cfg.Driver)
	}
	return factory(cfg)
}

// CreateDAC instantiates the DAC registered under cfg.Driver.
func (r *Registry) CreateDAC(cfg DACConfig, f audio.Format) (hw.DAC, error) {
	r.mu.RLock()
	factory, ok := r.dac[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: dac/%q", ErrDriverNotRegistered, cfg.Driver)
	}
	return factory(cfg, f)
}

// Drivers returns the sorted registered names per kind.
func (r *Registry) Drivers() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{}
	for name := range r.adc {
		out["adc"] = append(out["adc"], name)
	}
	for name := range r.dac {
		out["dac"] = append(out["dac"], name)
	}
	for _, names := range out {
		slices.Sort(names)
	}
	return out
}
