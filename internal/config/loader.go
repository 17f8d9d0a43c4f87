package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sa818bridge/internal/radio"
	"github.com/MrWong99/sa818bridge/internal/sim"
)

// ValidDriverNames lists the built-in driver names per converter kind.
// Used by [Validate] to warn about unrecognised driver names.
var ValidDriverNames = map[string][]string{
	"adc": {"emul"},
	"dac": {"null", "memory", "wav"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, ":8080")
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Audio.SampleRate, 8000)
	setDefault(&cfg.Audio.BitDepth, 16)
	setDefault(&cfg.Audio.Channels, 1)
	setDefault(&cfg.Audio.Mode, ModeDirect)

	setDefault(&cfg.ADC.Driver, "emul")
	setDefault(&cfg.ADC.Resolution, 12)
	setDefault(&cfg.DAC.Driver, "null")
	setDefault(&cfg.DAC.Resolution, 16)

	setDefault(&cfg.Radio.Serial.Baud, radio.DefaultBaud)
	setDefault(&cfg.Radio.Serial.Timeout, radio.DefaultATTimeout)
	setDefault(&cfg.Radio.TxEnableDelay, radio.DefaultTxEnableDelay)
	setDefault(&cfg.Radio.PowerOnDelay, radio.DefaultPowerOnDelay)
	setDefault(&cfg.Radio.Volume, radio.DefaultVolume)

	setDefault(&cfg.Host.Codec, CodecPCM)

	setDefault(&cfg.Sim.Source, SimNone)
	setDefault(&cfg.Sim.Sine.FreqHz, sim.DefaultSineFreqHz)
	setDefault(&cfg.Sim.Sine.RateHz, sim.DefaultSineRateHz)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if err := cfg.Audio.Format().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}
	if !cfg.Audio.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("audio.mode %q is invalid; valid values: direct, engine", cfg.Audio.Mode))
	}

	// Converters
	validateDriverName("adc", cfg.ADC.Driver)
	validateDriverName("dac", cfg.DAC.Driver)
	if r := cfg.ADC.Resolution; r < 1 || r > 24 {
		errs = append(errs, fmt.Errorf("adc.resolution %d is out of range [1, 24]", r))
	}
	if r := cfg.DAC.Resolution; r < 1 || r > 24 {
		errs = append(errs, fmt.Errorf("dac.resolution %d is out of range [1, 24]", r))
	}
	if cfg.DAC.Driver == "wav" && cfg.DAC.OutputFile == "" {
		errs = append(errs, errors.New("dac.output_file is required when driver is wav"))
	}

	// Radio
	if cfg.Radio.Enabled {
		errs = append(errs, validateRadio(&cfg.Radio)...)
	}

	// Host
	if p := cfg.Host.Path; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("host.path %q must start with /", p))
	}
	switch cfg.Host.Codec {
	case CodecPCM:
	case CodecOpus:
		if f := cfg.Audio.Format(); f.SampleRate != 8000 || f.Channels != 1 || f.BitDepth != 16 {
			errs = append(errs, fmt.Errorf("host.codec opus requires audio 8000 Hz, 16-bit, mono; got %s", f))
		}
	default:
		errs = append(errs, fmt.Errorf("host.codec %q is invalid; valid values: pcm, opus", cfg.Host.Codec))
	}

	// Simulation
	if !cfg.Sim.Source.IsValid() {
		errs = append(errs, fmt.Errorf("sim.source %q is invalid; valid values: none, sine, wav", cfg.Sim.Source))
	}
	s := cfg.Sim.Sine
	if err := sim.ValidateSine(s.FreqHz, s.Amp(), s.RateHz); err != nil {
		errs = append(errs, fmt.Errorf("sim.sine: %w", err))
	}
	if cfg.Sim.Source == SimWAV && cfg.Sim.WAVFile == "" {
		errs = append(errs, errors.New("sim.wav_file is required when source is wav"))
	}
	if cfg.Sim.Source != SimNone && cfg.ADC.Driver != "emul" {
		slog.Warn("sim.source only drives the emulated adc", "adc_driver", cfg.ADC.Driver)
	}

	return errors.Join(errs...)
}

func validateRadio(r *RadioConfig) []error {
	var errs []error
	if r.Serial.Port == "" {
		errs = append(errs, errors.New("radio.serial.port is required when radio is enabled"))
	}
	if r.Serial.Timeout < 10*time.Millisecond {
		errs = append(errs, fmt.Errorf("radio.serial.timeout %s is below 10ms", r.Serial.Timeout))
	}
	for name, pin := range map[string]string{
		"power_down": r.GPIO.PowerDown,
		"ptt":        r.GPIO.PTT,
		"high_low":   r.GPIO.HighLow,
		"squelch":    r.GPIO.Squelch,
	} {
		if pin == "" {
			errs = append(errs, fmt.Errorf("radio.gpio.%s is required when radio is enabled", name))
		}
	}
	if r.TxEnableDelay < 0 || r.PowerOnDelay < 0 {
		errs = append(errs, errors.New("radio delays must not be negative"))
	}
	if r.Volume < 1 || r.Volume > 8 {
		errs = append(errs, fmt.Errorf("radio.volume %d is out of range [1, 8]", r.Volume))
	}
	if r.Group != nil {
		if err := r.Group.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("radio.group: %w", err))
		}
	}
	return errs
}

// validateDriverName logs a warning if name is not found in the
// [ValidDriverNames] list for the given kind.
func validateDriverName(kind, name string) {
	known, ok := ValidDriverNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown driver name, may be a typo or an externally registered driver",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
