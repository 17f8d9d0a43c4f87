// Package config provides the configuration schema, loader, hot-reload
// watcher and driver registry for the sa818bridge daemon.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/sa818bridge/internal/radio"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BridgeMode selects how the UAC2 bridge moves samples to the converters.
type BridgeMode string

const (
	// ModeDirect runs the per-sample bridge worker.
	ModeDirect BridgeMode = "direct"

	// ModeEngine drives the converters through the generic stream engine.
	ModeEngine BridgeMode = "engine"
)

// IsValid reports whether m is a recognised bridge mode.
func (m BridgeMode) IsValid() bool {
	return m == ModeDirect || m == ModeEngine
}

// SimSource selects the simulated ADC input.
type SimSource string

const (
	SimNone SimSource = "none"
	SimSine SimSource = "sine"
	SimWAV  SimSource = "wav"
)

// IsValid reports whether s is a recognised simulation source.
func (s SimSource) IsValid() bool {
	switch s {
	case SimNone, SimSine, SimWAV:
		return true
	}
	return false
}

// Host link codecs.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	ADC    ADCConfig    `yaml:"adc"`
	DAC    DACConfig    `yaml:"dac"`
	Radio  RadioConfig  `yaml:"radio"`
	Host   HostConfig   `yaml:"host"`
	Sim    SimConfig    `yaml:"sim"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig is the stream format and bridge mode.
type AudioConfig struct {
	SampleRate uint32     `yaml:"sample_rate"`
	BitDepth   uint8      `yaml:"bit_depth"`
	Channels   uint8      `yaml:"channels"`
	Mode       BridgeMode `yaml:"mode"`
}

// Format returns the configured stream format.
func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.SampleRate, BitDepth: a.BitDepth, Channels: a.Channels}
}

// ADCConfig selects the receive audio converter.
type ADCConfig struct {
	// Driver is a name registered in the [Registry] (built in: "emul").
	Driver string `yaml:"driver"`

	// Resolution is the converter width in bits.
	Resolution uint8 `yaml:"resolution"`
}

// DACConfig selects the transmit audio converter.
type DACConfig struct {
	// Driver is a name registered in the [Registry] (built in: "null",
	// "memory", "wav").
	Driver string `yaml:"driver"`

	// Resolution is the converter width in bits.
	Resolution uint8 `yaml:"resolution"`

	// OutputFile is the WAV file written by the "wav" driver.
	OutputFile string `yaml:"output_file"`
}

// RadioConfig describes the SA818 module. When Enabled is false the daemon
// runs the audio bridge without radio control.
type RadioConfig struct {
	Enabled bool           `yaml:"enabled"`
	Serial  SerialConfig   `yaml:"serial"`
	GPIO    radio.PinNames `yaml:"gpio"`

	TxEnableDelay  time.Duration `yaml:"tx_enable_delay"`
	PowerOnDelay   time.Duration `yaml:"power_on_delay"`
	PowerOnAtStart bool          `yaml:"power_on_at_start"`

	// Volume, Group and Filters are sent over AT at startup and again
	// whenever they change in the file.
	Volume  uint8          `yaml:"volume"`
	Group   *radio.Group   `yaml:"group"`
	Filters *FiltersConfig `yaml:"filters"`
}

// SerialConfig is the AT link. Port "sim" selects the in-process module
// simulator.
type SerialConfig struct {
	Port    string        `yaml:"port"`
	Baud    uint          `yaml:"baud"`
	Timeout time.Duration `yaml:"timeout"`
}

// SerialSimulator is the [SerialConfig.Port] value that selects the
// in-process module simulator.
const SerialSimulator = "sim"

// FiltersConfig enables the module's audio filters.
type FiltersConfig struct {
	PreEmphasis bool `yaml:"pre_emphasis"`
	HighPass    bool `yaml:"high_pass"`
	LowPass     bool `yaml:"low_pass"`
}

// Flags converts the config to AT filter flags.
func (f FiltersConfig) Flags() radio.Filter {
	var out radio.Filter
	if f.PreEmphasis {
		out |= radio.FilterPreEmphasis
	}
	if f.HighPass {
		out |= radio.FilterHighPass
	}
	if f.LowPass {
		out |= radio.FilterLowPass
	}
	return out
}

// HostConfig is the network UAC2 host endpoint.
type HostConfig struct {
	// Path is the HTTP path of the WebSocket endpoint. Empty disables it.
	Path string `yaml:"path"`

	// Codec is "pcm" or "opus".
	Codec string `yaml:"codec"`
}

// SimConfig drives the emulated ADC.
type SimConfig struct {
	Source    SimSource  `yaml:"source"`
	Sine      SineConfig `yaml:"sine"`
	WAVFile   string     `yaml:"wav_file"`
	Autostart bool       `yaml:"autostart"`
}

// SineConfig parameterises the sine source.
type SineConfig struct {
	FreqHz uint32 `yaml:"freq_hz"`

	// Amplitude is in [0, 1]. Nil selects full scale.
	Amplitude *float32 `yaml:"amplitude"`

	RateHz uint32 `yaml:"rate_hz"`
}

// Amp returns the amplitude, or 1 when unset.
func (s SineConfig) Amp() float32 {
	if s.Amplitude == nil {
		return 1
	}
	return *s.Amplitude
}
