package config

import "github.com/MrWong99/sa818bridge/internal/radio"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded carry their new value; any
// other change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VolumeChanged bool
	NewVolume     uint8

	GroupChanged bool
	NewGroup     *radio.Group

	FiltersChanged bool
	NewFilters     radio.Filter

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VolumeChanged && !d.GroupChanged &&
		!d.FiltersChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Radio.Volume != new.Radio.Volume {
		d.VolumeChanged = true
		d.NewVolume = new.Radio.Volume
	}

	if !groupEqual(old.Radio.Group, new.Radio.Group) {
		d.GroupChanged = true
		d.NewGroup = new.Radio.Group
	}

	if filtersOf(old) != filtersOf(new) {
		d.FiltersChanged = true
		d.NewFilters = filtersOf(new)
	}

	// Everything else needs a restart.
	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.ADC != new.ADC {
		d.RestartRequired = append(d.RestartRequired, "adc")
	}
	if old.DAC != new.DAC {
		d.RestartRequired = append(d.RestartRequired, "dac")
	}
	if radioRestart(old.Radio, new.Radio) {
		d.RestartRequired = append(d.RestartRequired, "radio")
	}
	if old.Host != new.Host {
		d.RestartRequired = append(d.RestartRequired, "host")
	}
	if !simEqual(old.Sim, new.Sim) {
		d.RestartRequired = append(d.RestartRequired, "sim")
	}

	return d
}

func groupEqual(a, b *radio.Group) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func filtersOf(cfg *Config) radio.Filter {
	if cfg.Radio.Filters == nil {
		return radio.FilterNone
	}
	return cfg.Radio.Filters.Flags()
}

func radioRestart(a, b RadioConfig) bool {
	a.Volume, b.Volume = 0, 0
	a.Group, b.Group = nil, nil
	a.Filters, b.Filters = nil, nil
	return a != b
}

func simEqual(a, b SimConfig) bool {
	return a.Source == b.Source &&
		a.WAVFile == b.WAVFile &&
		a.Autostart == b.Autostart &&
		a.Sine.FreqHz == b.Sine.FreqHz &&
		a.Sine.RateHz == b.Sine.RateHz &&
		a.Sine.Amp() == b.Sine.Amp()
}
