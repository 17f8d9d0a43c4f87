package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/sa818bridge/internal/config"
	"github.com/MrWong99/sa818bridge/internal/radio"
)

// moduleTimeout bounds the AT exchanges of one configuration pass.
const moduleTimeout = 5 * time.Second

func (a *App) initRadio(ctx context.Context) error {
	rc := a.cfg.Radio

	port := a.port
	if port == nil {
		p, err := openPort(rc.Serial)
		if err != nil {
			return err
		}
		port = p
	}
	at := radio.NewATClient(port,
		radio.WithTimeout(rc.Serial.Timeout),
		radio.WithATMetrics(a.metrics),
	)

	var pins radio.Pins
	if a.pins != nil {
		pins = *a.pins
	} else {
		p, err := radio.OpenPins(rc.GPIO)
		if err != nil {
			return errors.Join(err, at.Close())
		}
		pins = p
	}

	dev, err := radio.New(pins, at, a.adc, a.dac,
		radio.WithPowerOnDelay(rc.PowerOnDelay),
		radio.WithTxEnableDelay(rc.TxEnableDelay),
	)
	if err != nil {
		return errors.Join(err, at.Close())
	}
	a.radio = dev
	a.closers = append(a.closers, dev.Close)

	if !rc.PowerOnAtStart {
		return nil
	}
	if err := dev.SetPower(true); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	if err := dev.SetPowerLevel(true); err != nil {
		return fmt.Errorf("power level: %w", err)
	}
	a.configureModule(ctx)
	return nil
}

func openPort(sc config.SerialConfig) (io.ReadWriteCloser, error) {
	if sc.Port == config.SerialSimulator {
		slog.Info("using in-process sa818 simulator")
		return radio.NewSimulator(), nil
	}
	return radio.OpenSerial(sc.Port, sc.Baud)
}

// configureModule handshakes and sends the configured volume, group and
// filters. Failures are logged; the module stays usable over HTTP.
func (a *App) configureModule(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, moduleTimeout)
	defer cancel()

	at := a.radio.AT()
	if err := at.Connect(ctx); err != nil {
		slog.Warn("sa818 handshake failed", "err", err)
		return
	}
	if v, err := at.Version(ctx); err == nil {
		slog.Info("sa818 connected", "version", v)
	}

	rc := a.cfg.Radio
	a.applyVolume(ctx, rc.Volume)
	if rc.Group != nil {
		a.applyGroup(ctx, *rc.Group)
	}
	if rc.Filters != nil {
		a.applyFilters(ctx, rc.Filters.Flags())
	}
}

func (a *App) applyVolume(ctx context.Context, level uint8) {
	if err := a.radio.SetVolume(ctx, level); err != nil {
		slog.Warn("sa818 set volume failed", "volume", level, "err", err)
		return
	}
	slog.Info("sa818 volume set", "volume", level)
}

func (a *App) applyGroup(ctx context.Context, g radio.Group) {
	if err := a.radio.AT().SetGroup(ctx, g); err != nil {
		slog.Warn("sa818 set group failed", "err", err)
		return
	}
	slog.Info("sa818 group set", "tx_mhz", g.TxFreqMHz, "rx_mhz", g.RxFreqMHz, "squelch", g.Squelch)
}

func (a *App) applyFilters(ctx context.Context, f radio.Filter) {
	if err := a.radio.AT().SetFilters(ctx, f); err != nil {
		slog.Warn("sa818 set filters failed", "err", err)
		return
	}
	slog.Info("sa818 filters set", "flags", uint8(f))
}

// applyConfig is the config watcher callback. Hot-reloadable fields are
// applied in place; everything else is reported.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if a.radio != nil && a.radio.AT() != nil {
		ctx, cancel := context.WithTimeout(context.Background(), moduleTimeout)
		defer cancel()
		if d.VolumeChanged {
			a.applyVolume(ctx, d.NewVolume)
		}
		if d.GroupChanged && d.NewGroup != nil {
			a.applyGroup(ctx, *d.NewGroup)
		}
		if d.FiltersChanged {
			a.applyFilters(ctx, d.NewFilters)
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}
