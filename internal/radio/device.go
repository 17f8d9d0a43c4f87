// Package radio controls an SA818 VHF/UHF FM module: power sequencing, PTT,
// RF power level and squelch sensing over GPIO, the AT command protocol over
// a serial link, and the analog audio path flags, levels and test tone.
//
// A [Device] implements [stream.PathGate], so the streaming engine only moves
// samples while the corresponding audio path is enabled.
package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/internal/sched"
	"github.com/MrWong99/sa818bridge/internal/stream"
)

var (
	// ErrInvalidParam is returned for arguments outside the module's range.
	ErrInvalidParam = errors.New("radio: invalid parameter")

	// ErrNoATLink is returned by AT-backed operations on a device built
	// without an [ATClient].
	ErrNoATLink = errors.New("radio: no AT link")
)

// Compile-time assertion that Device gates the streaming engine.
var _ stream.PathGate = (*Device)(nil)

// Defaults match the module datasheet.
const (
	DefaultPowerOnDelay  = 100 * time.Millisecond
	DefaultTxEnableDelay = 50 * time.Millisecond
	DefaultVolume        = 4
)

// SquelchState is the level of the module's squelch output.
type SquelchState bool

const (
	SquelchClosed SquelchState = false
	SquelchOpen   SquelchState = true
)

// String implements [fmt.Stringer].
func (s SquelchState) String() string {
	if s {
		return "open"
	}
	return "closed"
}

// MarshalText implements [encoding.TextMarshaler].
func (s SquelchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the device state.
type Status struct {
	Power     bool         `json:"power"`
	PTT       bool         `json:"ptt"`
	HighPower bool         `json:"high_power"`
	Squelch   SquelchState `json:"squelch"`
	Volume    uint8        `json:"volume"`
	AudioRX   bool         `json:"audio_rx"`
	AudioTX   bool         `json:"audio_tx"`
	Tone      bool         `json:"tone"`
}

// Option configures a [Device].
type Option func(*Device)

// WithPowerOnDelay sets how long SetPower(true) waits for the module to boot.
func WithPowerOnDelay(d time.Duration) Option {
	return func(dev *Device) { dev.powerOnDelay = d }
}

// WithTxEnableDelay sets how long SetPTT(true) waits for the transmitter to
// key up.
func WithTxEnableDelay(d time.Duration) Option {
	return func(dev *Device) { dev.txEnableDelay = d }
}

// Device is one SA818 module. All methods are safe for concurrent use.
type Device struct {
	pins Pins
	at   *ATClient
	adc  hw.ADC
	dac  hw.DAC

	powerOnDelay  time.Duration
	txEnableDelay time.Duration
	now           func() time.Time

	mu        sync.Mutex
	power     bool
	ptt       bool
	high      bool
	volume    uint8
	rxEnabled bool
	txEnabled bool
	tone      toneState

	toneMu   sync.Mutex
	toneWork *sched.Work
}

// New drives the control lines to their idle levels (module off, receive,
// low power) and returns the device. at may be nil when no serial link is
// configured.
func New(pins Pins, at *ATClient, adc hw.ADC, dac hw.DAC, opts ...Option) (*Device, error) {
	if err := pins.validate(); err != nil {
		return nil, err
	}
	if adc == nil || dac == nil {
		return nil, fmt.Errorf("radio: %w: adc and dac are required", ErrInvalidParam)
	}
	d := &Device{
		pins:          pins,
		at:            at,
		adc:           adc,
		dac:           dac,
		powerOnDelay:  DefaultPowerOnDelay,
		txEnableDelay: DefaultTxEnableDelay,
		now:           time.Now,
		volume:        DefaultVolume,
	}
	for _, o := range opts {
		o(d)
	}
	d.toneWork = sched.New(d.toneStep)

	if err := errors.Join(
		pins.PTT.Out(gpio.Low),
		pins.HighLow.Out(gpio.Low),
		pins.PowerDown.Out(gpio.High),
		pins.Squelch.In(gpio.PullDown, gpio.NoEdge),
	); err != nil {
		return nil, fmt.Errorf("radio: init gpio: %w", err)
	}
	slog.Info("sa818 initialized", "power_down", pins.PowerDown.Name(), "ptt", pins.PTT.Name())
	return d, nil
}

// AT returns the AT client, or nil.
func (d *Device) AT() *ATClient { return d.at }

// SetPower switches the module on (PowerDown low, then waits for boot) or off.
func (d *Device) SetPower(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on {
		if err := d.pins.PowerDown.Out(gpio.Low); err != nil {
			return fmt.Errorf("radio: power on: %w", err)
		}
		time.Sleep(d.powerOnDelay)
		slog.Info("sa818 powered on")
	} else {
		if err := d.pins.PowerDown.Out(gpio.High); err != nil {
			return fmt.Errorf("radio: power off: %w", err)
		}
		slog.Info("sa818 powered off")
	}
	d.power = on
	return nil
}

// SetPTT keys (on) or releases the transmitter. Keying waits the TX enable
// delay before returning.
func (d *Device) SetPTT(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lvl := gpio.Low
	if on {
		lvl = gpio.High
	}
	if err := d.pins.PTT.Out(lvl); err != nil {
		return fmt.Errorf("radio: ptt: %w", err)
	}
	if on {
		time.Sleep(d.txEnableDelay)
	}
	d.ptt = on
	slog.Info("sa818 ptt", "on", on)
	return nil
}

// SetPowerLevel selects high (1 W) or low (0.5 W) RF output.
func (d *Device) SetPowerLevel(high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lvl := gpio.Low
	if high {
		lvl = gpio.High
	}
	if err := d.pins.HighLow.Out(lvl); err != nil {
		return fmt.Errorf("radio: power level: %w", err)
	}
	d.high = high
	slog.Info("sa818 tx power", "high", high)
	return nil
}

// Squelch samples the squelch output. High means open.
func (d *Device) Squelch() SquelchState {
	return SquelchState(d.pins.Squelch.Read() == gpio.High)
}

// Status returns a snapshot of the device state.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Power:     d.power,
		PTT:       d.ptt,
		HighPower: d.high,
		Squelch:   d.Squelch(),
		Volume:    d.volume,
		AudioRX:   d.rxEnabled,
		AudioTX:   d.txEnabled,
		Tone:      d.tone.active,
	}
}

// EnablePath sets the RX and TX audio path flags.
func (d *Device) EnablePath(rx, tx bool) {
	d.mu.Lock()
	d.rxEnabled = rx
	d.txEnabled = tx
	d.mu.Unlock()
	slog.Info("sa818 audio paths", "rx", rx, "tx", tx)
}

// AudioTxEnabled implements [stream.PathGate].
func (d *Device) AudioTxEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txEnabled
}

// AudioRxEnabled implements [stream.PathGate].
func (d *Device) AudioRxEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxEnabled
}

// SetTxLevel writes an 8-bit level, scaled to the DAC width, as a single
// sample. It is a no-op while the TX path is disabled.
func (d *Device) SetTxLevel(level uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.txEnabled {
		slog.Debug("sa818 tx audio disabled, ignoring level")
		return nil
	}
	code := scaleLevel(level, d.dac.Resolution())
	if err := d.dac.Write(code); err != nil {
		return fmt.Errorf("radio: tx level: %w", err)
	}
	slog.Debug("sa818 tx level", "level", level, "dac", code)
	return nil
}

func scaleLevel(level uint8, res uint8) uint32 {
	if res >= 8 {
		return uint32(level) << (res - 8)
	}
	return uint32(level) >> (8 - res)
}

// RxLevel returns the raw ADC code of the receive audio pin.
func (d *Device) RxLevel() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.adc.Read()
	if err != nil {
		return 0, fmt.Errorf("radio: rx level: %w", err)
	}
	return v, nil
}

// RxMax is the largest code [Device.RxLevel] can return.
func (d *Device) RxMax() uint32 {
	return 1<<d.adc.Resolution() - 1
}

// Volume returns the last volume accepted by the module.
func (d *Device) Volume() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// SetVolume sends AT+DMOSETVOLUME and records the level on success.
func (d *Device) SetVolume(ctx context.Context, level uint8) error {
	if d.at == nil {
		return ErrNoATLink
	}
	if err := d.at.SetVolume(ctx, level); err != nil {
		return err
	}
	d.mu.Lock()
	d.volume = level
	d.mu.Unlock()
	return nil
}

// Close stops a running tone and powers the module down.
func (d *Device) Close() error {
	d.StopTone()
	var errs []error
	if err := d.SetPTT(false); err != nil {
		errs = append(errs, err)
	}
	if err := d.SetPower(false); err != nil {
		errs = append(errs, err)
	}
	if d.at != nil {
		if err := d.at.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
