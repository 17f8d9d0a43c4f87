// Package app wires the sa818bridge subsystems into a running daemon.
//
// New builds the converters, the radio, the UAC2 bridge, the simulation
// pipeline and the HTTP surface from a [config.Config]. Run serves until its
// context is cancelled, and Shutdown tears everything down in reverse order.
//
// Tests inject GPIO pins, the serial port and the metrics instance through
// functional options so no hardware is touched.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sa818bridge/internal/config"
	"github.com/MrWong99/sa818bridge/internal/control"
	"github.com/MrWong99/sa818bridge/internal/health"
	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/internal/observe"
	"github.com/MrWong99/sa818bridge/internal/radio"
	"github.com/MrWong99/sa818bridge/internal/resilience"
	"github.com/MrWong99/sa818bridge/internal/sim"
	"github.com/MrWong99/sa818bridge/internal/stream"
	"github.com/MrWong99/sa818bridge/internal/uac2"
	"github.com/MrWong99/sa818bridge/internal/uac2/wshost"
)

// DefaultStatusInterval is the period of the status log line.
const DefaultStatusInterval = 10 * time.Second

// App owns every subsystem of the daemon.
type App struct {
	cfg        *config.Config
	registry   *config.Registry
	metrics    *observe.Metrics
	level      *slog.LevelVar
	configPath string
	interval   time.Duration

	// Injected hardware; nil means open from config.
	pins *radio.Pins
	port io.ReadWriteCloser

	adc    hw.ADC
	dac    hw.DAC
	radio  *radio.Device
	host   *wshost.Host
	hostCB *resilience.Breaker
	bridge *uac2.Bridge
	sim    *control.Sim

	listener net.Listener
	server   *http.Server

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithRegistry builds converters from reg instead of the built-in drivers.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigPath makes Run watch path and apply hot-reloadable changes.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithStatusInterval overrides [DefaultStatusInterval].
func WithStatusInterval(d time.Duration) Option {
	return func(a *App) { a.interval = d }
}

// WithPins uses pins instead of resolving the configured GPIO names.
func WithPins(pins radio.Pins) Option {
	return func(a *App) { a.pins = &pins }
}

// WithSerialPort uses port as the AT link instead of opening the configured
// device.
func WithSerialPort(port io.ReadWriteCloser) Option {
	return func(a *App) { a.port = port }
}

// New builds all subsystems from cfg. On error every subsystem built so far
// is closed again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg, interval: DefaultStatusInterval}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinDrivers(a.registry)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	if err := a.initConverters(); err != nil {
		return nil, fmt.Errorf("app: init converters: %w", err)
	}
	if cfg.Radio.Enabled {
		if err := a.initRadio(ctx); err != nil {
			return nil, fmt.Errorf("app: init radio: %w", err)
		}
	}
	if err := a.initBridge(); err != nil {
		return nil, fmt.Errorf("app: init bridge: %w", err)
	}
	if err := a.initSim(); err != nil {
		return nil, fmt.Errorf("app: init sim: %w", err)
	}
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	return a, nil
}

func (a *App) initConverters() error {
	f := a.cfg.Audio.Format()
	adc, err := a.registry.CreateADC(a.cfg.ADC)
	if err != nil {
		return err
	}
	dac, err := a.registry.CreateDAC(a.cfg.DAC, f)
	if err != nil {
		return err
	}
	a.adc, a.dac = adc, dac
	if c, ok := dac.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	slog.Info("converters ready",
		"adc", a.cfg.ADC.Driver, "adc_bits", adc.Resolution(),
		"dac", a.cfg.DAC.Driver, "dac_bits", dac.Resolution(),
	)
	return nil
}

func (a *App) initBridge() error {
	a.hostCB = resilience.New(resilience.Config{
		Name:         "uac2-host",
		MaxFailures:  10,
		ResetTimeout: time.Second,
	})
	a.host = wshost.New(
		wshost.WithCodec(wshost.Codec(a.cfg.Host.Codec)),
		wshost.WithBreaker(a.hostCB),
	)

	var pump uac2.Pump
	switch a.cfg.Audio.Mode {
	case config.ModeEngine:
		opts := []stream.Option{stream.WithMetrics(a.metrics)}
		if a.radio != nil {
			opts = append(opts, stream.WithPathGate(a.radio))
		}
		pump = uac2.NewEnginePump(stream.New(a.adc, a.dac, opts...))
	default:
		pump = uac2.NewDirectPump(a.adc, a.dac)
	}

	a.bridge = uac2.New(a.host, pump,
		uac2.WithMetrics(a.metrics),
		uac2.WithFormat(a.cfg.Audio.Format()),
	)
	if err := a.bridge.Init(); err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		a.bridge.Disable()
		return nil
	})
	return nil
}

func (a *App) initSim() error {
	emu, ok := a.adc.(*hw.EmulatedADC)
	if !ok {
		slog.Info("simulation disabled, adc is not emulated", "adc", a.cfg.ADC.Driver)
		return nil
	}
	sc := a.cfg.Sim
	s := &control.Sim{
		Pipeline: sim.NewPipeline(sim.NewADCSink(emu)),
		Sine:     sim.NewSineSource(),
		WAV:      &sim.WAVSource{},
		ADC:      emu,
	}
	s.Sine.Configure(sc.Sine.FreqHz, sc.Sine.Amp(), sc.Sine.RateHz)
	if sc.WAVFile != "" {
		if err := s.WAV.Load(sc.WAVFile); err != nil {
			return err
		}
	}
	a.sim = s
	a.closers = append(a.closers, func() error {
		s.Pipeline.Stop()
		return nil
	})

	if !sc.Autostart {
		return nil
	}
	var src sim.SampleSource
	switch sc.Source {
	case config.SimSine:
		src = s.Sine
	case config.SimWAV:
		src = s.WAV
	default:
		return nil
	}
	if err := s.Pipeline.Start(src); err != nil {
		return err
	}
	slog.Info("simulation started", "source", sc.Source)
	return nil
}

func (a *App) initServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observe.MetricsHandler())
	health.New(a.checkers()...).Register(mux)

	opts := []control.Option{control.WithStats(a.bridge)}
	if a.radio != nil {
		opts = append(opts, control.WithRadio(a.radio))
	}
	if a.sim != nil {
		opts = append(opts, control.WithSim(a.sim))
	}
	control.New(opts...).Register(mux)

	if p := a.cfg.Host.Path; p != "" {
		mux.Handle("GET "+p, a.host)
	}

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (a *App) checkers() []health.Checker {
	cs := []health.Checker{
		health.Condition("bridge", "bridge not streaming", func() bool {
			return a.bridge.Stats().Streaming
		}),
		health.Breaker("host_link", a.hostCB),
	}
	if a.radio != nil && a.radio.AT() != nil {
		cs = append(cs, health.Breaker("at_link", a.radio.AT().Breaker()))
	}
	return cs
}

// Addr returns the address the HTTP server listens on.
func (a *App) Addr() net.Addr { return a.listener.Addr() }

// Run serves HTTP, drives the bridge sender, logs status and watches the
// config file until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(a.listener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	g.Go(func() error {
		return a.bridge.Run(gctx)
	})
	g.Go(func() error {
		a.statusLoop(gctx)
		return nil
	})
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error {
				<-gctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	slog.Info("app running", "addr", a.Addr().String(), "mode", a.cfg.Audio.Mode)
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (a *App) statusLoop(ctx context.Context) {
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.logStatus()
		}
	}
}

func (a *App) logStatus() {
	st := a.bridge.Stats()
	attrs := []any{
		"streaming", st.Streaming,
		"tx_enabled", st.TxEnabled,
		"rx_enabled", st.RxEnabled,
		"frames_sent", st.FramesSent,
		"tx_dropped", st.TxDropped,
		"rx_dropped", st.RxDropped,
	}
	if a.radio != nil {
		rs := a.radio.Status()
		attrs = append(attrs, "power", rs.Power, "ptt", rs.PTT, "squelch", rs.Squelch.String())
	}
	slog.Info("status", attrs...)
}

// Shutdown stops the HTTP server and closes every subsystem in reverse
// construction order. Closers left when ctx expires are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}
		if a.listener != nil {
			_ = a.listener.Close()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
