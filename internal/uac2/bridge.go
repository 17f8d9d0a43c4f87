package uac2

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/sa818bridge/internal/observe"
	"github.com/MrWong99/sa818bridge/internal/stream"
	"github.com/MrWong99/sa818bridge/pkg/audio"
	"github.com/MrWong99/sa818bridge/pkg/audio/ring"
)

var (
	_ Ops              = (*Bridge)(nil)
	_ stream.Callbacks = (*Bridge)(nil)
)

// SendInterval is the period of the USB-IN sender loop.
const SendInterval = time.Millisecond

// Stats is a point-in-time snapshot of the bridge.
type Stats struct {
	TxEnabled  bool `json:"tx_enabled"`
	RxEnabled  bool `json:"rx_enabled"`
	Streaming  bool `json:"streaming"`
	TxBuffered int  `json:"tx_buffered"`
	RxBuffered int  `json:"rx_buffered"`

	SOFs          uint64 `json:"sofs"`
	FramesSent    uint64 `json:"frames_sent"`
	SendFailures  uint64 `json:"send_failures"`
	TxDropped     uint64 `json:"tx_dropped_bytes"`
	RxDropped     uint64 `json:"rx_dropped_bytes"`
	Rejected      uint64 `json:"rejected_transfers"`
	PoolExhausted uint64 `json:"pool_exhausted"`
	PoolInFlight  int    `json:"pool_in_flight"`
	DACErrors     uint64 `json:"dac_errors"`
	ADCErrors     uint64 `json:"adc_errors"`
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithMetrics records bridge activity to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithFormat overrides the stream format used by the pump. Default is
// [audio.Default].
func WithFormat(f audio.Format) Option {
	return func(b *Bridge) { b.format = f }
}

// Bridge is the UAC2 ring-buffer bridge. It implements [Ops] for the
// transport and [stream.Callbacks] for the engine pump.
type Bridge struct {
	transport Transport
	pump      Pump
	format    audio.Format
	metrics   *observe.Metrics
	sofs      atomic.Uint64

	// pumpMu serialises pump transitions. Lock order: pumpMu, then mu.
	pumpMu sync.Mutex

	mu          sync.Mutex
	tx, rx      *ring.Ring
	pool        Pool
	txEnabled   bool
	rxEnabled   bool
	streaming   bool
	initialized bool
	stats       Stats
}

// New returns an uninitialised bridge on transport t driven by pump.
func New(t Transport, pump Pump, opts ...Option) *Bridge {
	b := &Bridge{transport: t, pump: pump, format: audio.Default}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	b.tx, b.rx = newRings()
	return b
}

// Init attaches the pump and installs the bridge on the transport. A second
// call logs a warning and does nothing.
func (b *Bridge) Init() error {
	fresh, err := b.attach()
	if err != nil || !fresh {
		return err
	}
	b.transport.SetOps(b)
	slog.Info("uac2: bridge initialized", "format", b.format.String())
	return nil
}

func (b *Bridge) attach() (bool, error) {
	b.pumpMu.Lock()
	defer b.pumpMu.Unlock()

	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		slog.Warn("uac2: bridge already initialized")
		return false, nil
	}
	b.mu.Unlock()

	if err := b.format.Validate(); err != nil {
		return false, fmt.Errorf("uac2: init: %w", err)
	}
	if err := b.pump.Attach(b); err != nil {
		return false, fmt.Errorf("uac2: init: %w", err)
	}

	b.mu.Lock()
	b.initialized = true
	b.streaming = true
	b.mu.Unlock()
	return true, nil
}

// Disable stops streaming, waits for the pump to stop and resets both rings.
func (b *Bridge) Disable() {
	b.pumpMu.Lock()
	defer b.pumpMu.Unlock()

	b.mu.Lock()
	was := b.streaming
	active := b.txEnabled || b.rxEnabled
	b.streaming = false
	b.mu.Unlock()
	if !was {
		return
	}
	if active {
		b.metrics.Streaming.Add(context.Background(), -1)
	}

	b.pump.Close()

	b.mu.Lock()
	b.tx.Reset()
	b.rx.Reset()
	b.mu.Unlock()
	slog.Info("uac2: bridge disabled")
}

// Run drives the USB-IN sender until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	t := time.NewTicker(SendInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			b.sendFrame(ctx)
		}
	}
}

// sendFrame moves one 16-byte frame from the RX ring to the transport.
// The transport is called without the bridge lock; the pool buffer stays
// claimed until Send returns. With no free buffer the frame stays queued.
func (b *Bridge) sendFrame(ctx context.Context) bool {
	b.mu.Lock()
	if !b.rxEnabled || !b.streaming || b.rx.Len() < BytesPerFrame {
		b.mu.Unlock()
		return false
	}
	pb := b.pool.Next()
	if pb == nil {
		b.stats.PoolExhausted++
		b.mu.Unlock()
		slog.Debug("uac2: no free pool buffer for IN frame")
		return false
	}
	buf := pb[:BytesPerFrame]
	b.rx.Get(buf)
	b.mu.Unlock()

	err := b.transport.Send(TerminalIn, buf)

	b.mu.Lock()
	b.pool.Release(buf)
	if err != nil {
		b.stats.SendFailures++
	} else {
		b.stats.FramesSent++
	}
	b.mu.Unlock()

	if err != nil {
		b.metrics.SendFailures.Add(ctx, 1)
		slog.Warn("uac2: send failed", "terminal", TerminalIn, "err", err)
		return false
	}
	b.metrics.FramesSent.Add(ctx, 1)
	return true
}

// Stats returns a snapshot of the bridge state and counters.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.TxEnabled = b.txEnabled
	s.RxEnabled = b.rxEnabled
	s.Streaming = b.streaming
	s.TxBuffered = b.tx.Len()
	s.RxBuffered = b.rx.Len()
	s.SOFs = b.sofs.Load()
	s.PoolInFlight = b.pool.InFlight()
	return s
}

// Format returns the stream format.
func (b *Bridge) Format() audio.Format { return b.format }

// ─── Ops ─────────────────────────────────────────────────────────────────────

// SOF implements [Ops].
func (b *Bridge) SOF() { b.sofs.Add(1) }

// TerminalUpdate implements [Ops]. Disabling a terminal resets its ring. The
// pump is activated when the first terminal comes up and deactivated, with
// both rings reset, when the last one goes down.
func (b *Bridge) TerminalUpdate(terminal uint8, enabled, microframes bool) {
	b.pumpMu.Lock()
	defer b.pumpMu.Unlock()

	b.mu.Lock()
	wasActive := b.txEnabled || b.rxEnabled
	switch terminal {
	case TerminalOut:
		if b.txEnabled && !enabled {
			b.tx.Reset()
		}
		b.txEnabled = enabled
	case TerminalIn:
		if b.rxEnabled && !enabled {
			b.rx.Reset()
		}
		b.rxEnabled = enabled
	default:
		b.mu.Unlock()
		slog.Debug("uac2: ignoring unknown terminal", "terminal", terminal, "enabled", enabled)
		return
	}
	active := b.txEnabled || b.rxEnabled
	ready := b.initialized && b.streaming
	b.mu.Unlock()

	slog.Info("uac2: terminal update",
		"terminal", terminal,
		"enabled", enabled,
		"microframes", microframes,
	)
	if !ready {
		return
	}

	ctx := context.Background()
	switch {
	case !wasActive && active:
		b.pump.Activate()
		b.metrics.Streaming.Add(ctx, 1)
	case wasActive && !active:
		b.pump.Deactivate()
		b.metrics.Streaming.Add(ctx, -1)
		b.mu.Lock()
		b.tx.Reset()
		b.rx.Reset()
		b.mu.Unlock()
	}
}

// GetRecvBuf implements [Ops]. Only the OUT terminal with TX enabled gets a
// buffer, and only for transfers up to [PoolBufferSize] bytes. The buffer is
// claimed until [Bridge.BufRelease].
func (b *Bridge) GetRecvBuf(terminal uint8, size int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if terminal != TerminalOut || !b.txEnabled {
		b.rejectLocked("disabled")
		return nil
	}
	if size < 0 || size > PoolBufferSize {
		b.rejectLocked("oversize")
		slog.Error("uac2: receive buffer too large", "size", size, "max", PoolBufferSize)
		return nil
	}
	buf := b.pool.Next()
	if buf == nil {
		b.stats.PoolExhausted++
		b.rejectLocked("pool_exhausted")
		slog.Warn("uac2: no free pool buffer for OUT transfer", "size", size)
		return nil
	}
	return buf[:size]
}

func (b *Bridge) rejectLocked(reason string) {
	b.stats.Rejected++
	b.metrics.RecordRejectedTransfer(context.Background(), reason)
}

// DataRecv implements [Ops]. Data is queued for the DAC; bytes that do not
// fit are dropped.
func (b *Bridge) DataRecv(terminal uint8, buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if terminal != TerminalOut || !b.txEnabled {
		return
	}
	if n := b.tx.Put(buf); n < len(buf) {
		dropped := len(buf) - n
		b.stats.TxDropped += uint64(dropped)
		b.metrics.RecordOverflow(context.Background(), "tx", dropped)
		slog.Warn("uac2: tx ring full", "dropped", dropped, "total", len(buf))
	}
}

// BufRelease implements [Ops] by returning buf to the pool.
func (b *Bridge) BufRelease(terminal uint8, buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pool.Release(buf) {
		slog.Debug("uac2: released buffer not from pool", "terminal", terminal, "len", len(buf))
	}
}

// ─── stream.Callbacks ────────────────────────────────────────────────────────

// TxRequest implements [stream.Callbacks] by draining the TX ring while the
// OUT terminal is enabled.
func (b *Bridge) TxRequest(buf []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.txEnabled {
		return 0
	}
	return b.tx.Get(buf)
}

// RxData implements [stream.Callbacks] by queueing ADC samples for the host
// while the IN terminal is enabled.
func (b *Bridge) RxData(buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.rxEnabled {
		return
	}
	if n := b.rx.Put(buf); n < len(buf) {
		dropped := len(buf) - n
		b.stats.RxDropped += uint64(dropped)
		b.metrics.RecordOverflow(context.Background(), "rx", dropped)
		slog.Warn("uac2: rx ring full", "dropped", dropped, "total", len(buf))
	}
}
