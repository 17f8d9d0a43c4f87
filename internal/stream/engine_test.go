package stream_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/sa818bridge/internal/hw/mock"
	"github.com/MrWong99/sa818bridge/internal/observe"
	"github.com/MrWong99/sa818bridge/internal/stream"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// callbacks is a recording [stream.Callbacks].
type callbacks struct {
	mu     sync.Mutex
	tx     []byte
	txRet  int
	rx     [][]byte
	txCall int
}

func (c *callbacks) TxRequest(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txCall++
	copy(buf, c.tx)
	return c.txRet
}

func (c *callbacks) RxData(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rx = append(c.rx, append([]byte(nil), buf...))
}

func (c *callbacks) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.rx...)
}

type gate struct{ tx, rx atomic.Bool }

func (g *gate) AudioTxEnabled() bool { return g.tx.Load() }
func (g *gate) AudioRxEnabled() bool { return g.rx.Load() }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngine_RegisterAndStartErrors(t *testing.T) {
	t.Parallel()
	e := stream.New(&mock.ADC{Res: 12}, &mock.DAC{Res: 16}, stream.WithMetrics(testMetrics(t)))

	if err := e.Register(nil); !errors.Is(err, stream.ErrNilCallbacks) {
		t.Errorf("Register(nil) = %v, want ErrNilCallbacks", err)
	}
	if err := e.Start(audio.Default); !errors.Is(err, stream.ErrNotRegistered) {
		t.Errorf("Start without callbacks = %v, want ErrNotRegistered", err)
	}
	if err := e.Register(&callbacks{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	bad := audio.Format{SampleRate: 8000, BitDepth: 24, Channels: 1}
	if err := e.Start(bad); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("Start(%v) = %v, want ErrInvalidFormat", bad, err)
	}
	if e.Streaming() {
		t.Error("Streaming() = true after failed Start")
	}
}

func TestEngine_StartTwiceKeepsFirstFormat(t *testing.T) {
	t.Parallel()
	e := stream.New(&mock.ADC{Res: 12}, &mock.DAC{Res: 16}, stream.WithMetrics(testMetrics(t)))
	_ = e.Register(&callbacks{})
	if err := e.Start(audio.Default); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()
	other := audio.Format{SampleRate: 16000, BitDepth: 16, Channels: 1}
	if err := e.Start(other); err != nil {
		t.Fatalf("second Start = %v, want nil", err)
	}
	if got := e.Format(); got != audio.Default {
		t.Errorf("Format() = %v, want %v", got, audio.Default)
	}
}

func TestEngine_TransmitsCompleteSamples(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		ret       int
		wantPer   int
		wantFirst uint32
	}{
		{name: "one sample and a half", ret: 3, wantPer: 1, wantFirst: 33768},
		{name: "oversize return is clamped", ret: 1000, wantPer: 32, wantFirst: 33768},
		{name: "negative return writes nothing", ret: -4, wantPer: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dac := &mock.DAC{Res: 16}
			g := &gate{}
			g.tx.Store(true)
			e := stream.New(&mock.ADC{Res: 12}, dac, stream.WithPathGate(g), stream.WithMetrics(testMetrics(t)))

			tx := make([]byte, stream.TxBufferSize)
			for i := 0; i < len(tx); i += 2 {
				audio.PutSample(tx[i:], 1000)
			}
			cb := &callbacks{tx: tx, txRet: tc.ret}
			_ = e.Register(cb)
			if err := e.Start(audio.Default); err != nil {
				t.Fatalf("Start: %v", err)
			}
			eventually(t, func() bool { return e.Ticks() >= 3 })
			e.Stop()

			codes := dac.Codes()
			ticks := int(e.Ticks())
			if len(codes) != ticks*tc.wantPer {
				t.Errorf("dac writes = %d, want %d ticks × %d", len(codes), ticks, tc.wantPer)
			}
			if tc.wantPer > 0 && codes[0] != tc.wantFirst {
				t.Errorf("first code = %d, want %d", codes[0], tc.wantFirst)
			}
		})
	}
}

func TestEngine_ReceivesOneSamplePerTick(t *testing.T) {
	t.Parallel()
	g := &gate{}
	g.rx.Store(true)
	adc := &mock.ADC{Res: 12, Values: []uint32{4095}}
	dac := &mock.DAC{Res: 16}
	e := stream.New(adc, dac, stream.WithPathGate(g), stream.WithMetrics(testMetrics(t)))
	cb := &callbacks{}
	_ = e.Register(cb)
	if err := e.Start(audio.Default); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return len(cb.received()) >= 4 })
	e.Stop()

	for i, b := range cb.received() {
		if len(b) != 2 {
			t.Fatalf("rx[%d] has %d bytes, want 2", i, len(b))
		}
		if got := audio.Sample(b); got != 2047<<4 {
			t.Errorf("rx[%d] = %d, want %d", i, got, 2047<<4)
		}
	}
	if n := dac.CallCountWrite; n != 0 {
		t.Errorf("dac writes with TX gated = %d, want 0", n)
	}
	if cb.txCall != 0 {
		t.Errorf("TxRequest calls with TX gated = %d, want 0", cb.txCall)
	}
}

func TestEngine_StopHaltsTicks(t *testing.T) {
	t.Parallel()
	e := stream.New(&mock.ADC{Res: 12}, &mock.DAC{Res: 16}, stream.WithMetrics(testMetrics(t)))
	_ = e.Register(&callbacks{})
	if err := e.Start(audio.Default); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return e.Ticks() >= 2 })
	e.Stop()
	if e.Streaming() {
		t.Error("Streaming() = true after Stop")
	}
	after := e.Ticks()
	time.Sleep(10 * time.Millisecond)
	if got := e.Ticks(); got != after {
		t.Errorf("%d ticks after Stop", got-after)
	}
}

func TestEngine_ConcurrentStartStopKeepsTicking(t *testing.T) {
	t.Parallel()
	e := stream.New(&mock.ADC{Res: 12}, &mock.DAC{Res: 16}, stream.WithMetrics(testMetrics(t)))
	if err := e.Register(&callbacks{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(e.Stop)

	for range 50 {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = e.Start(audio.Default)
		}()
		go func() {
			defer wg.Done()
			e.Stop()
		}()
		wg.Wait()

		if !e.Streaming() {
			continue
		}
		ticks := e.Ticks()
		eventually(t, func() bool { return e.Ticks() > ticks })
	}
}

func TestEngine_ConverterErrorsSkipHalf(t *testing.T) {
	t.Parallel()
	adc := &mock.ADC{Res: 12, ReadError: errors.New("adc busy")}
	dac := &mock.DAC{Res: 16, WriteError: errors.New("dac busy")}
	tx := make([]byte, 8)
	cb := &callbacks{tx: tx, txRet: len(tx)}
	e := stream.New(adc, dac, stream.WithMetrics(testMetrics(t)))
	_ = e.Register(cb)
	if err := e.Start(audio.Default); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return adc.Reads() >= 3 })
	e.Stop()

	ticks := int(e.Ticks())
	if got := len(dac.Codes()); got != ticks {
		t.Errorf("dac writes = %d, want one attempt per tick (%d)", got, ticks)
	}
	if got := len(cb.received()); got != 0 {
		t.Errorf("RxData calls = %d, want 0", got)
	}
}
