package radio_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sa818bridge/internal/observe"
	"github.com/MrWong99/sa818bridge/internal/radio"
	"github.com/MrWong99/sa818bridge/internal/resilience"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, _ := testMetricsReader(t)
	return m
}

func testMetricsReader(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// scriptedPort answers every written line with the next scripted reply.
type scriptedPort struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	replies []string
	written []string
}

func newScriptedPort(replies ...string) *scriptedPort {
	pr, pw := io.Pipe()
	return &scriptedPort{pr: pr, pw: pw, replies: replies}
}

func (p *scriptedPort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.written = append(p.written, string(b))
	var reply string
	if len(p.replies) > 0 {
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	p.mu.Unlock()
	if reply != "" {
		go func() {
			_, _ = p.pw.Write([]byte(reply))
		}()
	}
	return len(b), nil
}

func (p *scriptedPort) Close() error {
	_ = p.pw.Close()
	return p.pr.Close()
}

func (p *scriptedPort) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func newSimClient(t *testing.T, opts ...radio.ATOption) (*radio.ATClient, *radio.Simulator) {
	t.Helper()
	sim := radio.NewSimulator()
	opts = append([]radio.ATOption{radio.WithATMetrics(testMetrics(t))}, opts...)
	c := radio.NewATClient(sim, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, sim
}

func TestATClient_Simulator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, sim := newSimClient(t)

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	g := radio.Group{
		Bandwidth: radio.Bandwidth25k,
		TxFreqMHz: 146.52,
		RxFreqMHz: 146.02,
		CTCSSTx:   12,
		Squelch:   2,
	}
	if err := c.SetGroup(ctx, g); err != nil {
		t.Fatalf("SetGroup: %v", err)
	}
	if got := sim.State().Group; got != g {
		t.Errorf("module group = %+v, want %+v", got, g)
	}

	if err := c.SetFilters(ctx, radio.FilterHighPass); err != nil {
		t.Fatalf("SetFilters: %v", err)
	}
	if got := sim.State().Filters; got != radio.FilterHighPass {
		t.Errorf("module filters = %v, want %v", got, radio.FilterHighPass)
	}

	sim.SetRSSI(87)
	rssi, err := c.RSSI(ctx)
	if err != nil {
		t.Fatalf("RSSI: %v", err)
	}
	if rssi != 87 {
		t.Errorf("RSSI = %d, want 87", rssi)
	}

	v, err := c.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "SA818_V4.2" {
		t.Errorf("Version = %q, want SA818_V4.2", v)
	}
}

func TestATClient_WireFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		call func(c *radio.ATClient) error
		want string
		ack  string
	}{
		{
			name: "connect",
			call: func(c *radio.ATClient) error { return c.Connect(context.Background()) },
			want: "AT+DMOCONNECT\r\n",
			ack:  "+DMOCONNECT:0\r\n",
		},
		{
			name: "default group",
			call: func(c *radio.ATClient) error {
				return c.SetGroup(context.Background(), radio.Group{TxFreqMHz: 145.5, RxFreqMHz: 145.5, Squelch: 4})
			},
			want: "AT+DMOSETGROUP=0,145.5000,145.5000,0000,4,0000\r\n",
			ack:  "+DMOSETGROUP:0\r\n",
		},
		{
			name: "group with tones",
			call: func(c *radio.ATClient) error {
				return c.SetGroup(context.Background(), radio.Group{
					Bandwidth: radio.Bandwidth25k, TxFreqMHz: 144.8, RxFreqMHz: 144.8,
					CTCSSTx: 12, Squelch: 8, CTCSSRx: 121,
				})
			},
			want: "AT+DMOSETGROUP=1,144.8000,144.8000,0012,8,0121\r\n",
			ack:  "+DMOSETGROUP:0\r\n",
		},
		{
			name: "volume",
			call: func(c *radio.ATClient) error { return c.SetVolume(context.Background(), 5) },
			want: "AT+DMOSETVOLUME=5\r\n",
			ack:  "+DMOSETVOLUME:0\r\n",
		},
		{
			name: "filters",
			call: func(c *radio.ATClient) error {
				return c.SetFilters(context.Background(), radio.FilterPreEmphasis|radio.FilterLowPass)
			},
			want: "AT+SETFILTER=1,0,1\r\n",
			ack:  "+DMOSETFILTER:0\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			port := newScriptedPort(tt.ack)
			c := radio.NewATClient(port, radio.WithATMetrics(testMetrics(t)))
			t.Cleanup(func() { _ = c.Close() })

			if err := tt.call(c); err != nil {
				t.Fatalf("call: %v", err)
			}
			lines := port.lines()
			if len(lines) != 1 || lines[0] != tt.want {
				t.Errorf("written = %q, want [%q]", lines, tt.want)
			}
		})
	}
}

func TestGroup_Validate(t *testing.T) {
	t.Parallel()
	base := radio.Group{TxFreqMHz: 145.5, RxFreqMHz: 145.5, Squelch: 4}
	tests := []struct {
		name    string
		mutate  func(g *radio.Group)
		wantErr bool
	}{
		{"valid", func(*radio.Group) {}, false},
		{"lowest tx", func(g *radio.Group) { g.TxFreqMHz = 134 }, false},
		{"highest tx", func(g *radio.Group) { g.TxFreqMHz = 174 }, false},
		{"tx below band", func(g *radio.Group) { g.TxFreqMHz = 133.99 }, true},
		{"tx above band", func(g *radio.Group) { g.TxFreqMHz = 174.01 }, true},
		{"squelch 9", func(g *radio.Group) { g.Squelch = 9 }, true},
		{"ctcss tx 122", func(g *radio.Group) { g.CTCSSTx = 122 }, true},
		{"ctcss rx 122", func(g *radio.Group) { g.CTCSSRx = 122 }, true},
		{"bandwidth 2", func(g *radio.Group) { g.Bandwidth = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := base
			tt.mutate(&g)
			err := g.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, radio.ErrInvalidParam) {
				t.Errorf("err = %v, want ErrInvalidParam", err)
			}
		})
	}
}

func TestATClient_InvalidParamsNeverReachWire(t *testing.T) {
	t.Parallel()
	port := newScriptedPort()
	c := radio.NewATClient(port, radio.WithATMetrics(testMetrics(t)))
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	for name, err := range map[string]error{
		"volume 0":  c.SetVolume(ctx, 0),
		"volume 9":  c.SetVolume(ctx, 9),
		"filters":   c.SetFilters(ctx, radio.Filter(0x08)),
		"group":     c.SetGroup(ctx, radio.Group{TxFreqMHz: 430}),
		"empty cmd": func() error { _, err := c.Command(ctx, ""); return err }(),
	} {
		if !errors.Is(err, radio.ErrInvalidParam) {
			t.Errorf("%s: err = %v, want ErrInvalidParam", name, err)
		}
	}
	if n := len(port.lines()); n != 0 {
		t.Errorf("written lines = %d, want 0", n)
	}
}

func TestATClient_UnexpectedReply(t *testing.T) {
	t.Parallel()
	port := newScriptedPort("+DMOCONNECT:1\r\n", "RSSI=abc\r\n")
	c := radio.NewATClient(port, radio.WithATMetrics(testMetrics(t)))
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	if err := c.Connect(ctx); !errors.Is(err, radio.ErrCommandFailed) {
		t.Errorf("Connect err = %v, want ErrCommandFailed", err)
	}
	if _, err := c.RSSI(ctx); !errors.Is(err, radio.ErrCommandFailed) {
		t.Errorf("RSSI err = %v, want ErrCommandFailed", err)
	}
	if got := c.Breaker().Failures(); got != 0 {
		t.Errorf("breaker failures = %d, want 0 for answered commands", got)
	}
}

func TestATClient_ReplyParsing(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 130)
	port := newScriptedPort("\r+DMO\rCONNECT:0\n", "RSSI=42 dBuV\r\n", long+"\r\n")
	c := radio.NewATClient(port, radio.WithATMetrics(testMetrics(t)))
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Errorf("Connect with embedded CR: %v", err)
	}
	rssi, err := c.RSSI(ctx)
	if err != nil || rssi != 42 {
		t.Errorf("RSSI = %d, %v; want 42, nil", rssi, err)
	}
	v, err := c.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if len(v) != radio.MaxResponseLen {
		t.Errorf("len(reply) = %d, want %d", len(v), radio.MaxResponseLen)
	}
}

func TestATClient_TimeoutOpensBreaker(t *testing.T) {
	t.Parallel()
	breaker := resilience.New(resilience.Config{
		Name:         "test-at",
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})
	c, sim := newSimClient(t,
		radio.WithTimeout(20*time.Millisecond),
		radio.WithBreaker(breaker),
	)
	sim.SetSilent(true)
	ctx := context.Background()

	for i := range 2 {
		if err := c.Connect(ctx); !errors.Is(err, radio.ErrTimeout) {
			t.Fatalf("attempt %d: err = %v, want ErrTimeout", i, err)
		}
	}
	if err := c.Connect(ctx); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("after failures: err = %v, want ErrCircuitOpen", err)
	}
}

func TestATClient_ContextCancel(t *testing.T) {
	t.Parallel()
	c, sim := newSimClient(t)
	sim.SetSilent(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestATClient_Closed(t *testing.T) {
	t.Parallel()
	c, _ := newSimClient(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, radio.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestATClient_RecordsDuration(t *testing.T) {
	t.Parallel()
	m, reader := testMetricsReader(t)
	c := radio.NewATClient(radio.NewSimulator(), radio.WithATMetrics(m))
	t.Cleanup(func() { _ = c.Close() })

	if err := c.SetVolume(context.Background(), 3); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "sa818.at.duration" {
				continue
			}
			h, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("sa818.at.duration is %T, want histogram", met.Data)
			}
			for _, dp := range h.DataPoints {
				if v, ok := dp.Attributes.Value("command"); ok && v.AsString() == "AT+DMOSETVOLUME" {
					count += dp.Count
				}
			}
		}
	}
	if count != 1 {
		t.Errorf("AT+DMOSETVOLUME samples = %d, want 1", count)
	}
}
