package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sa818bridge/internal/observe"
	"github.com/MrWong99/sa818bridge/internal/resilience"
)

var (
	// ErrTimeout is returned when the module does not answer in time.
	ErrTimeout = errors.New("radio: at command timed out")

	// ErrCommandFailed is returned when the module answers with anything
	// other than the expected acknowledgement.
	ErrCommandFailed = errors.New("radio: at command failed")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("radio: at link closed")
)

const (
	// DefaultATTimeout bounds one command/response exchange.
	DefaultATTimeout = 2 * time.Second

	// MaxResponseLen is the longest reply line kept; longer lines are split.
	MaxResponseLen = 127
)

// Bandwidth is the channel spacing.
type Bandwidth uint8

const (
	Bandwidth12k5 Bandwidth = 0
	Bandwidth25k  Bandwidth = 1
)

// Group is one AT+DMOSETGROUP channel configuration.
type Group struct {
	Bandwidth Bandwidth `json:"bandwidth" yaml:"bandwidth"`
	TxFreqMHz float64   `json:"tx_freq" yaml:"tx_freq"`
	RxFreqMHz float64   `json:"rx_freq" yaml:"rx_freq"`
	CTCSSTx   ToneCode  `json:"ctcss_tx" yaml:"ctcss_tx"`
	Squelch   uint8     `json:"squelch" yaml:"squelch"`
	CTCSSRx   ToneCode  `json:"ctcss_rx" yaml:"ctcss_rx"`
}

// Validate checks the group against the module's ranges.
func (g Group) Validate() error {
	var errs []error
	if g.Bandwidth > Bandwidth25k {
		errs = append(errs, fmt.Errorf("%w: bandwidth %d", ErrInvalidParam, g.Bandwidth))
	}
	if g.Squelch > 8 {
		errs = append(errs, fmt.Errorf("%w: squelch %d outside 0..8", ErrInvalidParam, g.Squelch))
	}
	if g.CTCSSTx > MaxToneCode {
		errs = append(errs, fmt.Errorf("%w: ctcss_tx %d outside 0..%d", ErrInvalidParam, g.CTCSSTx, MaxToneCode))
	}
	if g.CTCSSRx > MaxToneCode {
		errs = append(errs, fmt.Errorf("%w: ctcss_rx %d outside 0..%d", ErrInvalidParam, g.CTCSSRx, MaxToneCode))
	}
	if g.TxFreqMHz < 134 || g.TxFreqMHz > 174 {
		errs = append(errs, fmt.Errorf("%w: tx_freq %.4f MHz outside 134..174", ErrInvalidParam, g.TxFreqMHz))
	}
	return errors.Join(errs...)
}

func (g Group) command() string {
	return fmt.Sprintf("AT+DMOSETGROUP=%d,%.4f,%.4f,%04d,%d,%04d",
		g.Bandwidth, g.TxFreqMHz, g.RxFreqMHz, g.CTCSSTx, g.Squelch, g.CTCSSRx)
}

// Filter is a set of audio filter flags.
type Filter uint8

const (
	FilterPreEmphasis Filter = 1 << iota
	FilterHighPass
	FilterLowPass

	FilterNone Filter = 0
	FilterAll         = FilterPreEmphasis | FilterHighPass | FilterLowPass
)

func (f Filter) command() string {
	bit := func(flag Filter) int {
		if f&flag != 0 {
			return 1
		}
		return 0
	}
	return fmt.Sprintf("AT+SETFILTER=%d,%d,%d", bit(FilterPreEmphasis), bit(FilterHighPass), bit(FilterLowPass))
}

// ATOption configures an [ATClient].
type ATOption func(*ATClient)

// WithTimeout sets the per-command response timeout.
func WithTimeout(d time.Duration) ATOption {
	return func(c *ATClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithATMetrics sets the metrics instance used to time commands.
func WithATMetrics(m *observe.Metrics) ATOption {
	return func(c *ATClient) { c.metrics = m }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) ATOption {
	return func(c *ATClient) { c.breaker = b }
}

// ATClient speaks the SA818 AT protocol over a serial link. Commands are
// serialised; each writes one line terminated by CR LF and waits for one
// reply line.
type ATClient struct {
	port    io.ReadWriteCloser
	timeout time.Duration
	metrics *observe.Metrics
	breaker *resilience.Breaker

	mu    sync.Mutex
	lines chan string

	closeOnce sync.Once
	done      chan struct{}
}

// NewATClient starts reading replies from port. The client owns port and
// closes it on Close.
func NewATClient(port io.ReadWriteCloser, opts ...ATOption) *ATClient {
	c := &ATClient{
		port:    port,
		timeout: DefaultATTimeout,
		lines:   make(chan string, 8),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.breaker == nil {
		c.breaker = resilience.New(resilience.Config{
			Name:         "sa818-at",
			MaxFailures:  3,
			ResetTimeout: 10 * time.Second,
			IsFailure:    isLinkFailure,
		})
	}
	go c.readLoop()
	return c
}

// isLinkFailure counts only errors that suggest a dead link. A refused
// parameter or an error reply proves the module is alive.
func isLinkFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrInvalidParam) &&
		!errors.Is(err, ErrCommandFailed) &&
		!errors.Is(err, context.Canceled)
}

func (c *ATClient) readLoop() {
	r := bufio.NewReader(c.port)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				select {
				case <-c.done:
				default:
					slog.Warn("sa818 at read loop stopped", "err", err)
				}
			}
			return
		}
		switch b {
		case '\r':
			continue
		case '\n':
			c.deliver(string(line))
			line = line[:0]
			continue
		}
		line = append(line, b)
		if len(line) >= MaxResponseLen {
			c.deliver(string(line))
			line = line[:0]
		}
	}
}

func (c *ATClient) deliver(line string) {
	select {
	case c.lines <- line:
	default:
		slog.Debug("sa818 at dropping unsolicited line", "line", line)
	}
}

// Command sends cmd and returns the module's reply line.
func (c *ATClient) Command(ctx context.Context, cmd string) (string, error) {
	if cmd == "" || strings.ContainsAny(cmd, "\r\n") {
		return "", fmt.Errorf("%w: empty or multi-line command", ErrInvalidParam)
	}
	name := commandName(cmd)
	ctx, span := observe.StartSpan(ctx, "sa818.at",
		trace.WithAttributes(attribute.String("at.command", name)),
	)
	start := time.Now()

	var reply string
	err := c.breaker.Execute(func() error {
		r, err := c.exchange(ctx, cmd)
		reply = r
		return err
	})

	c.metrics.RecordATCommand(ctx, name, time.Since(start), errorKind(err))
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Error("sa818 at command failed", "command", cmd, "err", err)
		return "", err
	}
	observe.Logger(ctx).Debug("sa818 at", "tx", cmd, "rx", reply)
	return reply, nil
}

func (c *ATClient) exchange(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return "", ErrClosed
	default:
	}

	for drained := false; !drained; {
		select {
		case <-c.lines:
		default:
			drained = true
		}
	}

	if _, err := io.WriteString(c.port, cmd+"\r\n"); err != nil {
		return "", fmt.Errorf("radio: write %s: %w", commandName(cmd), err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case line := <-c.lines:
		return line, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, commandName(cmd), c.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClosed
	}
}

func commandName(cmd string) string {
	if i := strings.IndexByte(cmd, '='); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCommandFailed):
		return "failed"
	case errors.Is(err, ErrInvalidParam):
		return "invalid"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "io"
	}
}

// expect runs cmd and requires ack somewhere in the reply.
func (c *ATClient) expect(ctx context.Context, cmd, ack string) error {
	reply, err := c.Command(ctx, cmd)
	if err != nil {
		return err
	}
	if !strings.Contains(reply, ack) {
		return fmt.Errorf("%w: %s: reply %q", ErrCommandFailed, commandName(cmd), reply)
	}
	return nil
}

// Connect performs the AT+DMOCONNECT handshake.
func (c *ATClient) Connect(ctx context.Context) error {
	if err := c.expect(ctx, "AT+DMOCONNECT", "+DMOCONNECT:0"); err != nil {
		return err
	}
	slog.Info("sa818 connected")
	return nil
}

// SetGroup configures bandwidth, frequencies, CTCSS/DCS codes and squelch.
func (c *ATClient) SetGroup(ctx context.Context, g Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := c.expect(ctx, g.command(), "+DMOSETGROUP:0"); err != nil {
		return err
	}
	slog.Info("sa818 group configured", "tx_mhz", g.TxFreqMHz, "rx_mhz", g.RxFreqMHz, "squelch", g.Squelch)
	return nil
}

// SetVolume sets the audio output level, 1..8.
func (c *ATClient) SetVolume(ctx context.Context, level uint8) error {
	if level < 1 || level > 8 {
		return fmt.Errorf("%w: volume %d outside 1..8", ErrInvalidParam, level)
	}
	if err := c.expect(ctx, fmt.Sprintf("AT+DMOSETVOLUME=%d", level), "+DMOSETVOLUME:0"); err != nil {
		return err
	}
	slog.Info("sa818 volume set", "level", level)
	return nil
}

// SetFilters enables the pre-emphasis, high-pass and low-pass filters named
// in f and disables the rest.
func (c *ATClient) SetFilters(ctx context.Context, f Filter) error {
	if f&^FilterAll != 0 {
		return fmt.Errorf("%w: filter flags %#x", ErrInvalidParam, uint8(f))
	}
	if err := c.expect(ctx, f.command(), "+DMOSETFILTER:0"); err != nil {
		return err
	}
	slog.Info("sa818 filters set",
		"pre_emphasis", f&FilterPreEmphasis != 0,
		"high_pass", f&FilterHighPass != 0,
		"low_pass", f&FilterLowPass != 0,
	)
	return nil
}

// RSSI reads the received signal strength.
func (c *ATClient) RSSI(ctx context.Context) (uint8, error) {
	reply, err := c.Command(ctx, "RSSI?")
	if err != nil {
		return 0, err
	}
	i := strings.Index(reply, "RSSI=")
	if i < 0 {
		return 0, fmt.Errorf("%w: RSSI?: reply %q", ErrCommandFailed, reply)
	}
	digits := reply[i+len("RSSI="):]
	n := 0
	for n < len(digits) && digits[n] >= '0' && digits[n] <= '9' {
		n++
	}
	v, err := strconv.ParseUint(digits[:n], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: RSSI?: reply %q", ErrCommandFailed, reply)
	}
	return uint8(v), nil
}

// Version returns the module firmware version line.
func (c *ATClient) Version(ctx context.Context) (string, error) {
	return c.Command(ctx, "AT+VERSION")
}

// Breaker exposes the circuit breaker for health reporting.
func (c *ATClient) Breaker() *resilience.Breaker { return c.breaker }

// Close stops the read loop and closes the port.
func (c *ATClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.port.Close()
	})
	return err
}
