// Package wshost carries the UAC2 device function over a WebSocket, so a
// host without a USB device controller can drive the bridge across the
// network.
//
// One client is served at a time. Text messages are JSON control messages:
//
//	{"type":"terminal","terminal":1,"enabled":true,"microframes":false}
//
// Binary messages from the client are OUT transfers on terminal 1; binary
// messages to the client are IN transfers from terminal 4. With the opus
// codec both directions carry one 20 ms Opus packet per message.
package wshost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/sa818bridge/internal/resilience"
	"github.com/MrWong99/sa818bridge/internal/uac2"
	"github.com/MrWong99/sa818bridge/pkg/audio/opus"
)

// ErrNotConnected is returned by Send while no client is attached.
var ErrNotConnected = errors.New("wshost: no host connected")

// Codec selects the payload encoding of binary messages.
type Codec string

const (
	CodecPCM  Codec = "pcm"
	CodecOpus Codec = "opus"
)

const (
	defaultSOFInterval  = time.Millisecond
	defaultWriteTimeout = 250 * time.Millisecond
)

// Option configures a [Host].
type Option func(*Host)

// WithCodec selects the binary payload codec. Default [CodecPCM].
func WithCodec(c Codec) Option {
	return func(h *Host) { h.codec = c }
}

// WithBreaker guards writes to the client with cb.
func WithBreaker(cb *resilience.Breaker) Option {
	return func(h *Host) { h.breaker = cb }
}

// WithSOFInterval sets the start-of-frame period. Default 1 ms.
func WithSOFInterval(d time.Duration) Option {
	return func(h *Host) { h.sofInterval = d }
}

// controlMessage is a text frame from the client.
type controlMessage struct {
	Type        string `json:"type"`
	Terminal    uint8  `json:"terminal"`
	Enabled     bool   `json:"enabled"`
	Microframes bool   `json:"microframes"`
}

// Host is a [uac2.Transport] and an [http.Handler] accepting the client.
type Host struct {
	codec       Codec
	breaker     *resilience.Breaker
	sofInterval time.Duration

	mu      sync.Mutex
	ops     uac2.Ops
	session *session

	// sendMu serialises Send; the opus encoder is not concurrency safe.
	sendMu sync.Mutex
}

var _ uac2.Transport = (*Host)(nil)

// New returns a Host with no client attached.
func New(opts ...Option) *Host {
	h := &Host{codec: CodecPCM, sofInterval: defaultSOFInterval}
	for _, o := range opts {
		o(h)
	}
	if h.sofInterval <= 0 {
		h.sofInterval = defaultSOFInterval
	}
	if h.breaker == nil {
		h.breaker = resilience.New(resilience.Config{
			Name:         "uac2-host",
			MaxFailures:  10,
			ResetTimeout: time.Second,
		})
	}
	return h
}

// SetOps implements [uac2.Transport].
func (h *Host) SetOps(ops uac2.Ops) {
	h.mu.Lock()
	h.ops = ops
	h.mu.Unlock()
}

// Connected reports whether a client is attached.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session != nil
}

// Send implements [uac2.Transport]. The payload is written before Send
// returns, so buf may be reused immediately.
func (h *Host) Send(terminal uint8, buf []byte) error {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	payloads := [][]byte{buf}
	if s.enc != nil {
		pkts, err := s.enc.Push(buf)
		if err != nil {
			return fmt.Errorf("wshost: send: %w", err)
		}
		payloads = pkts
	}
	for _, p := range payloads {
		err := h.breaker.Execute(func() error {
			ctx, cancel := context.WithTimeout(s.ctx, defaultWriteTimeout)
			defer cancel()
			return s.conn.Write(ctx, websocket.MessageBinary, p)
		})
		if err != nil {
			return fmt.Errorf("wshost: send terminal %d: %w", terminal, err)
		}
	}
	return nil
}

// session is the state of one attached client.
type session struct {
	conn *websocket.Conn
	ctx  context.Context
	enc  *opus.Encoder
	dec  *opus.Decoder

	// enabled tracks terminals this client switched on.
	enabled map[uint8]bool
}

// ServeHTTP accepts a client. A second concurrent client gets 409, and a
// host without installed ops gets 503.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	ops := h.ops
	busy := h.session != nil
	h.mu.Unlock()
	if ops == nil {
		http.Error(w, "audio function not initialized", http.StatusServiceUnavailable)
		return
	}
	if busy {
		http.Error(w, "a host is already connected", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Warn("wshost: accept failed", "err", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{conn: conn, ctx: ctx, enabled: make(map[uint8]bool)}
	if h.codec == CodecOpus {
		if s.enc, err = opus.NewEncoder(); err == nil {
			s.dec, err = opus.NewDecoder()
		}
		if err != nil {
			slog.Error("wshost: opus setup failed", "err", err)
			conn.Close(websocket.StatusInternalError, "codec unavailable")
			return
		}
	}

	h.mu.Lock()
	if h.session != nil {
		h.mu.Unlock()
		conn.Close(websocket.StatusTryAgainLater, "a host is already connected")
		return
	}
	h.session = s
	h.mu.Unlock()
	slog.Info("wshost: host connected", "remote", r.RemoteAddr, "codec", string(h.codec))

	go h.sofLoop(ctx, ops)
	err = h.readLoop(ctx, s, ops)

	h.mu.Lock()
	h.session = nil
	h.mu.Unlock()
	for terminal, on := range s.enabled {
		if on {
			ops.TerminalUpdate(terminal, false, false)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session closed")
	slog.Info("wshost: host disconnected", "remote", r.RemoteAddr, "err", err)
}

func (h *Host) sofLoop(ctx context.Context, ops uac2.Ops) {
	t := time.NewTicker(h.sofInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ops.SOF()
		}
	}
}

func (h *Host) readLoop(ctx context.Context, s *session, ops uac2.Ops) error {
	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation ends the session.
			return err
		}
		switch typ {
		case websocket.MessageText:
			h.handleControl(s, ops, msg)
		case websocket.MessageBinary:
			if s.dec != nil {
				if msg, err = s.dec.Decode(msg); err != nil {
					slog.Warn("wshost: dropping undecodable packet", "err", err)
					continue
				}
			}
			deliver(ops, msg)
		}
	}
}

func (h *Host) handleControl(s *session, ops uac2.Ops, msg []byte) {
	var cm controlMessage
	if err := json.Unmarshal(msg, &cm); err != nil {
		slog.Warn("wshost: invalid control message", "err", err)
		return
	}
	switch cm.Type {
	case "terminal":
		s.enabled[cm.Terminal] = cm.Enabled
		ops.TerminalUpdate(cm.Terminal, cm.Enabled, cm.Microframes)
	default:
		slog.Debug("wshost: ignoring control message", "type", cm.Type)
	}
}

// deliver splits payload into frame-sized OUT transfers.
func deliver(ops uac2.Ops, payload []byte) {
	for len(payload) > 0 {
		n := min(len(payload), uac2.BytesPerFrame)
		buf := ops.GetRecvBuf(uac2.TerminalOut, n)
		if buf == nil {
			return
		}
		copy(buf, payload[:n])
		ops.DataRecv(uac2.TerminalOut, buf[:n])
		ops.BufRelease(uac2.TerminalOut, buf)
		payload = payload[n:]
	}
}
