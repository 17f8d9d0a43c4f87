// Package control exposes the radio, audio and simulation controls over HTTP.
//
// Every route takes and returns JSON. Status codes:
//
//   - 400 for malformed bodies and out-of-range parameters.
//   - 502 when the radio or its AT link fails.
//   - 503 when the addressed subsystem is not configured.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/internal/radio"
	"github.com/MrWong99/sa818bridge/internal/sim"
	"github.com/MrWong99/sa818bridge/internal/uac2"
	"github.com/MrWong99/sa818bridge/pkg/audio/wav"
)

// ErrUnavailable is reported when a route's subsystem is not configured.
var ErrUnavailable = errors.New("control: subsystem not configured")

// errBadRequest marks a request the client must fix.
var errBadRequest = errors.New("control: bad request")

// StatsSource reports bridge counters.
type StatsSource interface {
	Stats() uac2.Stats
}

// Sim groups the simulation pieces driven by the /sim routes.
type Sim struct {
	Pipeline *sim.Pipeline
	Sine     *sim.SineSource
	WAV      *sim.WAVSource

	// ADC is read by GET /sim/adc.
	ADC hw.ADC
}

// Handler serves the control routes. Nil subsystems answer 503.
type Handler struct {
	radio *radio.Device
	stats StatsSource
	sim   *Sim
}

// Option configures a [Handler].
type Option func(*Handler)

// WithRadio enables the /radio routes and the path and level routes under /audio.
func WithRadio(d *radio.Device) Option {
	return func(h *Handler) { h.radio = d }
}

// WithStats enables GET /audio/stats.
func WithStats(s StatsSource) Option {
	return func(h *Handler) { h.stats = s }
}

// WithSim enables the /sim routes.
func WithSim(s *Sim) Option {
	return func(h *Handler) { h.sim = s }
}

// New returns a handler with the given subsystems.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds all control routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /radio/status", h.radioStatus)
	mux.HandleFunc("POST /radio/power", h.radioPower)
	mux.HandleFunc("POST /radio/ptt", h.radioPTT)
	mux.HandleFunc("POST /radio/powerlevel", h.radioPowerLevel)
	mux.HandleFunc("POST /radio/at/connect", h.atConnect)
	mux.HandleFunc("POST /radio/at/volume", h.atVolume)
	mux.HandleFunc("POST /radio/at/group", h.atGroup)
	mux.HandleFunc("POST /radio/at/filters", h.atFilters)
	mux.HandleFunc("GET /radio/at/rssi", h.atRSSI)
	mux.HandleFunc("GET /radio/at/version", h.atVersion)
	mux.HandleFunc("POST /radio/tone", h.toneStart)
	mux.HandleFunc("DELETE /radio/tone", h.toneStop)

	mux.HandleFunc("POST /audio/path", h.audioPath)
	mux.HandleFunc("GET /audio/rxlevel", h.audioRxLevel)
	mux.HandleFunc("POST /audio/txlevel", h.audioTxLevel)
	mux.HandleFunc("GET /audio/stats", h.audioStats)

	mux.HandleFunc("POST /sim/sine", h.simSine)
	mux.HandleFunc("POST /sim/wav", h.simWAV)
	mux.HandleFunc("POST /sim/start", h.simStart)
	mux.HandleFunc("POST /sim/stop", h.simStop)
	mux.HandleFunc("GET /sim/info", h.simInfo)
	mux.HandleFunc("GET /sim/adc", h.simADC)
}

type okResponse struct {
	Status string `json:"status"`
}

var okBody = okResponse{Status: "ok"}

type errorResponse struct {
	Error string `json:"error"`
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, radio.ErrInvalidParam),
		errors.Is(err, sim.ErrInvalidSine),
		errors.Is(err, sim.ErrNoSampleRate),
		errors.Is(err, wav.ErrInvalid),
		errors.Is(err, wav.ErrNotSupported),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, radio.ErrNoATLink),
		errors.Is(err, sim.ErrSinkNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.WarnContext(r.Context(), "control: request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control: encode response", "err", err)
	}
}
