package control

import (
	"net/http"
	"time"

	"github.com/MrWong99/sa818bridge/internal/radio"
)

type switchRequest struct {
	On bool `json:"on"`
}

type powerLevelRequest struct {
	High bool `json:"high"`
}

type volumeRequest struct {
	Level uint8 `json:"level"`
}

type filtersRequest struct {
	PreEmphasis bool `json:"pre_emphasis"`
	HighPass    bool `json:"high_pass"`
	LowPass     bool `json:"low_pass"`
}

func (f filtersRequest) flags() radio.Filter {
	var out radio.Filter
	if f.PreEmphasis {
		out |= radio.FilterPreEmphasis
	}
	if f.HighPass {
		out |= radio.FilterHighPass
	}
	if f.LowPass {
		out |= radio.FilterLowPass
	}
	return out
}

type toneRequest struct {
	FreqHz     uint16 `json:"freq_hz"`
	DurationMs uint32 `json:"duration_ms"`
	Amplitude  uint8  `json:"amplitude"`
}

type rssiResponse struct {
	RSSI uint8 `json:"rssi"`
}

type versionResponse struct {
	Version string `json:"version"`
}

// device returns the radio or writes 503.
func (h *Handler) device(w http.ResponseWriter, r *http.Request) (*radio.Device, bool) {
	if h.radio == nil {
		writeError(w, r, ErrUnavailable)
		return nil, false
	}
	return h.radio, true
}

// at returns the AT client or writes 503.
func (h *Handler) at(w http.ResponseWriter, r *http.Request) (*radio.ATClient, bool) {
	d, found := h.device(w, r)
	if !found {
		return nil, false
	}
	c := d.AT()
	if c == nil {
		writeError(w, r, radio.ErrNoATLink)
		return nil, false
	}
	return c, true
}

func (h *Handler) radioStatus(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) radioPower(w http.ResponseWriter, r *http.Request) {
	h.setSwitch(w, r, func(d *radio.Device, on bool) error { return d.SetPower(on) })
}

func (h *Handler) radioPTT(w http.ResponseWriter, r *http.Request) {
	h.setSwitch(w, r, func(d *radio.Device, on bool) error { return d.SetPTT(on) })
}

func (h *Handler) setSwitch(w http.ResponseWriter, r *http.Request, set func(*radio.Device, bool) error) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	var req switchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := set(d, req.On); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) radioPowerLevel(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	var req powerLevelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := d.SetPowerLevel(req.High); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) atConnect(w http.ResponseWriter, r *http.Request) {
	c, found := h.at(w, r)
	if !found {
		return
	}
	if err := c.Connect(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

func (h *Handler) atVolume(w http.ResponseWriter, r *http.Request) {
	if _, found := h.at(w, r); !found {
		return
	}
	var req volumeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.radio.SetVolume(r.Context(), req.Level); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.radio.Status())
}

func (h *Handler) atGroup(w http.ResponseWriter, r *http.Request) {
	c, found := h.at(w, r)
	if !found {
		return
	}
	var g radio.Group
	if err := decode(r, &g); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.SetGroup(r.Context(), g); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

func (h *Handler) atFilters(w http.ResponseWriter, r *http.Request) {
	c, found := h.at(w, r)
	if !found {
		return
	}
	var req filtersRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.SetFilters(r.Context(), req.flags()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody)
}

func (h *Handler) atRSSI(w http.ResponseWriter, r *http.Request) {
	c, found := h.at(w, r)
	if !found {
		return
	}
	v, err := c.RSSI(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rssiResponse{RSSI: v})
}

func (h *Handler) atVersion(w http.ResponseWriter, r *http.Request) {
	c, found := h.at(w, r)
	if !found {
		return
	}
	v, err := c.Version(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: v})
}

func (h *Handler) toneStart(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	var req toneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	dur := time.Duration(req.DurationMs) * time.Millisecond
	if err := d.StartTone(req.FreqHz, dur, req.Amplitude); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) toneStop(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	d.StopTone()
	writeJSON(w, http.StatusOK, d.Status())
}
