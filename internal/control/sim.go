package control

import (
	"fmt"
	"net/http"

	"github.com/MrWong99/sa818bridge/internal/sim"
)

type sineRequest struct {
	FreqHz    *uint32  `json:"freq_hz"`
	Amplitude *float32 `json:"amplitude"`
	RateHz    *uint32  `json:"rate_hz"`
}

type wavRequest struct {
	Path string `json:"path"`
}

type sineInfo struct {
	FreqHz    uint32  `json:"freq_hz"`
	Amplitude float32 `json:"amplitude"`
	RateHz    uint32  `json:"rate_hz"`
}

type simInfoResponse struct {
	Running bool        `json:"running"`
	Source  string      `json:"source"`
	WAV     sim.WAVInfo `json:"wav"`
	Sine    sineInfo    `json:"sine"`
}

func orDefault[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// simulation returns the sim subsystem or writes 503.
func (h *Handler) simulation(w http.ResponseWriter, r *http.Request) (*Sim, bool) {
	if h.sim == nil || h.sim.Pipeline == nil {
		writeError(w, r, ErrUnavailable)
		return nil, false
	}
	return h.sim, true
}

func (h *Handler) simSine(w http.ResponseWriter, r *http.Request) {
	s, found := h.simulation(w, r)
	if !found {
		return
	}
	var req sineRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	freq := orDefault(req.FreqHz, sim.DefaultSineFreqHz)
	amp := orDefault(req.Amplitude, sim.DefaultSineAmplitude)
	rate := orDefault(req.RateHz, sim.DefaultSineRateHz)
	if err := sim.ValidateSine(freq, amp, rate); err != nil {
		writeError(w, r, err)
		return
	}
	s.Sine.Configure(freq, amp, rate)
	if err := s.Pipeline.Start(s.Sine); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.info(s))
}

func (h *Handler) simWAV(w http.ResponseWriter, r *http.Request) {
	s, found := h.simulation(w, r)
	if !found {
		return
	}
	var req wavRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Path == "" {
		writeError(w, r, fmt.Errorf("%w: path is required", errBadRequest))
		return
	}
	if err := s.WAV.Load(req.Path); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.WAV.Info())
}

func (h *Handler) simStart(w http.ResponseWriter, r *http.Request) {
	s, found := h.simulation(w, r)
	if !found {
		return
	}
	if !s.WAV.Loaded() {
		writeError(w, r, fmt.Errorf("%w: no wav loaded", errBadRequest))
		return
	}
	if err := s.Pipeline.Start(s.WAV); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.info(s))
}

func (h *Handler) simStop(w http.ResponseWriter, r *http.Request) {
	s, found := h.simulation(w, r)
	if !found {
		return
	}
	s.Pipeline.Stop()
	writeJSON(w, http.StatusOK, h.info(s))
}

func (h *Handler) simInfo(w http.ResponseWriter, r *http.Request) {
	s, found := h.simulation(w, r)
	if !found {
		return
	}
	writeJSON(w, http.StatusOK, h.info(s))
}

func (h *Handler) simADC(w http.ResponseWriter, r *http.Request) {
	if h.sim == nil || h.sim.ADC == nil {
		writeError(w, r, ErrUnavailable)
		return
	}
	v, err := h.sim.ADC.Read()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rawResponse{Raw: v, Max: 1<<h.sim.ADC.Resolution() - 1})
}

func (h *Handler) info(s *Sim) simInfoResponse {
	out := simInfoResponse{
		Running: s.Pipeline.Running(),
		Source:  "none",
		WAV:     s.WAV.Info(),
		Sine: sineInfo{
			FreqHz:    s.Sine.FreqHz(),
			Amplitude: s.Sine.Amplitude(),
			RateHz:    s.Sine.SampleRateHz(),
		},
	}
	switch src := s.Pipeline.Source(); {
	case src == nil:
	case src == sim.SampleSource(s.WAV):
		out.Source = "wav"
	case src == sim.SampleSource(s.Sine):
		out.Source = "sine"
	}
	return out
}
