package control

import "net/http"

type pathRequest struct {
	RX bool `json:"rx"`
	TX bool `json:"tx"`
}

type levelRequest struct {
	Level uint8 `json:"level"`
}

type rawResponse struct {
	Raw uint32 `json:"raw"`
	Max uint32 `json:"max"`
}

func (h *Handler) audioPath(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	var req pathRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d.EnablePath(req.RX, req.TX)
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) audioRxLevel(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	v, err := d.RxLevel()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rawResponse{Raw: v, Max: d.RxMax()})
}

func (h *Handler) audioTxLevel(w http.ResponseWriter, r *http.Request) {
	d, found := h.device(w, r)
	if !found {
		return
	}
	var req levelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := d.SetTxLevel(req.Level); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Status())
}

func (h *Handler) audioStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, r, ErrUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}
