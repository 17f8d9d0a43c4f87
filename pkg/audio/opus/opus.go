// Package opus frames the radio's 8 kHz mono PCM into Opus packets for the
// network host link, where raw PCM would cost 128 kbit/s per direction.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/sa818bridge/pkg/audio"
)

// The codec runs at the radio format with 20 ms frames.
const (
	SampleRate   = 8000
	Channels     = 1
	FrameMs      = 20
	FrameSamples = SampleRate * FrameMs / 1000 // 160
	FrameBytes   = FrameSamples * 2

	maxPacketBytes = 1276
)

// Encoder accumulates PCM bytes and emits one Opus packet per complete
// 20 ms frame. Not safe for concurrent use.
type Encoder struct {
	enc     *gopus.Encoder
	pending []byte
}

// NewEncoder creates an encoder tuned for voice.
func NewEncoder() (*Encoder, error) {
	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{enc: enc, pending: make([]byte, 0, FrameBytes*2)}, nil
}

// Push appends little-endian PCM and returns the packets for every frame
// that became complete. Leftover bytes are kept for the next call.
func (e *Encoder) Push(pcm []byte) ([][]byte, error) {
	e.pending = append(e.pending, pcm...)
	var packets [][]byte
	for len(e.pending) >= FrameBytes {
		frame := audio.BytesToInt16s(e.pending[:FrameBytes])
		pkt, err := e.enc.Encode(frame, FrameSamples, maxPacketBytes)
		if err != nil {
			return packets, fmt.Errorf("opus: encode: %w", err)
		}
		packets = append(packets, pkt)
		e.pending = append(e.pending[:0], e.pending[FrameBytes:]...)
	}
	return packets, nil
}

// Buffered reports how many PCM bytes are waiting for a full frame.
func (e *Encoder) Buffered() int { return len(e.pending) }

// Decoder turns Opus packets back into little-endian PCM. Each stream needs
// its own decoder to keep codec state across packets.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder creates a decoder for the radio format.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes one packet into PCM bytes.
func (d *Decoder) Decode(pkt []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(pkt, FrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
