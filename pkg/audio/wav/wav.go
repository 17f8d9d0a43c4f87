// Package wav reads and writes the canonical RIFF/WAVE files used by the
// simulation harness: PCM, mono, 16-bit. Anything else is rejected.
package wav

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/sa818bridge/pkg/audio"
)

var (
	// ErrInvalid is returned for files that are not well-formed RIFF/WAVE.
	ErrInvalid = errors.New("wav: invalid file")

	// ErrNotSupported is returned for well-formed files with an encoding
	// other than PCM mono 16-bit.
	ErrNotSupported = errors.New("wav: unsupported encoding")
)

// MaxSamples caps how much of a file is kept in memory: 20 s at 48 kHz.
const MaxSamples = 48000 * 20

const formatPCM = 1

// Clip is a decoded mono 16-bit PCM recording.
type Clip struct {
	SampleRate uint32
	Samples    []int16
}

// Decode parses a WAV stream. At most [MaxSamples] samples are kept; longer
// files are truncated.
func Decode(r io.ReadSeeker) (*Clip, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrInvalid, err)
	}
	if !bytes.Equal(hdr[0:4], []byte("RIFF")) || !bytes.Equal(hdr[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrInvalid)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wav: rewind: %w", err)
	}

	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if d.NumChans == 0 {
		return nil, fmt.Errorf("%w: no fmt chunk", ErrInvalid)
	}
	switch {
	case d.WavAudioFormat != formatPCM:
		return nil, fmt.Errorf("%w: audio format %d", ErrNotSupported, d.WavAudioFormat)
	case d.NumChans != 1:
		return nil, fmt.Errorf("%w: %d channels", ErrNotSupported, d.NumChans)
	case d.BitDepth != 16:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrNotSupported, d.BitDepth)
	case d.SampleRate == 0:
		return nil, fmt.Errorf("%w: zero sample rate", ErrInvalid)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: no data chunk: %v", ErrInvalid, err)
	}

	clip := &Clip{SampleRate: d.SampleRate}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: int(d.SampleRate)},
		Data:   make([]int, 4096),
	}
	for len(clip.Samples) < MaxSamples {
		n, err := d.PCMBuffer(buf)
		n = min(n, MaxSamples-len(clip.Samples))
		for _, v := range buf.Data[:n] {
			clip.Samples = append(clip.Samples, int16(v))
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("wav: read samples: %w", err)
		}
		if n == 0 || err != nil {
			break
		}
	}
	return clip, nil
}

// Writer streams mono 16-bit PCM into a WAV file. The RIFF and data chunk
// sizes are patched when the writer is closed.
type Writer struct {
	enc *wav.Encoder
	buf *goaudio.IntBuffer
	n   int
}

// NewWriter starts a WAV stream at sampleRate on ws.
func NewWriter(ws io.WriteSeeker, sampleRate uint32) *Writer {
	return &Writer{
		enc: wav.NewEncoder(ws, int(sampleRate), 16, 1, formatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
			SourceBitDepth: 16,
		},
	}
}

// WriteSamples appends pcm to the stream.
func (w *Writer) WriteSamples(pcm ...int16) error {
	w.buf.Data = w.buf.Data[:0]
	for _, s := range pcm {
		w.buf.Data = append(w.buf.Data, int(s))
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav: write: %w", err)
	}
	w.n += len(pcm)
	return nil
}

// Write appends little-endian PCM bytes. A trailing odd byte is ignored.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.WriteSamples(audio.BytesToInt16s(p)...); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Samples returns how many samples have been written.
func (w *Writer) Samples() int { return w.n }

// Close finalizes the header. It does not close the underlying writer. A
// stream without samples still gets a valid empty data chunk.
func (w *Writer) Close() error {
	if w.n == 0 {
		if err := w.WriteSamples(); err != nil {
			return err
		}
	}
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wav: finalize: %w", err)
	}
	return nil
}
