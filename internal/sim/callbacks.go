package sim

import (
	"io"
	"log/slog"

	"github.com/MrWong99/sa818bridge/internal/stream"
	"github.com/MrWong99/sa818bridge/pkg/audio"
)

var _ stream.Callbacks = (*Callbacks)(nil)

// Callbacks lets the generic engine run without a USB host: TX samples come
// from a source and received samples go to an optional writer, such as a
// [wav.Writer].
type Callbacks struct {
	tx SampleSource
	rx io.Writer
}

// NewCallbacks returns engine callbacks backed by tx and rx. Either may be nil.
func NewCallbacks(tx SampleSource, rx io.Writer) *Callbacks {
	return &Callbacks{tx: tx, rx: rx}
}

// TxRequest implements [stream.Callbacks] by filling buf with denormalized
// samples.
func (c *Callbacks) TxRequest(buf []byte) int {
	if c.tx == nil {
		return 0
	}
	n := len(buf) &^ 1
	for i := 0; i < n; i += 2 {
		audio.PutSample(buf[i:], audio.Denormalize(c.tx.NextSampleNorm()))
	}
	return n
}

// RxData implements [stream.Callbacks].
func (c *Callbacks) RxData(buf []byte) {
	if c.rx == nil {
		return
	}
	if _, err := c.rx.Write(buf); err != nil {
		slog.Warn("sim: rx sink write failed", "err", err)
	}
}
