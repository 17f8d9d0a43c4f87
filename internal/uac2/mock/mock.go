// Package mock provides a recording [uac2.Transport] for unit tests.
//
// The mock keeps the installed [uac2.Ops] so tests can play the host side:
//
//	tr := &mock.Transport{}
//	b := uac2.New(tr, uac2.NewDirectPump(adc, dac))
//	_ = b.Init()
//	tr.Enable(uac2.TerminalOut)
//	tr.Deliver(uac2.TerminalOut, pcm)
package mock

import (
	"sync"

	"github.com/MrWong99/sa818bridge/internal/uac2"
)

var _ uac2.Transport = (*Transport)(nil)

// Transport is a mock [uac2.Transport]. Safe for concurrent use.
type Transport struct {
	mu sync.Mutex

	// SendError, when non-nil, is returned by Send. Frames are still counted
	// but not recorded.
	SendError error

	// Sent holds a copy of every successfully sent buffer, in order.
	Sent [][]byte

	// SentTerminals holds the terminal of each Send call.
	SentTerminals []uint8

	// CallCountSend records how many times Send was called.
	CallCountSend int

	// CallCountSetOps records how many times SetOps was called.
	CallCountSetOps int

	ops uac2.Ops
}

// SetOps implements [uac2.Transport].
func (t *Transport) SetOps(ops uac2.Ops) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountSetOps++
	t.ops = ops
}

// Send implements [uac2.Transport].
func (t *Transport) Send(terminal uint8, buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountSend++
	t.SentTerminals = append(t.SentTerminals, terminal)
	if t.SendError != nil {
		return t.SendError
	}
	t.Sent = append(t.Sent, append([]byte(nil), buf...))
	return nil
}

// Ops returns the installed callbacks, or nil before SetOps.
func (t *Transport) Ops() uac2.Ops {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ops
}

// Frames returns a copy of Sent.
func (t *Transport) Frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.Sent...)
}

// SetSendError replaces SendError under the lock.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	t.SendError = err
	t.mu.Unlock()
}

// Enable reports terminal as enabled to the installed ops.
func (t *Transport) Enable(terminal uint8) { t.Ops().TerminalUpdate(terminal, true, false) }

// Disable reports terminal as disabled to the installed ops.
func (t *Transport) Disable(terminal uint8) { t.Ops().TerminalUpdate(terminal, false, false) }

// Deliver performs one OUT transfer of data on terminal and reports whether
// the device accepted it.
func (t *Transport) Deliver(terminal uint8, data []byte) bool {
	ops := t.Ops()
	buf := ops.GetRecvBuf(terminal, len(data))
	if buf == nil {
		return false
	}
	n := copy(buf, data)
	ops.DataRecv(terminal, buf[:n])
	ops.BufRelease(terminal, buf)
	return true
}
