package radio

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// SimState is the configuration a [Simulator] has accepted.
type SimState struct {
	Group   Group
	Volume  uint8
	Filters Filter
	RSSI    uint8
}

var (
	reSetGroup  = regexp.MustCompile(`(?i)^AT\+DMOSETGROUP=(\d+),([\d.]+),([\d.]+),(\d+),(\d+),(\d+)`)
	reSetVolume = regexp.MustCompile(`(?i)^AT\+DMOSETVOLUME=(\d+)`)
	reSetFilter = regexp.MustCompile(`(?i)^AT\+SETFILTER=(\d+),(\d+),(\d+)`)
)

// Simulator is an in-process SA818 that answers AT commands. It implements
// [io.ReadWriteCloser] so it can stand in for the serial port.
type Simulator struct {
	mu     sync.Mutex
	cond   *sync.Cond
	state  SimState
	in     []byte
	out    bytes.Buffer
	silent bool
	closed bool
}

// NewSimulator returns a module in its power-on state.
func NewSimulator() *Simulator {
	s := &Simulator{
		state: SimState{
			Group:   Group{TxFreqMHz: 145.5, RxFreqMHz: 145.5, Squelch: 4},
			Volume:  DefaultVolume,
			Filters: FilterAll,
			RSSI:    120,
		},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write consumes command bytes. Each CR or LF terminated line is answered.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.in = append(s.in, p...)
	for {
		i := bytes.IndexAny(s.in, "\r\n")
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(s.in[:i]))
		s.in = s.in[i+1:]
		if cmd == "" || s.silent {
			continue
		}
		s.out.WriteString(s.answerLocked(cmd))
		s.out.WriteString("\r\n")
		s.cond.Broadcast()
	}
	return len(p), nil
}

// Read blocks until a reply is available or the simulator is closed.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.out.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.out.Len() == 0 {
		return 0, io.EOF
	}
	return s.out.Read(p)
}

// Close unblocks readers. Further writes fail.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

// SetSilent makes the module swallow commands without answering.
func (s *Simulator) SetSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

// SetRSSI sets the value reported by RSSI?.
func (s *Simulator) SetRSSI(v uint8) {
	s.mu.Lock()
	s.state.RSSI = v
	s.mu.Unlock()
}

// State returns the accepted configuration.
func (s *Simulator) State() SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulator) answerLocked(cmd string) string {
	if m := reSetGroup.FindStringSubmatch(cmd); m != nil {
		s.state.Group = Group{
			Bandwidth: Bandwidth(atoi(m[1])),
			TxFreqMHz: atof(m[2]),
			RxFreqMHz: atof(m[3]),
			CTCSSTx:   ToneCode(atoi(m[4])),
			Squelch:   uint8(atoi(m[5])),
			CTCSSRx:   ToneCode(atoi(m[6])),
		}
		return "+DMOSETGROUP:0"
	}
	if m := reSetVolume.FindStringSubmatch(cmd); m != nil {
		v := atoi(m[1])
		if v < 1 || v > 8 {
			return "+DMOSETVOLUME:1"
		}
		s.state.Volume = uint8(v)
		return "+DMOSETVOLUME:0"
	}
	if m := reSetFilter.FindStringSubmatch(cmd); m != nil {
		var f Filter
		for i, flag := range []Filter{FilterPreEmphasis, FilterHighPass, FilterLowPass} {
			if atoi(m[i+1]) != 0 {
				f |= flag
			}
		}
		s.state.Filters = f
		return "+DMOSETFILTER:0"
	}

	switch strings.ToUpper(cmd) {
	case "RSSI?":
		return fmt.Sprintf("RSSI=%d", s.state.RSSI)
	case "AT+DMOCONNECT", "AT":
		return "+DMOCONNECT:0"
	case "AT+VERSION":
		return "SA818_V4.2"
	}
	return "ERROR"
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
