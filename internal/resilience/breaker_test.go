package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(cfg)
	b.now = clk.Now
	return b, clk
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{Name: "serial"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", b.resetTimeout)
	}
	if b.probes != 1 {
		t.Errorf("probes = %d, want 1", b.probes)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{Name: "serial", MaxFailures: 3, ResetTimeout: time.Second})

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	if got := b.Failures(); got != 0 {
		t.Fatalf("Failures() after success = %d, want 0", got)
	}
	for range 3 {
		if err := b.Execute(fail); !errors.Is(err, errTest) {
			t.Fatalf("Execute = %v, want errTest", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute while open = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while the breaker was open")
	}
}

func TestBreaker_HalfOpenProbes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		budget int
		probes []func() error
		want   State
	}{
		{"single success closes", 1, []func() error{succeed}, StateClosed},
		{"failure re-opens", 1, []func() error{fail}, StateOpen},
		{"second probe needed", 2, []func() error{succeed}, StateHalfOpen},
		{"two successes close", 2, []func() error{succeed, succeed}, StateClosed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, clk := newTestBreaker(Config{Name: "host", MaxFailures: 1, ResetTimeout: time.Second, HalfOpenProbes: tc.budget})
			_ = b.Execute(fail)
			if b.State() != StateOpen {
				t.Fatalf("state = %v, want open", b.State())
			}
			clk.Advance(time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state after timeout = %v, want half-open", b.State())
			}
			for _, p := range tc.probes {
				_ = b.Execute(p)
			}
			if got := b.State(); got != tc.want {
				t.Errorf("state = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBreaker_HalfOpenProbeBudget(t *testing.T) {
	t.Parallel()
	b, clk := newTestBreaker(Config{Name: "host", MaxFailures: 1, ResetTimeout: time.Second})
	_ = b.Execute(fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			<-release
			return nil
		})
	}()
	// Wait until the probe holds the only slot.
	for {
		b.mu.Lock()
		issued := b.probesIssued
		b.mu.Unlock()
		if issued == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := b.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("probe = %v, want nil", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_IsFailureFiltersErrors(t *testing.T) {
	t.Parallel()
	errParam := errors.New("bad parameter")
	b, _ := newTestBreaker(Config{
		Name:        "serial",
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return err != nil && !errors.Is(err, errParam) },
	})
	for range 3 {
		if err := b.Execute(func() error { return errParam }); !errors.Is(err, errParam) {
			t.Fatalf("Execute = %v, want errParam", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		seen []string
	)
	b, clk := newTestBreaker(Config{
		Name:         "serial",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = b.Execute(fail)
	clk.Advance(time.Second)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)
	b.Reset()

	want := []string{
		"serial:closed->open",
		"serial:open->half-open",
		"serial:half-open->closed",
		"serial:closed->open",
		"serial:open->closed",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}
