package ring_test

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/sa818bridge/pkg/audio/ring"
)

func TestNew_RejectsNonPowerOfTwo(t *testing.T) {
	t.Parallel()
	for _, size := range []int{0, -1, 3, 500, 513} {
		if _, err := ring.New(size); err == nil {
			t.Errorf("New(%d) succeeded, want error", size)
		}
	}
	r, err := ring.New(512)
	if err != nil {
		t.Fatalf("New(512): %v", err)
	}
	if r.Cap() != 512 || r.Len() != 0 || r.Free() != 512 {
		t.Errorf("fresh ring Cap/Len/Free = %d/%d/%d, want 512/0/512", r.Cap(), r.Len(), r.Free())
	}
}

func TestRing_RoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	r := ring.MustNew(512)

	// Offset the cursors so writes wrap at every step.
	r.Put(make([]byte, 300))
	r.Get(make([]byte, 300))

	for n := 0; n <= r.Cap(); n += 7 {
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(rng.UintN(256))
		}
		if got := r.Put(in); got != n {
			t.Fatalf("Put(%d bytes) = %d", n, got)
		}
		out := make([]byte, n)
		if got := r.Get(out); got != n {
			t.Fatalf("Get(%d bytes) = %d", n, got)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("round trip of %d bytes corrupted data", n)
		}
		if r.Len() != 0 {
			t.Fatalf("Len after round trip = %d, want 0", r.Len())
		}
	}
}

func TestRing_OverflowDropsNewest(t *testing.T) {
	t.Parallel()
	r := ring.MustNew(512)
	in := make([]byte, 600)
	for i := range in {
		in[i] = byte(i)
	}
	n := r.Put(in)
	if dropped := len(in) - n; dropped != 88 {
		t.Fatalf("dropped = %d, want 88", dropped)
	}
	if r.Len() != 512 {
		t.Fatalf("Len = %d, want 512", r.Len())
	}
	out := make([]byte, 1024)
	if got := r.Get(out); got != 512 {
		t.Fatalf("Get = %d, want 512", got)
	}
	if !bytes.Equal(out[:512], in[:512]) {
		t.Error("ring did not retain the oldest 512 bytes")
	}
}

func TestRing_GetNeverExceedsAvailable(t *testing.T) {
	t.Parallel()
	r := ring.MustNew(16)
	r.Put([]byte{1, 2, 3})
	out := make([]byte, 8)
	if got := r.Get(out); got != 3 {
		t.Fatalf("Get = %d, want 3", got)
	}
	if got := r.Get(out); got != 0 {
		t.Fatalf("Get on empty ring = %d, want 0", got)
	}
}

func TestRing_Reset(t *testing.T) {
	t.Parallel()
	r := ring.MustNew(16)
	r.Put([]byte{1, 2, 3, 4})
	r.Reset()
	if r.Len() != 0 || r.Free() != 16 {
		t.Errorf("after Reset Len/Free = %d/%d, want 0/16", r.Len(), r.Free())
	}
}
