package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/sa818bridge/pkg/audio"
)

func TestPCMToDAC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pcm  int16
		res  uint8
		want uint32
	}{
		{"16-bit min", math.MinInt16, 16, 0},
		{"16-bit zero", 0, 16, 32768},
		{"16-bit +1000", 1000, 16, 33768},
		{"16-bit max", math.MaxInt16, 16, 65535},
		{"12-bit zero", 0, 12, 2048},
		{"12-bit max", math.MaxInt16, 12, 4095},
		{"18-bit +1000", 1000, 18, 33768 << 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.PCMToDAC(tc.pcm, tc.res); got != tc.want {
				t.Errorf("PCMToDAC(%d, %d) = %d, want %d", tc.pcm, tc.res, got, tc.want)
			}
		})
	}
}

func TestDACToPCM_InvertsPCMToDAC(t *testing.T) {
	t.Parallel()
	for _, res := range []uint8{16, 18, 24} {
		for _, pcm := range []int16{math.MinInt16, -1000, 0, 1, 1000, math.MaxInt16} {
			if got := audio.DACToPCM(audio.PCMToDAC(pcm, res), res); got != pcm {
				t.Errorf("DACToPCM(PCMToDAC(%d, %d)) = %d, want %d", pcm, res, got, pcm)
			}
		}
	}
	if got := audio.DACToPCM(2048, 12); got != 0 {
		t.Errorf("DACToPCM(2048, 12) = %d, want 0", got)
	}
}

func TestADCToPCM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  uint32
		res  uint8
		want int16
	}{
		{"12-bit midpoint", 2048, 12, 0},
		{"12-bit zero", 0, 12, math.MinInt16},
		{"12-bit max", 4095, 12, 2047 << 4},
		{"16-bit midpoint", 32768, 16, 0},
		{"16-bit max", 65535, 16, math.MaxInt16},
		{"16-bit zero", 0, 16, math.MinInt16},
		{"24-bit midpoint", 1 << 23, 24, 0},
		{"zero resolution", 1234, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.ADCToPCM(tc.raw, tc.res); got != tc.want {
				t.Errorf("ADCToPCM(%d, %d) = %d, want %d", tc.raw, tc.res, got, tc.want)
			}
		})
	}
}

func TestDACMidpoint(t *testing.T) {
	t.Parallel()
	if got := audio.DACMidpoint(16); got != 32767 {
		t.Errorf("DACMidpoint(16) = %d, want 32767", got)
	}
	if got := audio.DACMidpoint(12); got != 2047 {
		t.Errorf("DACMidpoint(12) = %d, want 2047", got)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	t.Parallel()
	// round(x*32767)/32768 can be off by up to (|x|+0.5)/32768.
	const tol = 1.5 / 32768.0
	for i := -1000; i <= 1000; i++ {
		x := float32(i) / 1000
		got := audio.Normalize(audio.Denormalize(x))
		if d := math.Abs(float64(got - x)); d > tol+1e-7 {
			t.Fatalf("Normalize(Denormalize(%v)) = %v, off by %v", x, got, d)
		}
	}
}

func TestDenormalizeRoundTrip(t *testing.T) {
	t.Parallel()
	for pcm := math.MinInt16; pcm <= math.MaxInt16; pcm++ {
		got := int(audio.Denormalize(audio.Normalize(int16(pcm))))
		diff := got - pcm
		if diff < 0 {
			diff = -diff
		}
		if pcm >= -16384 && pcm <= 16384 && diff != 0 {
			t.Fatalf("Denormalize(Normalize(%d)) = %d, want exact", pcm, got)
		}
		if diff > 1 {
			t.Fatalf("Denormalize(Normalize(%d)) = %d, off by %d", pcm, got, diff)
		}
	}
}

func TestDenormalize_Clamps(t *testing.T) {
	t.Parallel()
	if got := audio.Denormalize(2); got != math.MaxInt16 {
		t.Errorf("Denormalize(2) = %d, want %d", got, math.MaxInt16)
	}
	if got := audio.Denormalize(-2); got != -math.MaxInt16 {
		t.Errorf("Denormalize(-2) = %d, want %d", got, -math.MaxInt16)
	}
}

func TestSampleBytes(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1000, -1000, math.MaxInt16, math.MinInt16}
	b := audio.Int16sToBytes(in)
	if b[2] != 0xE8 || b[3] != 0x03 {
		t.Fatalf("1000 encoded as %#x %#x, want 0xe8 0x03", b[2], b[3])
	}
	out := audio.BytesToInt16s(append(b, 0x7F))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	if err := audio.Default.Validate(); err != nil {
		t.Fatalf("Default.Validate() = %v", err)
	}
	if got := audio.Default.BytesPerSample(); got != 2 {
		t.Errorf("BytesPerSample = %d, want 2", got)
	}
	if got := audio.Default.PeriodMicros(); got != 125 {
		t.Errorf("PeriodMicros = %d, want 125", got)
	}
	stereo := audio.Format{SampleRate: 48000, BitDepth: 16, Channels: 2}
	if got := stereo.BytesPerSample(); got != 4 {
		t.Errorf("stereo BytesPerSample = %d, want 4", got)
	}

	bad := []audio.Format{
		{SampleRate: 0, BitDepth: 16, Channels: 1},
		{SampleRate: 8000, BitDepth: 24, Channels: 1},
		{SampleRate: 8000, BitDepth: 16, Channels: 3},
	}
	for _, f := range bad {
		if err := f.Validate(); !errors.Is(err, audio.ErrInvalidFormat) {
			t.Errorf("%v.Validate() = %v, want ErrInvalidFormat", f, err)
		}
	}
}
