package hw_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/sa818bridge/internal/hw"
	"github.com/MrWong99/sa818bridge/pkg/audio/wav"
)

func TestEmulatedADC(t *testing.T) {
	t.Parallel()
	adc := hw.NewEmulatedADC(0)
	if got := adc.Resolution(); got != 12 {
		t.Fatalf("Resolution() = %d, want 12", got)
	}
	adc.SetRaw(2047)
	if v, err := adc.Read(); err != nil || v != 2047 {
		t.Errorf("Read() = %d, %v; want 2047, nil", v, err)
	}
	adc.SetRaw(10000)
	if v := adc.Raw(); v != 4095 {
		t.Errorf("Raw() after oversize SetRaw = %d, want 4095", v)
	}
}

func TestMemoryDAC(t *testing.T) {
	t.Parallel()
	dac := hw.NewMemoryDAC(16)
	if got := dac.Last(); got != 32767 {
		t.Fatalf("initial Last() = %d, want 32767", got)
	}
	_ = dac.Write(1234)
	_ = dac.Write(1 << 20)
	if got := dac.Last(); got != 65535 {
		t.Errorf("Last() = %d, want 65535", got)
	}
	if got := dac.Writes(); got != 2 {
		t.Errorf("Writes() = %d, want 2", got)
	}
}

func TestWAVDAC_RecordsRecenteredPCM(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tx.wav")
	dac, err := hw.OpenWAVDAC(path, 8000, 16)
	if err != nil {
		t.Fatalf("OpenWAVDAC: %v", err)
	}
	codes := []uint32{32768, 33768, 0, 65535}
	for _, c := range codes {
		if err := dac.Write(c); err != nil {
			t.Fatalf("Write(%d): %v", c, err)
		}
	}
	if got := dac.Samples(); got != len(codes) {
		t.Errorf("Samples() = %d, want %d", got, len(codes))
	}
	if err := dac.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := dac.Write(1); !errors.Is(err, hw.ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	clip, err := wav.Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", clip.SampleRate)
	}
	want := []int16{0, 1000, -32768, 32767}
	if len(clip.Samples) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(clip.Samples), len(want))
	}
	for i := range want {
		if clip.Samples[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, clip.Samples[i], want[i])
		}
	}
}

func TestWAVDAC_HighResolutionScalesDown(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tx18.wav")
	dac, err := hw.OpenWAVDAC(path, 8000, 18)
	if err != nil {
		t.Fatalf("OpenWAVDAC: %v", err)
	}
	_ = dac.Write(33768 << 2)
	if err := dac.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	clip, err := wav.Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(clip.Samples) != 1 || clip.Samples[0] != 1000 {
		t.Errorf("samples = %v, want [1000]", clip.Samples)
	}
}
