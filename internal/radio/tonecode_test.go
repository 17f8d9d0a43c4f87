package radio_test

import (
	"encoding/json"
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sa818bridge/internal/radio"
)

func TestParseTone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    radio.ToneCode
		wantErr bool
	}{
		{"none", radio.ToneNone, false},
		{"OFF", radio.ToneNone, false},
		{"67.0", 1, false},
		{"71.9", 2, false},
		{"100", 12, false},
		{"250.3", 38, false},
		{"39", 39, false},
		{"121", 121, false},
		{"122", 0, true},
		{"12.5", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := radio.ParseTone(tt.in)
		if tt.wantErr {
			if !errors.Is(err, radio.ErrInvalidParam) {
				t.Errorf("ParseTone(%q) err = %v, want ErrInvalidParam", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseTone(%q) = %d, %v, want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestToneCode_CTCSSHz(t *testing.T) {
	t.Parallel()
	if got := radio.ToneCode(1).CTCSSHz(); got != 67.0 {
		t.Errorf("code 1 = %v Hz, want 67.0", got)
	}
	if got := radio.ToneCode(39).CTCSSHz(); got != 0 {
		t.Errorf("dcs code = %v Hz, want 0", got)
	}
}

func TestGroup_UnmarshalToneForms(t *testing.T) {
	t.Parallel()
	var g radio.Group
	body := `{"tx_freq":145.5,"rx_freq":145.5,"ctcss_tx":"88.5","ctcss_rx":67,"squelch":1}`
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if g.CTCSSTx != 8 {
		t.Errorf("ctcss_tx = %d, want 8", g.CTCSSTx)
	}
	if g.CTCSSRx != 67 {
		t.Errorf("ctcss_rx = %d, want numeric code 67", g.CTCSSRx)
	}
}

func TestGroup_UnmarshalToneYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		doc  string
		want radio.ToneCode
	}{
		{"ctcss_tx: \"88.5\"", 8},
		{"ctcss_tx: 88.5", 8},
		{"ctcss_tx: 67", 67},
		{"ctcss_tx: none", radio.ToneNone},
	}
	for _, tt := range tests {
		var g radio.Group
		if err := yaml.Unmarshal([]byte(tt.doc), &g); err != nil {
			t.Errorf("Unmarshal(%q) error: %v", tt.doc, err)
			continue
		}
		if g.CTCSSTx != tt.want {
			t.Errorf("Unmarshal(%q) ctcss_tx = %d, want %d", tt.doc, g.CTCSSTx, tt.want)
		}
	}

	var g radio.Group
	if err := yaml.Unmarshal([]byte("ctcss_tx: 300"), &g); err == nil {
		t.Error("Unmarshal(300) error = nil, want error")
	}
}
