package audio

import (
	"encoding/binary"
	"math"
)

// PCMToDAC maps a signed sample onto an unsigned converter code of the given
// resolution: (pcm + 32768) << (res - 16). Resolutions below 16 bits shift
// right instead so the code still spans the full converter range.
func PCMToDAC(pcm int16, res uint8) uint32 {
	u := uint32(int32(pcm) + 32768)
	if res >= 16 {
		return u << (res - 16)
	}
	return u >> (16 - res)
}

// DACToPCM inverts [PCMToDAC]: the code is scaled to 16 bits and recentered
// to signed PCM.
func DACToPCM(code uint32, res uint8) int16 {
	u := int64(code)
	if res >= 16 {
		u >>= res - 16
	} else {
		u <<= 16 - res
	}
	return clamp16(u - 32768)
}

// ADCToPCM recenters a raw converter code of the given resolution around its
// midpoint and scales it to signed 16-bit. A 12-bit code of 2048 and a
// 16-bit code of 32768 both map to 0.
func ADCToPCM(raw uint32, res uint8) int16 {
	if res == 0 {
		return 0
	}
	mid := int64(1) << (res - 1)
	v := int64(raw) - mid
	if res < 16 {
		v <<= 16 - res
	} else {
		v >>= res - 16
	}
	return clamp16(v)
}

// DACMidpoint returns the code for a centered (silent) output at res bits.
func DACMidpoint(res uint8) uint32 {
	return DACMax(res) / 2
}

// DACMax returns the largest code a converter with res bits accepts.
func DACMax(res uint8) uint32 {
	if res >= 32 {
		return math.MaxUint32
	}
	return (uint32(1) << res) - 1
}

// Normalize converts a PCM sample to the [-1, 1) float range.
func Normalize(pcm int16) float32 {
	return float32(pcm) / 32768.0
}

// Denormalize converts a float sample to PCM with round(x * 32767). Inputs
// outside [-1, 1] are clamped first.
func Denormalize(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(math.Round(float64(x) * 32767))
}

// Sample decodes the little-endian PCM sample at the start of b.
func Sample(b []byte) int16 {
	return int16(binary.LittleEndian.Uint16(b))
}

// PutSample encodes s little-endian into the first two bytes of b.
func PutSample(b []byte, s int16) {
	binary.LittleEndian.PutUint16(b, uint16(s))
}

// Int16sToBytes converts PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		PutSample(b[i*2:], s)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to PCM samples. A trailing odd
// byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = Sample(b[i*2:])
	}
	return pcm
}

func clamp16(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
