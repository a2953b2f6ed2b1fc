package audio

import (
	"encoding/binary"
	"math"
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples reads little-endian int16 samples. A trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

// DeinterleavePCM16 converts interleaved 16-bit little-endian PCM into one
// normalized float slice per channel. Incomplete trailing frames are dropped.
func DeinterleavePCM16(b []byte, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(b) / (2 * channels)
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			off := (f*channels + c) * 2
			v := int16(binary.LittleEndian.Uint16(b[off : off+2]))
			out[c][f] = float32(v) / MaxInt16
		}
	}
	return out
}

// FloatToInt16 scales x in [-1,1] to int16, clipping to range.
func FloatToInt16(x float64) int16 {
	v := x * MaxInt16
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}

// PutFloat32LE writes interleaved float32 little-endian samples into dst,
// one frame per index of the per-channel slices in planes.
func PutFloat32LE(dst []byte, planes [][]float64, frames int) {
	ch := len(planes)
	for f := 0; f < frames; f++ {
		for c := 0; c < ch; c++ {
			off := (f*ch + c) * 4
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(float32(planes[c][f])))
		}
	}
}
