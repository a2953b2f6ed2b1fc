package audio

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Blend mixes one original and one processed sample at ratio b
// (0 = all original, 1 = all processed). It is the per-sample form of
// BlendBlock and agrees with it bit for bit.
func Blend(original, processed, b float64) float64 {
	// The conversions round each product, so the sum cannot be fused into
	// an FMA and drift from BlendBlock's separate scale and add passes.
	return float64(original*(1-b)) + float64(processed*b)
}

// BlendBlock applies Blend to every sample: dst = original*(1-b) +
// processed*b. tmp must be at least len(dst) long. All slices share the
// same length.
func BlendBlock(dst, tmp, original, processed []float64, b float64) {
	n := len(dst)
	vecmath.ScaleBlock(dst, original[:n], 1-b)
	vecmath.ScaleBlock(tmp[:n], processed[:n], b)
	vecmath.AddBlockInPlace(dst, tmp[:n])
}

// DBToLinear converts decibels to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainBlock scales dst in place by db decibels. A gain of exactly 0 dB
// leaves dst untouched. tmp must be at least len(dst) long.
func GainBlock(dst, tmp []float64, db float64) {
	if db == 0 {
		return
	}
	n := len(dst)
	copy(tmp[:n], dst)
	vecmath.ScaleBlock(dst, tmp[:n], DBToLinear(db))
}

// Peak returns the largest absolute sample in buf.
func Peak(buf []float64) float64 {
	var p float64
	for _, x := range buf {
		if a := math.Abs(x); a > p {
			p = a
		}
	}
	return p
}
