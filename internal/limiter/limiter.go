// Package limiter implements the peak limiter shared by every renderer.
//
// The limiter is an envelope follower on the gain that would bring the
// current sample down to the threshold. It converges quickly toward a lower
// gain (attack) and slowly back toward unity (release). There is no
// lookahead, so a single-sample transient can briefly exceed the threshold.
package limiter

import "math"

const (
	DefaultThreshold = 0.9
	DefaultAttack    = 0.99
	DefaultRelease   = 0.9999
)

// Limiter processes one channel. The zero value is not usable; use New.
type Limiter struct {
	threshold float64
	attack    float64
	release   float64
	gain      float64
}

// New returns a limiter with the default threshold and envelope coefficients.
func New() *Limiter {
	return NewWith(DefaultThreshold, DefaultAttack, DefaultRelease)
}

// NewWith returns a limiter with explicit settings. Coefficients are the
// per-sample retention of the previous gain, in [0,1).
func NewWith(threshold, attack, release float64) *Limiter {
	return &Limiter{
		threshold: threshold,
		attack:    attack,
		release:   release,
		gain:      1.0,
	}
}

// Gain returns the gain applied to the most recent sample.
func (l *Limiter) Gain() float64 { return l.gain }

// Threshold returns the linear threshold.
func (l *Limiter) Threshold() float64 { return l.threshold }

// Reset restores unity gain.
func (l *Limiter) Reset() { l.gain = 1.0 }

// Process limits one sample.
func (l *Limiter) Process(x float64) float64 {
	target := 1.0
	if a := math.Abs(x); a > l.threshold {
		target = l.threshold / a
	}

	if target < l.gain {
		l.gain = target + (l.gain-target)*l.attack
	} else {
		l.gain = target + (l.gain-target)*l.release
	}

	return x * l.gain
}

// ProcessInPlace limits buf sample by sample.
func (l *Limiter) ProcessInPlace(buf []float64) {
	for i, x := range buf {
		buf[i] = l.Process(x)
	}
}

// Bank is one Limiter per channel.
type Bank []*Limiter

// NewBank returns channels default limiters.
func NewBank(channels int) Bank {
	b := make(Bank, channels)
	for i := range b {
		b[i] = New()
	}
	return b
}

// Reset restores unity gain on every channel.
func (b Bank) Reset() {
	for _, l := range b {
		l.Reset()
	}
}
