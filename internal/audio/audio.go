package audio

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultSampleRate = 44100
	Channels          = 2
	BitDepth          = 16
	MaxInt16          = 32768.0
)

// Mode selects how many sources a session blends.
type Mode int

const (
	Standard Mode = iota // original + processed
	Stem                 // vocal and instrumental, each original + processed
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case Stem:
		return "stem"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Sources returns how many buffers a session in mode m loads.
func (m Mode) Sources() int {
	if m == Stem {
		return 4
	}
	return 2
}

// ParseMode accepts "standard" or "stem" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "stem", "stems":
		return Stem, nil
	}
	return Standard, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Session identifies one playback context.
type Session struct {
	ID         string
	Mode       Mode
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// FramesToDuration converts a frame count at rate into wall time.
func FramesToDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}

// Normalize maps an absolute position onto [0,1] of total.
func Normalize(pos, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return ClampUnit(float64(pos) / float64(total))
}

// Denormalize maps p in [0,1] back onto total.
func Denormalize(p float64, total time.Duration) time.Duration {
	return time.Duration(ClampUnit(p) * float64(total))
}

// ClampUnit clamps p to [0,1]; NaN becomes 0.
func ClampUnit(p float64) float64 {
	if !(p > 0) {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
