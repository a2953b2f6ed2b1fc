package params

import (
	"math"

	"github.com/samber/lo"
)

// Parameter ranges. Values outside these bounds never reach a backend.
const (
	MinBlend        = 0.0
	MaxBlend        = 1.0
	MinMasterGainDB = -3.0
	MaxMasterGainDB = 3.0
	MinStemGainDB   = -12.0
	MaxStemGainDB   = 12.0
)

// Set is the complete listener-controlled parameter state.
// It is always handled by value: a Set handed to a backend is a snapshot
// that the UI side can no longer mutate.
type Set struct {
	BlendRatio             float64 `json:"blend_ratio"`
	VocalBlendRatio        float64 `json:"vocal_blend_ratio"`
	InstrumentalBlendRatio float64 `json:"instrumental_blend_ratio"`
	MasterGainDB           float64 `json:"master_gain_db"`
	VocalGainDB            float64 `json:"vocal_gain_db"`
	InstrumentalGainDB     float64 `json:"instrumental_gain_db"`
	VocalMuted             bool    `json:"vocal_muted"`
	InstrumentalMuted      bool    `json:"instrumental_muted"`
	LimiterEnabled         bool    `json:"limiter_enabled"`
}

// Default returns the parameter state a fresh session starts with:
// an even blend, unity gains, limiter on.
func Default() Set {
	return Set{
		BlendRatio:             0.5,
		VocalBlendRatio:        0.5,
		InstrumentalBlendRatio: 0.5,
		LimiterEnabled:         true,
	}
}

// Clamp returns a copy of s with every field forced into its range.
// NaN falls back to the neutral value of the field.
func (s Set) Clamp() Set {
	s.BlendRatio = clampField(s.BlendRatio, MinBlend, MaxBlend, 0.5)
	s.VocalBlendRatio = clampField(s.VocalBlendRatio, MinBlend, MaxBlend, 0.5)
	s.InstrumentalBlendRatio = clampField(s.InstrumentalBlendRatio, MinBlend, MaxBlend, 0.5)
	s.MasterGainDB = clampField(s.MasterGainDB, MinMasterGainDB, MaxMasterGainDB, 0)
	s.VocalGainDB = clampField(s.VocalGainDB, MinStemGainDB, MaxStemGainDB, 0)
	s.InstrumentalGainDB = clampField(s.InstrumentalGainDB, MinStemGainDB, MaxStemGainDB, 0)
	return s
}

func clampField(v, lower, upper, neutral float64) float64 {
	if math.IsNaN(v) {
		return neutral
	}
	return lo.Clamp(v, lower, upper)
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	BlendRatio             *float64 `json:"blend_ratio,omitempty"`
	VocalBlendRatio        *float64 `json:"vocal_blend_ratio,omitempty"`
	InstrumentalBlendRatio *float64 `json:"instrumental_blend_ratio,omitempty"`
	MasterGainDB           *float64 `json:"master_gain_db,omitempty"`
	VocalGainDB            *float64 `json:"vocal_gain_db,omitempty"`
	InstrumentalGainDB     *float64 `json:"instrumental_gain_db,omitempty"`
	VocalMuted             *bool    `json:"vocal_muted,omitempty"`
	InstrumentalMuted      *bool    `json:"instrumental_muted,omitempty"`
	LimiterEnabled         *bool    `json:"limiter_enabled,omitempty"`
}

// Apply copies every non-nil field of p into s. BlendRatio is the main
// knob: it also moves both stem blend ratios unless p sets them itself.
func (p Patch) Apply(s *Set) {
	if p.BlendRatio != nil {
		s.BlendRatio = *p.BlendRatio
		s.VocalBlendRatio = *p.BlendRatio
		s.InstrumentalBlendRatio = *p.BlendRatio
	}
	if p.VocalBlendRatio != nil {
		s.VocalBlendRatio = *p.VocalBlendRatio
	}
	if p.InstrumentalBlendRatio != nil {
		s.InstrumentalBlendRatio = *p.InstrumentalBlendRatio
	}
	if p.MasterGainDB != nil {
		s.MasterGainDB = *p.MasterGainDB
	}
	if p.VocalGainDB != nil {
		s.VocalGainDB = *p.VocalGainDB
	}
	if p.InstrumentalGainDB != nil {
		s.InstrumentalGainDB = *p.InstrumentalGainDB
	}
	if p.VocalMuted != nil {
		s.VocalMuted = *p.VocalMuted
	}
	if p.InstrumentalMuted != nil {
		s.InstrumentalMuted = *p.InstrumentalMuted
	}
	if p.LimiterEnabled != nil {
		s.LimiterEnabled = *p.LimiterEnabled
	}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}
