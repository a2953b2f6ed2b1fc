package params

// Payload is a backend-shaped view of a Set. Transport backends marshal it
// onto the wire as-is; local backends resolve it back into a full Set.
type Payload interface {
	Resolve() Set
}

// Flat is the payload for standard (two-source) sessions.
type Flat struct {
	BlendRatio     float64 `json:"blend_ratio"`
	MasterGainDB   float64 `json:"master_gain_db"`
	LimiterEnabled bool    `json:"limiter_enabled"`
}

// StemControls are the per-stem controls of a stem payload.
type StemControls struct {
	BlendRatio float64 `json:"blend_ratio"`
	GainDB     float64 `json:"gain_db"`
	Muted      bool    `json:"muted"`
}

// Stem is the payload for stem (four-source) sessions.
type Stem struct {
	Vocal          StemControls `json:"vocal"`
	Instrumental   StemControls `json:"instrumental"`
	MasterGainDB   float64      `json:"master_gain_db"`
	LimiterEnabled bool         `json:"limiter_enabled"`
}

// FlatFrom shapes s for a standard session.
func FlatFrom(s Set) Flat {
	s = s.Clamp()
	return Flat{
		BlendRatio:     s.BlendRatio,
		MasterGainDB:   s.MasterGainDB,
		LimiterEnabled: s.LimiterEnabled,
	}
}

// StemFrom shapes s for a stem session.
func StemFrom(s Set) Stem {
	s = s.Clamp()
	return Stem{
		Vocal: StemControls{
			BlendRatio: s.VocalBlendRatio,
			GainDB:     s.VocalGainDB,
			Muted:      s.VocalMuted,
		},
		Instrumental: StemControls{
			BlendRatio: s.InstrumentalBlendRatio,
			GainDB:     s.InstrumentalGainDB,
			Muted:      s.InstrumentalMuted,
		},
		MasterGainDB:   s.MasterGainDB,
		LimiterEnabled: s.LimiterEnabled,
	}
}

// Resolve expands the flat payload into a Set with neutral stem controls.
func (f Flat) Resolve() Set {
	s := Default()
	s.BlendRatio = f.BlendRatio
	s.MasterGainDB = f.MasterGainDB
	s.LimiterEnabled = f.LimiterEnabled
	return s.Clamp()
}

// Resolve expands the stem payload into a Set.
func (p Stem) Resolve() Set {
	s := Default()
	s.VocalBlendRatio = p.Vocal.BlendRatio
	s.VocalGainDB = p.Vocal.GainDB
	s.VocalMuted = p.Vocal.Muted
	s.InstrumentalBlendRatio = p.Instrumental.BlendRatio
	s.InstrumentalGainDB = p.Instrumental.GainDB
	s.InstrumentalMuted = p.Instrumental.Muted
	s.MasterGainDB = p.MasterGainDB
	s.LimiterEnabled = p.LimiterEnabled
	return s.Clamp()
}
