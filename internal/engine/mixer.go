package engine

import (
	"github.com/cwbudde/algo-vecmath"
	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/limiter"
	"github.com/satindergrewal/abmix/internal/params"
)

type cmdKind int

const (
	cmdLoad cmdKind = iota
	cmdPlay
	cmdPause
	cmdStop
	cmdSeek
)

func (k cmdKind) String() string {
	switch k {
	case cmdLoad:
		return "load"
	case cmdPlay:
		return "play"
	case cmdPause:
		return "pause"
	case cmdStop:
		return "stop"
	case cmdSeek:
		return "seek"
	}
	return "unknown"
}

type command struct {
	kind   cmdKind
	frames int
	set    *audio.Set
}

// mixer is the render core shared by both variants. It is not safe for
// concurrent use; each variant owns one and decides how calls reach it.
type mixer struct {
	set        *audio.Set
	cursor     int
	playing    bool
	endedFired bool

	reportEvery int
	peak        float64

	lim  limiter.Bank
	emit func(Event)

	// scratch, one block long
	a, b, tmp, stem []float64
}

func newMixer(channels, blockSize int, emit func(Event)) *mixer {
	if emit == nil {
		emit = func(Event) {}
	}
	return &mixer{
		lim:  limiter.NewBank(channels),
		emit: emit,
		a:    make([]float64, blockSize),
		b:    make([]float64, blockSize),
		tmp:  make([]float64, blockSize),
		stem: make([]float64, blockSize),
	}
}

func (m *mixer) apply(c command) {
	switch c.kind {
	case cmdLoad:
		m.set = c.set
		m.cursor = 0
		m.playing = false
		m.endedFired = false
		m.reportEvery = max(1, c.set.SampleRate/10)
	case cmdPlay:
		m.playing = true
	case cmdPause:
		m.playing = false
	case cmdStop:
		m.playing = false
		m.cursor = 0
		m.endedFired = false
	case cmdSeek:
		m.cursor = m.clampFrames(c.frames)
		m.endedFired = false
	}
}

func (m *mixer) clampFrames(f int) int {
	if m.set == nil || f < 0 {
		return 0
	}
	return min(f, m.set.Frames)
}

func (m *mixer) total() int {
	if m.set == nil {
		return 0
	}
	return m.set.Frames
}

func silence(out [][]float64) {
	for c := range out {
		clear(out[c])
	}
}

// render produces one block with the parameter values in p.
func (m *mixer) render(out [][]float64, p params.Set) {
	if m.set == nil || !m.playing {
		silence(out)
		return
	}

	total := m.set.Frames
	if m.cursor >= total {
		silence(out)
		m.playing = false
		if !m.endedFired {
			m.endedFired = true
			m.emit(Event{Kind: EventEnded, Position: m.set.Duration(), Duration: m.set.Duration()})
		}
		return
	}

	n := len(out[0])
	m.grow(n)
	m.peak = 0
	for c := range out {
		if m.set.Mode == audio.Stem {
			m.renderStem(out[c], c, p)
		} else {
			m.renderStandard(out[c], c, p)
		}
		audio.GainBlock(out[c], m.tmp, p.MasterGainDB)
		if p.LimiterEnabled {
			m.lim[c].ProcessInPlace(out[c])
		}
		m.peak = max(m.peak, audio.Peak(out[c]))
	}

	prev := m.cursor
	m.cursor = min(m.cursor+n, total)
	if m.cursor/m.reportEvery > prev/m.reportEvery {
		m.emit(Event{
			Kind:     EventPosition,
			Position: audio.FramesToDuration(m.cursor, m.set.SampleRate),
			Duration: m.set.Duration(),
			Peak:     m.peak,
		})
	}
}

func (m *mixer) renderStandard(dst []float64, c int, p params.Set) {
	n := len(dst)
	total := m.set.Frames
	m.set.Buffers[audio.Original].ReadInto(m.a[:n], c, m.cursor, total)
	m.set.Buffers[audio.Processed].ReadInto(m.b[:n], c, m.cursor, total)
	audio.BlendBlock(dst, m.tmp, m.a[:n], m.b[:n], p.BlendRatio)
}

func (m *mixer) renderStem(dst []float64, c int, p params.Set) {
	n := len(dst)
	total := m.set.Frames
	vocal := m.stem[:n]

	m.set.Buffers[audio.VocalOriginal].ReadInto(m.a[:n], c, m.cursor, total)
	m.set.Buffers[audio.VocalProcessed].ReadInto(m.b[:n], c, m.cursor, total)
	audio.BlendBlock(vocal, m.tmp, m.a[:n], m.b[:n], p.VocalBlendRatio)
	if p.VocalMuted {
		clear(vocal)
	} else {
		audio.GainBlock(vocal, m.tmp, p.VocalGainDB)
	}

	m.set.Buffers[audio.InstrumentalOriginal].ReadInto(m.a[:n], c, m.cursor, total)
	m.set.Buffers[audio.InstrumentalProcessed].ReadInto(m.b[:n], c, m.cursor, total)
	audio.BlendBlock(dst, m.tmp, m.a[:n], m.b[:n], p.InstrumentalBlendRatio)
	if p.InstrumentalMuted {
		clear(dst)
	} else {
		audio.GainBlock(dst, m.tmp, p.InstrumentalGainDB)
	}

	vecmath.AddBlockInPlace(dst, vocal)
}

// grow resizes scratch when a sink hands over a larger block than expected.
func (m *mixer) grow(n int) {
	if n <= len(m.a) {
		return
	}
	m.a = make([]float64, n)
	m.b = make([]float64, n)
	m.tmp = make([]float64, n)
	m.stem = make([]float64, n)
}
