// Package device drives a render callback from an audio output clock.
//
// Three sinks exist: a low-latency oto player pulled in small blocks, a
// beep speaker fallback pulled in large blocks, and a headless sink paced
// by a ticker that can capture its output to WAV. All of them call the
// Renderer with a fixed block size from a single goroutine.
package device

import (
	"errors"
	"time"

	"github.com/satindergrewal/abmix/internal/audio"
)

var (
	ErrDevice      = errors.New("audio device error")
	ErrUnsupported = errors.New("audio output not supported")
)

// Renderer fills one block of planar output. out has one slice per channel,
// each exactly one block long. Render runs on the audio goroutine and must
// not block.
type Renderer interface {
	Render(out [][]float64)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(out [][]float64)

func (f RenderFunc) Render(out [][]float64) { f(out) }

// Kind names a sink implementation.
type Kind string

const (
	KindRealtime Kind = "realtime"
	KindBlock    Kind = "block"
	KindHeadless Kind = "headless"
)

// Config describes the output stream a sink opens.
type Config struct {
	SampleRate  int
	Channels    int
	BlockSize   int    // frames per Render call
	CapturePath string // headless only; empty disables capture
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = audio.Channels
	}
	if c.BlockSize <= 0 {
		c.BlockSize = 128
	}
	return c
}

// BlockDuration returns the wall time covered by one block.
func (c Config) BlockDuration() time.Duration {
	return audio.FramesToDuration(c.BlockSize, c.SampleRate)
}

// Info describes an open sink.
type Info struct {
	Kind       Kind
	SampleRate int
	Channels   int
	BlockSize  int
}

// Sink pulls audio from a Renderer at the device's pace.
type Sink interface {
	// Start begins pulling from r. It may be called once.
	Start(r Renderer) error
	// Resume wakes a suspended output device. It is a no-op when running.
	Resume() error
	Info() Info
	Close() error
}

// Capability is the result of probing for low-latency output.
type Capability struct {
	Supported bool
	Reason    string
}

// Supported reports a usable low-latency output path.
func Supported() Capability { return Capability{Supported: true} }

// Unsupported reports why low-latency output cannot be used.
func Unsupported(reason string) Capability { return Capability{Reason: reason} }

func (c Capability) String() string {
	if c.Supported {
		return "supported"
	}
	return "unsupported: " + c.Reason
}

// NewPlanes allocates channels x frames of silence.
func NewPlanes(channels, frames int) [][]float64 {
	p := make([][]float64, channels)
	for c := range p {
		p[c] = make([]float64, frames)
	}
	return p
}

// blockPump serves arbitrary frame counts from fixed-size Render calls.
type blockPump struct {
	r     Renderer
	block [][]float64
	size  int
	off   int
}

func newBlockPump(r Renderer, channels, size int) *blockPump {
	return &blockPump{
		r:     r,
		block: NewPlanes(channels, size),
		size:  size,
		off:   size,
	}
}

// pull writes the next n frames into dst starting at frame 0.
func (p *blockPump) pull(dst [][]float64, n int) {
	done := 0
	for done < n {
		if p.off == p.size {
			p.r.Render(p.block)
			p.off = 0
		}
		k := min(n-done, p.size-p.off)
		for c := range dst {
			copy(dst[c][done:done+k], p.block[c][p.off:p.off+k])
		}
		p.off += k
		done += k
	}
}
