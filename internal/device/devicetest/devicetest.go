// Package devicetest provides a device.Sink that renders only when pulled.
package devicetest

import (
	"errors"
	"sync"

	"github.com/satindergrewal/abmix/internal/device"
)

// Sink is a manually clocked device.Sink for deterministic tests.
type Sink struct {
	Kind       device.Kind
	SampleRate int
	Channels   int
	BlockSize  int

	// StartErr, when set, is returned by Start.
	StartErr error

	mu       sync.Mutex
	r        device.Renderer
	resumes  int
	closed   bool
	rendered int
}

// New returns a stereo sink at rate with the given block size.
func New(kind device.Kind, rate, blockSize int) *Sink {
	return &Sink{Kind: kind, SampleRate: rate, Channels: 2, BlockSize: blockSize}
}

func (s *Sink) Start(r device.Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.r != nil {
		return errors.New("devicetest: already started")
	}
	s.r = r
	return nil
}

// Pull renders n blocks and returns them concatenated per channel.
func (s *Sink) Pull(n int) [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := device.NewPlanes(s.Channels, 0)
	if s.r == nil {
		return out
	}
	block := device.NewPlanes(s.Channels, s.BlockSize)
	for i := 0; i < n; i++ {
		s.r.Render(block)
		s.rendered++
		for c := range out {
			out[c] = append(out[c], block[c]...)
		}
	}
	return out
}

// Blocks returns how many blocks were rendered.
func (s *Sink) Blocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}

func (s *Sink) Resume() error {
	s.mu.Lock()
	s.resumes++
	s.mu.Unlock()
	return nil
}

// Resumes returns how many times Resume was called.
func (s *Sink) Resumes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes
}

func (s *Sink) Info() device.Info {
	return device.Info{Kind: s.Kind, SampleRate: s.SampleRate, Channels: s.Channels, BlockSize: s.BlockSize}
}

func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
