package audio

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Buffer is fully decoded audio, one slice per channel.
// A Buffer is immutable once handed to a renderer.
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// NewBuffer wraps per-channel data. Channels beyond the output channel
// count are dropped; all channels are cut to the shortest.
func NewBuffer(rate int, data [][]float32) *Buffer {
	if len(data) > Channels {
		data = data[:Channels]
	}
	n := lo.Min(lo.Map(data, func(c []float32, _ int) int { return len(c) }))
	for i := range data {
		data[i] = data[i][:n]
	}
	return &Buffer{SampleRate: rate, Data: data}
}

// Frames returns the length in frames.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// NumChannels returns the decoded channel count.
func (b *Buffer) NumChannels() int { return len(b.Data) }

// Channel returns the samples feeding output channel c. Mono buffers feed
// every output channel.
func (b *Buffer) Channel(c int) []float32 {
	if c >= len(b.Data) {
		c = len(b.Data) - 1
	}
	return b.Data[c]
}

// Duration returns the buffer length as wall time.
func (b *Buffer) Duration() time.Duration {
	return FramesToDuration(b.Frames(), b.SampleRate)
}

// ReadInto copies frames [start, start+len(dst)) of output channel c into
// dst as float64, zero-filling past the end of the buffer or past limit.
func (b *Buffer) ReadInto(dst []float64, c, start, limit int) {
	src := b.Channel(c)
	if limit > len(src) {
		limit = len(src)
	}
	i := 0
	for ; i < len(dst) && start+i < limit; i++ {
		dst[i] = float64(src[start+i])
	}
	for ; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Source indexes within a Set.
const (
	Original  = 0
	Processed = 1

	VocalOriginal         = 0
	VocalProcessed        = 1
	InstrumentalOriginal  = 2
	InstrumentalProcessed = 3
)

// Set is the pair (standard) or quad (stem) of buffers one renderer plays.
type Set struct {
	Mode       Mode
	Buffers    []*Buffer
	SampleRate int
	// Frames is the shortest buffer length. Longer buffers are never read past it.
	Frames int
}

// NewStandardSet pairs original and processed.
func NewStandardSet(original, processed *Buffer) (*Set, error) {
	return newSet(Standard, original, processed)
}

// NewStemSet groups the four stem buffers.
func NewStemSet(vocalOriginal, vocalProcessed, instrumentalOriginal, instrumentalProcessed *Buffer) (*Set, error) {
	return newSet(Stem, vocalOriginal, vocalProcessed, instrumentalOriginal, instrumentalProcessed)
}

func newSet(mode Mode, bufs ...*Buffer) (*Set, error) {
	for i, b := range bufs {
		if b == nil || b.NumChannels() == 0 || b.Frames() == 0 {
			return nil, fmt.Errorf("source %d: %w", i, ErrEmptySource)
		}
		if b.SampleRate != bufs[0].SampleRate {
			return nil, fmt.Errorf("source %d at %d Hz, source 0 at %d Hz: %w",
				i, b.SampleRate, bufs[0].SampleRate, ErrRateMismatch)
		}
	}
	return &Set{
		Mode:       mode,
		Buffers:    bufs,
		SampleRate: bufs[0].SampleRate,
		Frames:     lo.Min(lo.Map(bufs, func(b *Buffer, _ int) int { return b.Frames() })),
	}, nil
}

// Duration returns the playable length.
func (s *Set) Duration() time.Duration {
	return FramesToDuration(s.Frames, s.SampleRate)
}
