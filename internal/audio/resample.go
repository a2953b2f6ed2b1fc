package audio

import (
	"fmt"

	"github.com/gopxl/beep/v2"
)

// ResampleQuality is the beep interpolation quality used at load time.
const ResampleQuality = 4

// bufferStreamer plays a Buffer once as a beep.Streamer.
type bufferStreamer struct {
	b   *Buffer
	pos int
}

func (s *bufferStreamer) Stream(samples [][2]float64) (int, bool) {
	remaining := s.b.Frames() - s.pos
	if remaining <= 0 {
		return 0, false
	}
	n := min(remaining, len(samples))
	l, r := s.b.Channel(0), s.b.Channel(1)
	for i := 0; i < n; i++ {
		samples[i][0] = float64(l[s.pos+i])
		samples[i][1] = float64(r[s.pos+i])
	}
	s.pos += n
	return n, true
}

func (s *bufferStreamer) Err() error { return nil }

// Resample converts b to rate. b is returned unchanged when it already
// matches. The channel count is preserved.
func Resample(b *Buffer, rate int) (*Buffer, error) {
	if b.SampleRate == rate {
		return b, nil
	}
	if b.SampleRate <= 0 || rate <= 0 {
		return nil, fmt.Errorf("resample %d Hz to %d Hz: invalid rate", b.SampleRate, rate)
	}
	if b.Frames() == 0 {
		return nil, ErrEmptySource
	}

	rs := beep.Resample(ResampleQuality, beep.SampleRate(b.SampleRate), beep.SampleRate(rate), &bufferStreamer{b: b})

	est := int(float64(b.Frames())*float64(rate)/float64(b.SampleRate)) + 1
	out := make([][]float32, b.NumChannels())
	for c := range out {
		out[c] = make([]float32, 0, est)
	}

	chunk := make([][2]float64, 1024)
	for {
		n, ok := rs.Stream(chunk)
		for i := 0; i < n; i++ {
			for c := range out {
				out[c] = append(out[c], float32(chunk[i][c]))
			}
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return NewBuffer(rate, out), nil
}
