package audio

import (
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter streams 16-bit PCM frames into a WAV container.
type WAVWriter struct {
	enc      *wav.Encoder
	channels int
	scratch  *goaudio.IntBuffer
}

// NewWAVWriter starts a 16-bit PCM WAV stream on w. Close finalizes the header.
func NewWAVWriter(w io.WriteSeeker, rate, channels int) *WAVWriter {
	return &WAVWriter{
		enc:      wav.NewEncoder(w, rate, BitDepth, channels, 1),
		channels: channels,
		scratch: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: BitDepth,
		},
	}
}

// WritePlanes appends frames taken from per-channel float planes.
func (w *WAVWriter) WritePlanes(planes [][]float64, frames int) error {
	need := frames * w.channels
	if cap(w.scratch.Data) < need {
		w.scratch.Data = make([]int, need)
	}
	w.scratch.Data = w.scratch.Data[:need]
	for f := 0; f < frames; f++ {
		for c := 0; c < w.channels; c++ {
			w.scratch.Data[f*w.channels+c] = int(FloatToInt16(planes[c][f]))
		}
	}
	return w.enc.Write(w.scratch)
}

// Close writes the final WAV header sizes.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}

// WriteWAV encodes b as a complete 16-bit WAV file.
func WriteWAV(w io.WriteSeeker, b *Buffer) error {
	ww := NewWAVWriter(w, b.SampleRate, b.NumChannels())
	planes := make([][]float64, b.NumChannels())
	for c := range planes {
		planes[c] = make([]float64, b.Frames())
		b.ReadInto(planes[c], c, 0, b.Frames())
	}
	if err := ww.WritePlanes(planes, b.Frames()); err != nil {
		return err
	}
	return ww.Close()
}
