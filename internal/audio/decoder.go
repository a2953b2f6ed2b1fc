package audio

import (
	"bytes"
	"fmt"
	"sync"
)

// Format names a container/codec the registry can decode.
type Format string

const (
	FormatWAV    Format = "wav"
	FormatAIFF   Format = "aiff"
	FormatMP3    Format = "mp3"
	FormatVorbis Format = "vorbis"
	FormatOpus   Format = "opus"
)

// Decoder turns a complete encoded file into a Buffer.
type Decoder interface {
	Decode(data []byte) (*Buffer, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (*Buffer, error)

func (f DecoderFunc) Decode(data []byte) (*Buffer, error) { return f(data) }

// Registry maps formats to decoders.
type Registry struct {
	mu     sync.RWMutex
	codecs map[Format]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[Format]Decoder)}
}

// Register installs d for format, replacing any previous decoder.
func (r *Registry) Register(format Format, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[format] = d
}

// Get returns the decoder for format.
func (r *Registry) Get(format Format) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.codecs[format]
	return d, ok
}

// Decode sniffs data and decodes it with the matching decoder.
// Every failure wraps ErrDecode.
func (r *Registry) Decode(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrDecode, ErrEmptySource)
	}
	format, ok := Sniff(data)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrDecode, ErrUnknownFormat)
	}
	d, ok := r.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s: %w", ErrDecode, format, ErrUnknownFormat)
	}
	buf, err := d.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, format, err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, format, ErrEmptySource)
	}
	return buf, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process-wide registry with every built-in decoder.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		r.Register(FormatWAV, DecoderFunc(decodeWAV))
		r.Register(FormatAIFF, DecoderFunc(decodeAIFF))
		r.Register(FormatMP3, DecoderFunc(decodeMP3))
		r.Register(FormatVorbis, DecoderFunc(decodeVorbis))
		registerOpus(r)
		defaultRegistry = r
	})
	return defaultRegistry
}

// Decode decodes data with the default registry.
func Decode(data []byte) (*Buffer, error) {
	return DefaultRegistry().Decode(data)
}

// Sniff identifies the format of data from its leading bytes.
func Sniff(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, true
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("FORM")) &&
		(bytes.Equal(data[8:12], []byte("AIFF")) || bytes.Equal(data[8:12], []byte("AIFC"))):
		return FormatAIFF, true
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		head := data[:min(len(data), 128)]
		if bytes.Contains(head, []byte("OpusHead")) {
			return FormatOpus, true
		}
		if bytes.Contains(head, []byte("\x01vorbis")) {
			return FormatVorbis, true
		}
		return "", false
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return FormatMP3, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, true
	}
	return "", false
}

// intToFloat deinterleaves integer PCM of the given bit depth.
func intToFloat(data []int, channels, bitDepth int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	scale := float32(MaxInt16)
	if bitDepth > 0 && bitDepth <= 32 {
		scale = float32(int64(1) << (bitDepth - 1))
	}
	frames := len(data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			out[c][f] = float32(data[f*channels+c]) / scale
		}
	}
	return out
}

// deinterleaveFloat splits interleaved float samples into channels.
func deinterleaveFloat(data []float32, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			out[c][f] = data[f*channels+c]
		}
	}
	return out
}

// DecodeAt decodes data and resamples it to rate.
func DecodeAt(data []byte, rate int) (*Buffer, error) {
	buf, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out, err := Resample(buf, rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}
