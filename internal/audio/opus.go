//go:build cgo && !nolibopusfile

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"
)

// Opus always decodes at 48 kHz.
const opusRate = 48000

func registerOpus(r *Registry) {
	r.Register(FormatOpus, DecoderFunc(decodeOpus))
}

func decodeOpus(data []byte) (*Buffer, error) {
	ch := opusChannels(data)
	s, err := opus.NewStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var all []float32
	// 120ms at 48 kHz is the largest opus frame.
	chunk := make([]float32, 5760*ch)
	for {
		n, err := s.ReadFloat32(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pcm: %w", err)
		}
		if n == 0 {
			break
		}
		all = append(all, chunk[:n*ch]...)
	}
	if len(all) == 0 {
		return nil, errors.New("opus stream has no audio")
	}
	return NewBuffer(opusRate, deinterleaveFloat(all, ch)), nil
}

// opusChannels reads the channel count from the OpusHead packet.
func opusChannels(data []byte) int {
	i := bytes.Index(data[:min(len(data), 512)], []byte("OpusHead"))
	if i < 0 || i+9 >= len(data) {
		return 2
	}
	if ch := int(data[i+9]); ch > 0 {
		return ch
	}
	return 2
}
