package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

func decodeWAV(data []byte) (*Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if pcm.Format == nil {
		return nil, errors.New("wav missing format chunk")
	}
	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	return NewBuffer(pcm.Format.SampleRate, intToFloat(pcm.Data, pcm.Format.NumChannels, depth)), nil
}

func decodeAIFF(data []byte) (*Buffer, error) {
	d := aiff.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("not a valid aiff file")
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if pcm.Format == nil {
		return nil, errors.New("aiff missing comm chunk")
	}
	return NewBuffer(pcm.Format.SampleRate, intToFloat(pcm.Data, pcm.Format.NumChannels, int(d.BitDepth))), nil
}

// go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(data []byte) (*Buffer, error) {
	d, err := gomp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	return NewBuffer(d.SampleRate(), DeinterleavePCM16(raw, 2)), nil
}

func decodeVorbis(data []byte) (*Buffer, error) {
	r, err := oggvorbis.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	ch := r.Channels()
	var all []float32
	chunk := make([]float32, 4096*ch)
	for {
		n, err := r.Read(chunk)
		all = append(all, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pcm: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return NewBuffer(r.SampleRate(), deinterleaveFloat(all, ch)), nil
}
