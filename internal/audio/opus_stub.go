//go:build !cgo || nolibopusfile

package audio

import "fmt"

func registerOpus(r *Registry) {
	r.Register(FormatOpus, DecoderFunc(func([]byte) (*Buffer, error) {
		return nil, fmt.Errorf("opus decoding needs libopusfile: %w", ErrUnknownFormat)
	}))
}
