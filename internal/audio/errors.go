package audio

import "errors"

var (
	ErrDecode        = errors.New("audio decode failed")
	ErrUnknownFormat = errors.New("unknown audio format")
	ErrEmptySource   = errors.New("audio source is empty")
	ErrRateMismatch  = errors.New("buffers do not share a sample rate")
)
