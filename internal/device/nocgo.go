//go:build linux && !cgo

package device

import "fmt"

func probePlatform() Capability {
	return Unsupported("built without cgo")
}

// OpenRealtime always fails: the ALSA backend needs cgo.
func OpenRealtime(cfg Config) (Sink, error) {
	return nil, fmt.Errorf("%w: built without cgo", ErrUnsupported)
}

// OpenFallback always fails: the ALSA backend needs cgo.
func OpenFallback(cfg Config) (Sink, error) {
	return nil, fmt.Errorf("%w: built without cgo", ErrUnsupported)
}
