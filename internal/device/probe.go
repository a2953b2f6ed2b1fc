package device

import "sync"

var (
	probeOnce sync.Once
	probed    Capability
)

// Probe reports once per process whether the low-latency sink can be used.
// It inspects the platform without opening the device, since the output
// context can only be created once.
func Probe() Capability {
	probeOnce.Do(func() {
		probed = probePlatform()
	})
	return probed
}
