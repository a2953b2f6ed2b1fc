package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/satindergrewal/abmix/internal/audio"
)

func TestCapability(t *testing.T) {
	if c := Supported(); !c.Supported || c.String() != "supported" {
		t.Errorf("Supported() = %+v", c)
	}
	c := Unsupported("no card")
	if c.Supported || c.Reason != "no card" || c.String() != "unsupported: no card" {
		t.Errorf("Unsupported() = %+v (%s)", c, c)
	}
	if p1, p2 := Probe(), Probe(); p1 != p2 {
		t.Errorf("Probe not stable: %v vs %v", p1, p2)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.SampleRate != 44100 || c.Channels != 2 || c.BlockSize != 128 {
		t.Errorf("defaults = %+v", c)
	}
	if got := (Config{SampleRate: 48000, BlockSize: 480}).BlockDuration(); got != 10*time.Millisecond {
		t.Errorf("BlockDuration = %v, want 10ms", got)
	}
}

// counter renders a ramp so block boundaries are visible.
type counter struct {
	next  float64
	calls int
	sizes []int
}

func (c *counter) Render(out [][]float64) {
	c.calls++
	c.sizes = append(c.sizes, len(out[0]))
	for i := range out[0] {
		for ch := range out {
			out[ch][i] = c.next
		}
		c.next++
	}
}

func TestBlockPumpServesArbitraryCounts(t *testing.T) {
	r := &counter{}
	p := newBlockPump(r, 2, 4)
	dst := NewPlanes(2, 16)

	var got []float64
	for _, n := range []int{3, 1, 6, 2} {
		p.pull(dst, n)
		got = append(got, dst[1][:n]...)
	}
	for i, v := range got {
		if v != float64(i) {
			t.Fatalf("frame %d = %v, want %v (stream not contiguous)", i, v, float64(i))
		}
	}
	if r.calls != 3 {
		t.Errorf("Render calls = %d, want 3", r.calls)
	}
	for _, n := range r.sizes {
		if n != 4 {
			t.Errorf("Render called with %d frames, want fixed 4", n)
		}
	}
}

func TestClockSinkRendersAndCaptures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	s, err := OpenHeadless(Config{SampleRate: 8000, Channels: 2, BlockSize: 80, CapturePath: path})
	if err != nil {
		t.Fatal(err)
	}
	if s.Info().Kind != KindHeadless {
		t.Errorf("Kind = %v", s.Info().Kind)
	}

	rendered := make(chan struct{}, 1)
	err = s.Start(RenderFunc(func(out [][]float64) {
		for c := range out {
			for i := range out[c] {
				out[c][i] = 0.25
			}
		}
		select {
		case rendered <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(RenderFunc(func([][]float64) {})); !errors.Is(err, ErrDevice) {
		t.Errorf("second Start err = %v, want ErrDevice", err)
	}

	select {
	case <-rendered:
	case <-time.After(2 * time.Second):
		t.Fatal("no block rendered")
	}
	time.Sleep(50 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Frames() == 0 || s.Frames()%80 != 0 {
		t.Errorf("Frames = %d, want a positive multiple of 80", s.Frames())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := audio.Decode(data)
	if err != nil {
		t.Fatalf("decode capture: %v", err)
	}
	if buf.SampleRate != 8000 || buf.NumChannels() != 2 {
		t.Errorf("capture %d Hz %d ch", buf.SampleRate, buf.NumChannels())
	}
	if int64(buf.Frames()) != s.Frames() {
		t.Errorf("captured %d frames, rendered %d", buf.Frames(), s.Frames())
	}
	if buf.Data[0][0] != 0.25 {
		t.Errorf("captured sample = %v, want 0.25", buf.Data[0][0])
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenHeadlessBadPath(t *testing.T) {
	_, err := OpenHeadless(Config{CapturePath: filepath.Join(t.TempDir(), "missing", "x.wav")})
	if !errors.Is(err, ErrDevice) {
		t.Errorf("err = %v, want ErrDevice", err)
	}
}
