//go:build !linux || cgo

package device

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/satindergrewal/abmix/internal/audio"
)

func probePlatform() Capability {
	if runtime.GOOS != "linux" {
		return Supported()
	}
	data, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		return Unsupported("no ALSA: " + err.Error())
	}
	s := strings.TrimSpace(string(data))
	if s == "" || strings.Contains(s, "no soundcards") {
		return Unsupported("no ALSA sound cards")
	}
	return Supported()
}

// oto allows a single context per process.
var (
	otoOnce     sync.Once
	otoCtx      *oto.Context
	otoErr      error
	otoRate     int
	otoChannels int
)

func sharedContext(rate, channels int, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   buffer,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx, otoRate, otoChannels = ctx, rate, channels
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDevice, otoErr)
	}
	if otoRate != rate || otoChannels != channels {
		return nil, fmt.Errorf("%w: output already open at %d Hz, %d ch", ErrDevice, otoRate, otoChannels)
	}
	return otoCtx, nil
}

type otoSink struct {
	cfg    Config
	ctx    *oto.Context
	player *oto.Player
	pump   *blockPump
	planes [][]float64
}

// OpenRealtime opens the low-latency sink. The renderer is pulled in
// cfg.BlockSize frames straight from the device callback.
func OpenRealtime(cfg Config) (Sink, error) {
	cfg = cfg.withDefaults()
	if c := Probe(); !c.Supported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, c.Reason)
	}
	ctx, err := sharedContext(cfg.SampleRate, cfg.Channels, 4*cfg.BlockDuration())
	if err != nil {
		return nil, err
	}
	return &otoSink{
		cfg:    cfg,
		ctx:    ctx,
		planes: NewPlanes(cfg.Channels, 4096),
	}, nil
}

func (s *otoSink) Start(r Renderer) error {
	if s.player != nil {
		return fmt.Errorf("%w: sink already started", ErrDevice)
	}
	s.pump = newBlockPump(r, s.cfg.Channels, s.cfg.BlockSize)
	s.player = s.ctx.NewPlayer(s)
	s.player.SetBufferSize(2 * s.cfg.BlockSize * s.cfg.Channels * 4)
	s.player.Play()
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	return nil
}

// Read implements io.Reader for oto.Player.
func (s *otoSink) Read(p []byte) (int, error) {
	frameBytes := 4 * s.cfg.Channels
	frames := len(p) / frameBytes
	if frames > len(s.planes[0]) {
		s.planes = NewPlanes(s.cfg.Channels, frames)
	}
	s.pump.pull(s.planes, frames)
	audio.PutFloat32LE(p, s.planes, frames)
	return frames * frameBytes, nil
}

func (s *otoSink) Resume() error {
	if err := s.ctx.Resume(); err != nil {
		return fmt.Errorf("%w: resume: %w", ErrDevice, err)
	}
	return nil
}

func (s *otoSink) Info() Info {
	return Info{Kind: KindRealtime, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels, BlockSize: s.cfg.BlockSize}
}

func (s *otoSink) Close() error {
	if s.player == nil {
		return nil
	}
	s.player.Pause()
	return s.player.Close()
}

var (
	speakerOnce sync.Once
	speakerErr  error
	speakerRate int
)

type speakerSink struct {
	cfg    Config
	pump   *blockPump
	planes [][]float64
}

// OpenFallback opens the beep speaker with a buffer of cfg.BlockSize frames.
// The speaker mixes on its own goroutine and tolerates scheduling jitter.
func OpenFallback(cfg Config) (Sink, error) {
	cfg = cfg.withDefaults()
	speakerOnce.Do(func() {
		sr := beep.SampleRate(cfg.SampleRate)
		speakerErr = speaker.Init(sr, cfg.BlockSize)
		speakerRate = cfg.SampleRate
	})
	if speakerErr != nil {
		return nil, fmt.Errorf("%w: speaker: %w", ErrDevice, speakerErr)
	}
	if speakerRate != cfg.SampleRate {
		return nil, fmt.Errorf("%w: speaker already open at %d Hz", ErrDevice, speakerRate)
	}
	return &speakerSink{cfg: cfg, planes: NewPlanes(cfg.Channels, cfg.BlockSize)}, nil
}

func (s *speakerSink) Start(r Renderer) error {
	if s.pump != nil {
		return fmt.Errorf("%w: sink already started", ErrDevice)
	}
	s.pump = newBlockPump(r, s.cfg.Channels, s.cfg.BlockSize)
	speaker.Play(beep.StreamerFunc(s.stream))
	return nil
}

func (s *speakerSink) stream(samples [][2]float64) (int, bool) {
	n := len(samples)
	if n > len(s.planes[0]) {
		s.planes = NewPlanes(s.cfg.Channels, n)
	}
	s.pump.pull(s.planes, n)
	right := min(1, s.cfg.Channels-1)
	for i := 0; i < n; i++ {
		samples[i][0] = s.planes[0][i]
		samples[i][1] = s.planes[right][i]
	}
	return n, true
}

func (s *speakerSink) Resume() error { return nil }

func (s *speakerSink) Info() Info {
	return Info{Kind: KindBlock, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels, BlockSize: s.cfg.BlockSize}
}

func (s *speakerSink) Close() error {
	speaker.Clear()
	return nil
}
