package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/abmix/internal/audio"
)

// ClockSink renders one block per tick at real-time rate without any
// audio hardware. With a capture path it writes everything rendered to a
// 16-bit WAV file.
type ClockSink struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	file   *os.File
	wav    *audio.WAVWriter
	blocks atomic.Int64
}

// OpenHeadless creates a ticker-paced sink.
func OpenHeadless(cfg Config) (*ClockSink, error) {
	cfg = cfg.withDefaults()
	s := &ClockSink{cfg: cfg}
	if cfg.CapturePath != "" {
		f, err := os.Create(cfg.CapturePath)
		if err != nil {
			return nil, fmt.Errorf("%w: capture: %w", ErrDevice, err)
		}
		s.file = f
		s.wav = audio.NewWAVWriter(f, cfg.SampleRate, cfg.Channels)
	}
	return s, nil
}

// Start begins ticking. Blocks are rendered on a single goroutine.
func (s *ClockSink) Start(r Renderer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("%w: sink already started", ErrDevice)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, r)
	return nil
}

func (s *ClockSink) run(ctx context.Context, r Renderer) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.BlockDuration())
	defer ticker.Stop()

	block := NewPlanes(s.cfg.Channels, s.cfg.BlockSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.Render(block)
		s.blocks.Add(1)

		if s.wav != nil {
			if err := s.wav.WritePlanes(block, s.cfg.BlockSize); err != nil {
				log.Printf("device: capture write failed, capture stopped: %v", err)
				s.wav = nil
			}
		}
	}
}

// Frames returns how many frames have been rendered so far.
func (s *ClockSink) Frames() int64 {
	return s.blocks.Load() * int64(s.cfg.BlockSize)
}

func (s *ClockSink) Resume() error { return nil }

func (s *ClockSink) Info() Info {
	return Info{Kind: KindHeadless, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels, BlockSize: s.cfg.BlockSize}
}

// Close stops the clock and finalizes any capture file.
func (s *ClockSink) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if s.file == nil {
		return nil
	}

	var errs []error
	if s.wav != nil {
		errs = append(errs, s.wav.Close())
		s.wav = nil
	}
	errs = append(errs, s.file.Close())
	s.file = nil
	return errors.Join(errs...)
}
