// Package engine mixes locally decoded audio on the output device's clock.
//
// Two renderers share one mixer core. The realtime renderer runs in the
// low-latency device callback on small blocks and talks to the control side
// only through channels. The block renderer runs on the fallback speaker's
// goroutine on large blocks behind a mutex. Initialize picks one and the
// choice holds for the life of the Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/device"
	"github.com/satindergrewal/abmix/internal/params"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotInitialized = errors.New("engine not initialized")
	ErrNotLoaded      = errors.New("no audio loaded")
)

// Renderer selection values for Config.Renderer.
const (
	RendererAuto     = "auto"
	RendererRealtime = "realtime"
	RendererBlock    = "block"
	RendererHeadless = "headless"
)

// Opener opens an output sink.
type Opener func(device.Config) (device.Sink, error)

// Config configures an Engine. Zero fields take defaults.
type Config struct {
	SampleRate    int
	Channels      int
	RealtimeBlock int
	FallbackBlock int
	Renderer      string
	CapturePath   string

	Params   params.Set
	Registry *audio.Registry

	Probe        func() device.Capability
	OpenRealtime Opener
	OpenFallback Opener
	OpenHeadless Opener

	// OnEvent receives position, ended and error events on a dedicated
	// goroutine. It must not call back into Engine.Close.
	OnEvent func(Event)
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = audio.Channels
	}
	if c.RealtimeBlock <= 0 {
		c.RealtimeBlock = 128
	}
	if c.FallbackBlock <= 0 {
		c.FallbackBlock = 4096
	}
	if c.Renderer == "" {
		c.Renderer = RendererAuto
	}
	if c.Params == (params.Set{}) {
		c.Params = params.Default()
	}
	if c.Registry == nil {
		c.Registry = audio.DefaultRegistry()
	}
	if c.Probe == nil {
		c.Probe = device.Probe
	}
	if c.OpenRealtime == nil {
		c.OpenRealtime = device.OpenRealtime
	}
	if c.OpenFallback == nil {
		c.OpenFallback = device.OpenFallback
	}
	if c.OpenHeadless == nil {
		c.OpenHeadless = func(dc device.Config) (device.Sink, error) { return device.OpenHeadless(dc) }
	}
	return c
}

type renderer interface {
	device.Renderer
	load(set *audio.Set)
	play()
	pause()
	stop()
	seek(frames int)
	setParams(p params.Set)
	status() renderStatus
}

type renderStatus struct {
	loaded  bool
	playing bool
	cursor  int
	total   int
	rate    int
}

// Status is a point-in-time view of the engine.
type Status struct {
	Variant  device.Kind
	Mode     audio.Mode
	Loaded   bool
	Playing  bool
	Position time.Duration
	Duration time.Duration
}

// Normalized returns the position in [0,1].
func (s Status) Normalized() float64 {
	return audio.Normalize(s.Position, s.Duration)
}

// Engine is the local mixing backend.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	sink    device.Sink
	r       renderer
	variant device.Kind
	mode    audio.Mode

	events chan Event
	ended  chan Event
	quit   chan struct{}
	wg     sync.WaitGroup
}

// New returns an uninitialized engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg.withDefaults(),
		events: make(chan Event, 64),
		ended:  make(chan Event, 1),
	}
}

type candidate struct {
	kind     device.Kind
	open     Opener
	block    int
	realtime bool
}

func (e *Engine) candidates() []candidate {
	rt := candidate{kind: device.KindRealtime, open: e.cfg.OpenRealtime, block: e.cfg.RealtimeBlock, realtime: true}
	fb := candidate{kind: device.KindBlock, open: e.cfg.OpenFallback, block: e.cfg.FallbackBlock}
	hl := candidate{kind: device.KindHeadless, open: e.cfg.OpenHeadless, block: e.cfg.FallbackBlock}

	switch e.cfg.Renderer {
	case RendererRealtime:
		return []candidate{rt}
	case RendererBlock:
		return []candidate{fb}
	case RendererHeadless:
		return []candidate{hl}
	}
	if c := e.cfg.Probe(); !c.Supported {
		log.Printf("engine: low-latency output %s, using fallback renderer", c)
		return []candidate{fb}
	}
	return []candidate{rt, fb}
}

// Initialize opens an output device and starts the renderer. It prefers
// the low-latency renderer and falls back to the block renderer. It
// reports false when no output could be opened.
func (e *Engine) Initialize() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r != nil {
		return true
	}

	for _, c := range e.candidates() {
		sink, err := c.open(device.Config{
			SampleRate:  e.cfg.SampleRate,
			Channels:    e.cfg.Channels,
			BlockSize:   c.block,
			CapturePath: e.cfg.CapturePath,
		})
		if err != nil {
			log.Printf("engine: %s renderer unavailable: %v", c.kind, err)
			continue
		}

		info := sink.Info()
		var r renderer
		if c.realtime {
			r = newRealtimeRenderer(info.Channels, info.BlockSize, e.cfg.Params, e.emit)
		} else {
			r = newBlockRenderer(info.Channels, info.BlockSize, e.cfg.Params, e.emit)
		}
		if err := sink.Start(r); err != nil {
			log.Printf("engine: %s renderer failed to start: %v", c.kind, err)
			sink.Close()
			continue
		}

		e.sink, e.r, e.variant = sink, r, info.Kind
		e.quit = make(chan struct{})
		e.wg.Add(1)
		go e.dispatch()

		log.Printf("engine: %s renderer, %d-frame blocks at %d Hz", info.Kind, info.BlockSize, info.SampleRate)
		return true
	}
	return false
}

// emit runs on the audio goroutine and never blocks. Position events are
// dropped when the listener falls behind; the ended event has its own slot.
func (e *Engine) emit(ev Event) {
	ch := e.events
	if ev.Kind == EventEnded {
		ch = e.ended
	}
	select {
	case ch <- ev:
	default:
	}
}

func (e *Engine) dispatch() {
	defer e.wg.Done()
	for {
		var ev Event
		select {
		case <-e.quit:
			return
		case ev = <-e.ended:
		case ev = <-e.events:
		}
		if e.cfg.OnEvent != nil {
			e.cfg.OnEvent(ev)
		}
	}
}

func (e *Engine) active() (renderer, device.Sink, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return nil, nil, ErrNotInitialized
	}
	return e.r, e.sink, nil
}

// Load decodes original and processed and makes them the current session.
func (e *Engine) Load(ctx context.Context, original, processed []byte) error {
	if _, _, err := e.active(); err != nil {
		return err
	}
	bufs, err := e.decodeAll(ctx, original, processed)
	if err != nil {
		return err
	}
	set, err := audio.NewStandardSet(bufs[0], bufs[1])
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrDecode, err)
	}
	return e.install(set)
}

// LoadStem decodes the four stem sources and makes them the current session.
func (e *Engine) LoadStem(ctx context.Context, vocalOriginal, vocalProcessed, instrumentalOriginal, instrumentalProcessed []byte) error {
	if _, _, err := e.active(); err != nil {
		return err
	}
	bufs, err := e.decodeAll(ctx, vocalOriginal, vocalProcessed, instrumentalOriginal, instrumentalProcessed)
	if err != nil {
		return err
	}
	set, err := audio.NewStemSet(bufs[0], bufs[1], bufs[2], bufs[3])
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrDecode, err)
	}
	return e.install(set)
}

func (e *Engine) decodeAll(ctx context.Context, sources ...[]byte) ([]*audio.Buffer, error) {
	_, sink, err := e.active()
	if err != nil {
		return nil, err
	}
	rate := sink.Info().SampleRate

	g, ctx := errgroup.WithContext(ctx)
	bufs := make([]*audio.Buffer, len(sources))
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := e.cfg.Registry.Decode(src)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			b, err = audio.Resample(b, rate)
			if err != nil {
				return fmt.Errorf("source %d: %w: %w", i, audio.ErrDecode, err)
			}
			bufs[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bufs, nil
}

func (e *Engine) install(set *audio.Set) error {
	r, _, err := e.active()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.mode = set.Mode
	e.mu.Unlock()
	r.load(set)
	log.Printf("engine: loaded %s session, %d sources, %s", set.Mode, len(set.Buffers), set.Duration().Round(time.Millisecond))
	return nil
}

// Play starts or resumes playback, waking the output device if it was suspended.
func (e *Engine) Play() error {
	r, sink, err := e.active()
	if err != nil {
		return err
	}
	if err := sink.Resume(); err != nil {
		return err
	}
	r.play()
	return nil
}

// Pause halts playback at the current position.
func (e *Engine) Pause() error {
	r, _, err := e.active()
	if err != nil {
		return err
	}
	r.pause()
	return nil
}

// Stop halts playback and rewinds to the start.
func (e *Engine) Stop() error {
	r, _, err := e.active()
	if err != nil {
		return err
	}
	r.stop()
	return nil
}

// Seek moves to position p in [0,1]. Out-of-range values are clamped.
func (e *Engine) Seek(p float64) error {
	r, _, err := e.active()
	if err != nil {
		return err
	}
	st := r.status()
	if !st.loaded {
		return ErrNotLoaded
	}
	r.seek(int(math.Round(audio.ClampUnit(p) * float64(st.total))))
	return nil
}

// SeekTime moves to an absolute time in seconds, clamped to the session length.
func (e *Engine) SeekTime(seconds float64) error {
	r, _, err := e.active()
	if err != nil {
		return err
	}
	st := r.status()
	if !st.loaded {
		return ErrNotLoaded
	}
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	r.seek(int(min(math.Round(seconds*float64(st.rate)), float64(st.total))))
	return nil
}

// SetParams replaces the live parameter set. The renderer picks it up at
// its next block.
func (e *Engine) SetParams(p params.Set) error {
	r, _, err := e.active()
	if err != nil {
		return err
	}
	r.setParams(p.Clamp())
	return nil
}

// UpdateParameters resolves a backend payload and applies it.
func (e *Engine) UpdateParameters(p params.Payload) error {
	return e.SetParams(p.Resolve())
}

// Status reports the renderer's view of playback.
func (e *Engine) Status() Status {
	e.mu.Lock()
	r, variant, mode := e.r, e.variant, e.mode
	e.mu.Unlock()
	if r == nil {
		return Status{}
	}
	st := r.status()
	return Status{
		Variant:  variant,
		Mode:     mode,
		Loaded:   st.loaded,
		Playing:  st.playing,
		Position: audio.FramesToDuration(st.cursor, st.rate),
		Duration: audio.FramesToDuration(st.total, st.rate),
	}
}

// Variant returns the renderer chosen by Initialize, or "" before it.
func (e *Engine) Variant() device.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variant
}

// Session describes the loaded audio.
func (e *Engine) Session() audio.Session {
	st := e.Status()
	s := audio.Session{Mode: st.Mode, Duration: st.Duration}
	e.mu.Lock()
	if e.sink != nil {
		info := e.sink.Info()
		s.SampleRate, s.Channels = info.SampleRate, info.Channels
	}
	e.mu.Unlock()
	return s
}

// Close stops the output device and releases the loaded buffers.
func (e *Engine) Close() error {
	e.mu.Lock()
	sink, quit := e.sink, e.quit
	e.sink, e.r, e.quit = nil, nil, nil
	e.mu.Unlock()

	if quit == nil {
		return nil
	}
	close(quit)
	e.wg.Wait()
	return sink.Close()
}
