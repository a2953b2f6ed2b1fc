// Package transport streams a session from a remote mixer.
//
// The client keeps one duplex link per session. Control messages go out as
// JSON text; the mixer answers with JSON status messages and raw PCM16
// binary frames, which are placed gaplessly on a Timeline pulled by the
// local output device.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/device"
	"github.com/satindergrewal/abmix/internal/params"
)

// DefaultConnectTimeout bounds the connect handshake.
const DefaultConnectTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	Dial           Dialer
	ConnectTimeout time.Duration
	Seek           SeekTiming
	Lead           time.Duration // scheduling epsilon ahead of the output clock

	// OnError receives remote error messages (wrapping ErrRemote) and
	// connection loss (wrapping ErrConnection). The link survives the former.
	OnError func(error)
	// OnEvent receives position and end-of-stream updates.
	OnEvent func(Event)
}

// EventKind classifies client events.
type EventKind int

const (
	EventPosition EventKind = iota
	EventEnded
)

func (k EventKind) String() string {
	if k == EventEnded {
		return "ended"
	}
	return "position"
}

// Event reports playback progress from the remote mixer.
type Event struct {
	Kind     EventKind
	Position float64 // [0,1]
	Duration time.Duration
	Playing  bool
}

// Status is a point-in-time view of the client.
type Status struct {
	SessionID  string
	Connected  bool
	Playing    bool
	Seeking    bool
	SeekState  SeekState
	Position   float64 // [0,1]
	Duration   time.Duration
	SampleRate int
	Channels   int
	Dropped    int64 // binary frames discarded during seeks
}

// Client is the remote streaming backend.
type Client struct {
	opts     Options
	sink     device.Sink
	timeline *Timeline
	seek     *seekMachine

	mu        sync.Mutex
	link      Link
	sessionID string
	started   bool
	playing   bool
	position  float64
	duration  time.Duration
	rate      int
	channels  int
	warned    bool

	dropped     atomic.Int64
	dropLogged  atomic.Bool
	sinkRate    int
	sinkChannel int

	// admitted, when set, runs after a chunk passes the seek gate and
	// before it is scheduled.
	admitted func()
}

// NewClient returns a client that plays through sink. The client owns the
// sink from now on and closes it in Close.
func NewClient(sink device.Sink, opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Lead <= 0 {
		opts.Lead = 10 * time.Millisecond
	}
	info := sink.Info()
	c := &Client{
		opts:        opts,
		sink:        sink,
		timeline:    NewTimeline(info.SampleRate, info.Channels, opts.Lead),
		sinkRate:    info.SampleRate,
		sinkChannel: info.Channels,
	}
	c.seek = newSeekMachine(opts.Seek, c.send, c.timeline.Flush)
	return c
}

// Timeline exposes the scheduler the output device pulls from.
func (c *Client) Timeline() *Timeline { return c.timeline }

// Connect opens a link for sessionID. It fails with ErrConnection when the
// handshake does not complete within the connect timeout. An existing link
// is closed first.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	if c.opts.Dial == nil {
		return fmt.Errorf("%w: no dialer configured", ErrConnection)
	}
	c.Disconnect()

	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	l, err := c.opts.Dial(dctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c.mu.Lock()
	if !c.started {
		if err := c.sink.Start(c.timeline); err != nil {
			c.mu.Unlock()
			l.Close()
			return err
		}
		c.started = true
	}
	c.link = l
	c.sessionID = sessionID
	c.playing = false
	c.position = 0
	c.duration = 0
	c.rate, c.channels = c.sinkRate, c.sinkChannel
	c.mu.Unlock()

	c.dropped.Store(0)
	go c.readLoop(l)
	log.Printf("transport: connected to session %s", sessionID)
	return nil
}

// Disconnect drops the link and any scheduled audio. The output device
// stays open for the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()

	c.seek.cancel()
	c.timeline.Flush()
	if l != nil {
		l.Close()
	}
}

// Close drops the link and releases the output device.
func (c *Client) Close() error {
	c.Disconnect()
	return c.sink.Close()
}

func (c *Client) send(m Control) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return l.Send(data)
}

// Play asks the mixer to stream and wakes the output device. During a seek
// it only records that playback should resume when the seek completes.
func (c *Client) Play() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.sink.Resume(); err != nil {
		return err
	}
	c.setPlaying(true)
	if c.seek.setResume(true) {
		return nil
	}
	return c.send(Control{Type: TypePlay})
}

// Pause asks the mixer to stop streaming at the current position.
func (c *Client) Pause() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	c.seek.setResume(false)
	c.setPlaying(false)
	return c.send(Control{Type: TypePause})
}

// Stop halts the stream, rewinds to the start and drops scheduled audio.
func (c *Client) Stop() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	c.seek.cancel()
	c.timeline.Flush()
	c.mu.Lock()
	c.playing = false
	c.position = 0
	c.mu.Unlock()
	return c.send(Control{Type: TypeStop})
}

// Seek moves the stream to p, clamped to [0,1]. It returns once the seek
// has started; the stop, seek and play messages follow on timers, and audio
// received until the mixer confirms is discarded.
func (c *Client) Seek(p float64) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	p = audio.ClampUnit(p)

	c.mu.Lock()
	wasPlaying := c.playing
	c.position = p
	c.mu.Unlock()

	c.dropLogged.Store(false)
	c.seek.begin(p, wasPlaying)
	return nil
}

// UpdateParameters sends a parameter payload. The mixer's acknowledgement
// is only logged.
func (c *Client) UpdateParameters(p params.Payload) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.send(Control{Type: TypeParameters, Params: p})
}

// Connected reports whether a live link exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

func (c *Client) setPlaying(v bool) {
	c.mu.Lock()
	c.playing = v
	c.mu.Unlock()
}

// Status reports the client's view of the remote stream.
func (c *Client) Status() Status {
	state := c.seek.current()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		SessionID:  c.sessionID,
		Connected:  c.link != nil,
		Playing:    c.playing,
		Seeking:    state == SeekStopping || state == SeekAwaitingConfirm,
		SeekState:  state,
		Position:   c.position,
		Duration:   c.duration,
		SampleRate: c.rate,
		Channels:   c.channels,
		Dropped:    c.dropped.Load(),
	}
}

func (c *Client) readLoop(l Link) {
	for {
		f, err := l.Recv()
		if err != nil {
			c.lost(l, err)
			return
		}
		if f.Binary {
			c.handleAudio(f.Data)
		} else {
			c.handleMessage(f.Data)
		}
	}
}

// lost marks the client unusable after a link failure. Links closed by the
// client itself are already detached and report nothing.
func (c *Client) lost(l Link, err error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.playing = false
	c.mu.Unlock()

	c.seek.cancel()
	l.Close()
	log.Printf("transport: connection lost: %v", err)
	c.reportError(fmt.Errorf("%w: %w", ErrConnection, err))
}

func (c *Client) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func (c *Client) emit(ev Event) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

func (c *Client) discard() {
	n := c.dropped.Add(1)
	if !c.dropLogged.Swap(true) {
		log.Printf("transport: discarding audio until seek is confirmed (%d dropped so far)", n)
	}
}

// handleAudio schedules one binary chunk. The timeline epoch is read before
// the seek gate: a seek begun after the gate flushes the timeline, which
// bumps the epoch and makes the chunk's schedule fail.
func (c *Client) handleAudio(data []byte) {
	epoch := c.timeline.Epoch()
	if c.seek.discarding() {
		c.discard()
		return
	}
	if c.admitted != nil {
		c.admitted()
	}

	c.mu.Lock()
	rate, channels := c.rate, c.channels
	warn := rate != c.sinkRate && !c.warned
	if warn {
		c.warned = true
	}
	c.mu.Unlock()

	planes := audio.DeinterleavePCM16(data, max(1, channels))
	if len(planes) == 0 || len(planes[0]) == 0 {
		return
	}
	if rate != c.sinkRate {
		if warn {
			log.Printf("transport: stream is %d Hz, resampling to %d Hz", rate, c.sinkRate)
		}
		b, err := audio.Resample(audio.NewBuffer(rate, planes), c.sinkRate)
		if err != nil {
			log.Printf("transport: dropping chunk: %v", err)
			return
		}
		planes = b.Data
	}
	if _, _, ok := c.timeline.ScheduleFrom(epoch, planes); !ok {
		c.discard()
	}
}

func (c *Client) handleMessage(data []byte) {
	m, err := ParseInbound(data)
	if err != nil {
		log.Printf("transport: %v", err)
		return
	}

	switch m.Type {
	case TypeAudioChunk:
		c.mu.Lock()
		if m.SampleRate > 0 {
			c.rate = m.SampleRate
		}
		if m.Channels > 0 {
			c.channels = m.Channels
		}
		if m.Duration > 0 {
			c.duration = time.Duration(m.Duration * float64(time.Second))
		}
		c.mu.Unlock()
		c.trackPosition(m.Position, nil)

	case TypeStatus:
		c.trackPosition(m.Position, m.Playing)

	case TypeSeeked:
		if c.seek.confirm(m.Position) && m.Position != nil {
			c.mu.Lock()
			c.position = audio.ClampUnit(*m.Position)
			c.mu.Unlock()
		}

	case TypePlaybackEnded:
		c.mu.Lock()
		c.playing = false
		c.position = 1
		ev := Event{Kind: EventEnded, Position: 1, Duration: c.duration}
		c.mu.Unlock()
		c.emit(ev)

	case TypeParametersUpdated:
		log.Printf("transport: mixer applied parameters")

	case TypeError:
		c.reportError(fmt.Errorf("%w: %s", ErrRemote, m.Message))

	default:
		log.Printf("transport: ignoring %q message", m.Type)
	}
}

// trackPosition applies a reported position unless it predates a seek in
// flight.
func (c *Client) trackPosition(pos *float64, playing *bool) {
	if pos == nil && playing == nil {
		return
	}
	if c.seek.discarding() {
		return
	}
	c.mu.Lock()
	if pos != nil {
		c.position = audio.ClampUnit(*pos)
	}
	if playing != nil {
		c.playing = *playing
	}
	ev := Event{Kind: EventPosition, Position: c.position, Duration: c.duration, Playing: c.playing}
	c.mu.Unlock()
	c.emit(ev)
}
