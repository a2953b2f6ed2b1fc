// Package controller puts one control surface over the remote and local
// playback backends.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/engine"
	"github.com/satindergrewal/abmix/internal/events"
	"github.com/satindergrewal/abmix/internal/params"
	"github.com/satindergrewal/abmix/internal/transport"
)

var (
	ErrNoActiveBackend = errors.New("no active playback backend")
	ErrBadRequest      = errors.New("invalid session request")
)

// Backend is the command surface shared by every playback backend.
type Backend interface {
	Play() error
	Pause() error
	Stop() error
	Seek(p float64) error
	UpdateParameters(p params.Payload) error
}

// Remote is satisfied by *transport.Client.
type Remote interface {
	Backend
	Connect(ctx context.Context, sessionID string) error
	Disconnect()
	Status() transport.Status
}

// Local is satisfied by *engine.Engine.
type Local interface {
	Backend
	Initialize() bool
	Load(ctx context.Context, original, processed []byte) error
	LoadStem(ctx context.Context, vocalOriginal, vocalProcessed, instrumentalOriginal, instrumentalProcessed []byte) error
	Status() engine.Status
}

// Fetcher resolves audio references to bytes.
type Fetcher interface {
	FetchAll(ctx context.Context, refs ...string) ([][]byte, error)
}

// Kind names a backend.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
	KindAuto   Kind = "auto" // remote, falling back to local on connection failure
)

// Request describes a session to begin.
type Request struct {
	SessionID string
	Mode      audio.Mode
	Backend   Kind
	// Sources are the audio references for local playback: original and
	// processed, or vocal original, vocal processed, instrumental original
	// and instrumental processed in stem mode.
	Sources []string
}

// Config wires a Controller. Remote, Local and Fetch may be nil when that
// path is unavailable.
type Config struct {
	Params *params.Store
	Remote Remote
	Local  Local
	Fetch  Fetcher
	Events *events.Broadcaster
}

type session struct {
	id      string
	mode    audio.Mode
	kind    Kind
	backend Backend
}

// Status is the controller's diagnostic view of the active session.
type Status struct {
	Mode      string        `json:"mode,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Backend   Kind          `json:"backend,omitempty"`
	Connected bool          `json:"connected"`
	Playing   bool          `json:"playing"`
	Position  float64       `json:"position"`
	Duration  time.Duration `json:"duration"`
	Seeking   bool          `json:"seeking,omitempty"`
}

// Controller is the single source of truth for which backend is playing.
type Controller struct {
	cfg  Config
	feed chan events.Event

	mu       sync.Mutex
	standard *session
	stem     *session
}

// New returns a controller. Call Run to start event delivery.
func New(cfg Config) *Controller {
	if cfg.Params == nil {
		cfg.Params = params.NewStore(params.Default())
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBroadcaster()
	}
	return &Controller{cfg: cfg, feed: make(chan events.Event, 256)}
}

// Params returns the shared parameter model.
func (c *Controller) Params() *params.Store { return c.cfg.Params }

// Events returns the broadcaster status events are published on.
func (c *Controller) Events() *events.Broadcaster { return c.cfg.Events }

// Run forwards backend events to the broadcaster until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	c.cfg.Events.Run(ctx, c.feed)
}

// Begin starts a session on the requested backend and makes it active.
// A session of the same mode that was already active is stopped first.
func (c *Controller) Begin(ctx context.Context, req Request) error {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.Backend == "" {
		req.Backend = KindAuto
	}

	var (
		s   *session
		err error
	)
	switch req.Backend {
	case KindRemote:
		s, err = c.beginRemote(ctx, req)
	case KindLocal:
		s, err = c.beginLocal(ctx, req)
	case KindAuto:
		s, err = c.beginRemote(ctx, req)
		if err != nil && len(req.Sources) > 0 && c.cfg.Local != nil {
			log.Printf("controller: remote session unavailable, mixing locally: %v", err)
			s, err = c.beginLocal(ctx, req)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrBadRequest, req.Backend)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	prev := c.slot(req.Mode)
	if req.Mode == audio.Stem {
		c.stem = s
		if c.standard != nil && c.standard.backend == s.backend {
			c.standard = nil
		}
	} else {
		c.standard = s
		if c.stem != nil && c.stem.backend == s.backend {
			c.stem = nil
		}
	}
	c.mu.Unlock()
	if prev != nil && prev.backend != s.backend {
		prev.backend.Stop()
	}

	log.Printf("controller: %s session %s on %s backend", s.mode, s.id, s.kind)
	c.publish(events.Event{Kind: events.KindState, Backend: string(s.kind)})
	return c.SendParameters()
}

func (c *Controller) slot(m audio.Mode) *session {
	if m == audio.Stem {
		return c.stem
	}
	return c.standard
}

func (c *Controller) beginRemote(ctx context.Context, req Request) (*session, error) {
	if c.cfg.Remote == nil {
		return nil, fmt.Errorf("%w: remote backend not configured", transport.ErrConnection)
	}
	if err := c.cfg.Remote.Connect(ctx, req.SessionID); err != nil {
		return nil, err
	}
	return &session{id: req.SessionID, mode: req.Mode, kind: KindRemote, backend: c.cfg.Remote}, nil
}

func (c *Controller) beginLocal(ctx context.Context, req Request) (*session, error) {
	if c.cfg.Local == nil || c.cfg.Fetch == nil {
		return nil, fmt.Errorf("%w: local backend not configured", ErrBadRequest)
	}
	if n := req.Mode.Sources(); len(req.Sources) != n {
		return nil, fmt.Errorf("%w: %s session needs %d sources, got %d", ErrBadRequest, req.Mode, n, len(req.Sources))
	}
	if !c.cfg.Local.Initialize() {
		return nil, fmt.Errorf("local renderer: %w", engine.ErrNotInitialized)
	}

	data, err := c.cfg.Fetch.FetchAll(ctx, req.Sources...)
	if err != nil {
		return nil, err
	}
	if req.Mode == audio.Stem {
		err = c.cfg.Local.LoadStem(ctx, data[0], data[1], data[2], data[3])
	} else {
		err = c.cfg.Local.Load(ctx, data[0], data[1])
	}
	if err != nil {
		return nil, err
	}
	return &session{id: req.SessionID, mode: req.Mode, kind: KindLocal, backend: c.cfg.Local}, nil
}

// End stops the active sessions and forgets them.
func (c *Controller) End() {
	c.mu.Lock()
	sessions := []*session{c.stem, c.standard}
	c.stem, c.standard = nil, nil
	c.mu.Unlock()

	for _, s := range sessions {
		if s == nil {
			continue
		}
		s.backend.Stop()
		if s.kind == KindRemote {
			c.cfg.Remote.Disconnect()
		}
	}
	c.publish(events.Event{Kind: events.KindState})
}

// live reports whether s is still the session its backend is serving.
func (c *Controller) live(s *session) bool {
	if s == nil {
		return false
	}
	switch s.kind {
	case KindRemote:
		st := c.cfg.Remote.Status()
		return st.Connected && st.SessionID == s.id
	case KindLocal:
		st := c.cfg.Local.Status()
		return st.Loaded && st.Mode == s.mode
	}
	return false
}

// active returns the session commands go to. A stem session wins over a
// standard one.
func (c *Controller) active() *session {
	c.mu.Lock()
	stem, standard := c.stem, c.standard
	c.mu.Unlock()
	if c.live(stem) {
		return stem
	}
	if c.live(standard) {
		return standard
	}
	return nil
}

// ActiveBackend returns the backend commands go to, or nil.
func (c *Controller) ActiveBackend() Backend {
	if s := c.active(); s != nil {
		return s.backend
	}
	return nil
}

func (c *Controller) delegate(op string, fn func(Backend) error) error {
	s := c.active()
	if s == nil {
		log.Printf("controller: %s ignored: %v", op, ErrNoActiveBackend)
		return ErrNoActiveBackend
	}
	if err := fn(s.backend); err != nil {
		log.Printf("controller: %s on %s backend: %v", op, s.kind, err)
		return err
	}
	c.publish(c.stateEvent())
	return nil
}

func (c *Controller) Play() error  { return c.delegate("play", Backend.Play) }
func (c *Controller) Pause() error { return c.delegate("pause", Backend.Pause) }
func (c *Controller) Stop() error  { return c.delegate("stop", Backend.Stop) }

// Seek moves the active backend to p, clamped to [0,1].
func (c *Controller) Seek(p float64) error {
	p = audio.ClampUnit(p)
	return c.delegate("seek", func(b Backend) error { return b.Seek(p) })
}

// SendParameters forwards the current parameter model, shaped for the
// active session's mode.
func (c *Controller) SendParameters() error {
	s := c.active()
	if s == nil {
		log.Printf("controller: parameters not sent: %v", ErrNoActiveBackend)
		return ErrNoActiveBackend
	}
	if err := s.backend.UpdateParameters(payloadFor(s.mode, c.cfg.Params.Snapshot())); err != nil {
		log.Printf("controller: parameters on %s backend: %v", s.kind, err)
		return err
	}
	return nil
}

// UpdateParams applies a partial update to the parameter model and
// forwards the result. The model keeps the change even when no backend
// is active.
func (c *Controller) UpdateParams(p params.Patch) (params.Set, error) {
	set := c.cfg.Params.Update(p.Apply)
	if err := c.SendParameters(); err != nil {
		return set, err
	}
	return set, nil
}

func payloadFor(m audio.Mode, s params.Set) params.Payload {
	if m == audio.Stem {
		return params.StemFrom(s)
	}
	return params.FlatFrom(s)
}

// Status queries the active backend.
func (c *Controller) Status() Status {
	s := c.active()
	if s == nil {
		return Status{}
	}
	st := Status{Mode: s.mode.String(), SessionID: s.id, Backend: s.kind}
	switch s.kind {
	case KindRemote:
		rs := c.cfg.Remote.Status()
		st.Connected = rs.Connected
		st.Playing = rs.Playing
		st.Position = rs.Position
		st.Duration = rs.Duration
		st.Seeking = rs.Seeking
	case KindLocal:
		ls := c.cfg.Local.Status()
		st.Connected = ls.Loaded
		st.Playing = ls.Playing
		st.Position = ls.Normalized()
		st.Duration = ls.Duration
	}
	return st
}

func (c *Controller) stateEvent() events.Event {
	st := c.Status()
	return events.Event{
		Kind:     events.KindState,
		Backend:  string(st.Backend),
		Position: st.Position,
		Seconds:  st.Position * st.Duration.Seconds(),
		Duration: st.Duration.Seconds(),
		Playing:  st.Playing,
	}
}

// publish queues ev for the broadcaster without blocking.
func (c *Controller) publish(ev events.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case c.feed <- ev:
	default:
	}
}
