// Package events fans playback events out to any number of listeners.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind names an event on the wire.
type Kind string

const (
	KindPosition Kind = "position"
	KindState    Kind = "state"
	KindEnded    Kind = "ended"
	KindError    Kind = "error"
)

// Event is one playback notification. Position is normalized to [0,1].
type Event struct {
	Kind     Kind      `json:"kind"`
	Backend  string    `json:"backend,omitempty"`
	Position float64   `json:"position"`
	Seconds  float64   `json:"seconds"`
	Duration float64   `json:"duration"` // seconds
	Playing  bool      `json:"playing"`
	Peak     float64   `json:"peak,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// ListenerBuffer is how many events a listener may fall behind before
// events are dropped for it.
const ListenerBuffer = 64

// Broadcaster fans out events from one source to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives events from the broadcaster.
type Listener struct {
	C    chan Event
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan Event, ListenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Calling it twice
// is harmless.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers ev to every listener without blocking. Slow listeners
// miss the event.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- ev:
		default:
		}
	}
}

// Run publishes everything read from source until ctx is done or source
// is closed.
func (b *Broadcaster) Run(ctx context.Context, source <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source:
			if !ok {
				return
			}
			b.Publish(ev)
		}
	}
}
