package controller

import (
	"errors"

	"github.com/satindergrewal/abmix/internal/engine"
	"github.com/satindergrewal/abmix/internal/events"
	"github.com/satindergrewal/abmix/internal/transport"
)

// OnEngineEvent publishes a local engine event. Use it as engine.Config.OnEvent.
func (c *Controller) OnEngineEvent(ev engine.Event) {
	out := events.Event{
		Backend:  string(KindLocal),
		Position: engineNormalized(ev),
		Seconds:  ev.Position.Seconds(),
		Duration: ev.Duration.Seconds(),
		Peak:     ev.Peak,
	}
	switch ev.Kind {
	case engine.EventPosition:
		out.Kind = events.KindPosition
		out.Playing = true
	case engine.EventEnded:
		out.Kind = events.KindEnded
	case engine.EventError:
		out.Kind = events.KindError
		if ev.Err != nil {
			out.Message = ev.Err.Error()
		}
	}
	c.publish(out)
}

func engineNormalized(ev engine.Event) float64 {
	return engine.Status{Position: ev.Position, Duration: ev.Duration}.Normalized()
}

// OnTransportEvent publishes a remote stream event. Use it as
// transport.Options.OnEvent.
func (c *Controller) OnTransportEvent(ev transport.Event) {
	kind := events.KindPosition
	if ev.Kind == transport.EventEnded {
		kind = events.KindEnded
	}
	c.publish(events.Event{
		Kind:     kind,
		Backend:  string(KindRemote),
		Position: ev.Position,
		Seconds:  ev.Position * ev.Duration.Seconds(),
		Duration: ev.Duration.Seconds(),
		Playing:  ev.Playing,
	})
}

// OnTransportError publishes a remote error. Use it as
// transport.Options.OnError. A lost connection leaves no active remote
// session until Begin is called again.
func (c *Controller) OnTransportError(err error) {
	if errors.Is(err, transport.ErrConnection) {
		c.mu.Lock()
		for _, s := range []**session{&c.stem, &c.standard} {
			if *s != nil && (*s).kind == KindRemote {
				*s = nil
			}
		}
		c.mu.Unlock()
	}
	c.publish(events.Event{Kind: events.KindError, Backend: string(KindRemote), Message: err.Error()})
}
