package engine

import "time"

// EventKind classifies engine events.
type EventKind int

const (
	EventPosition EventKind = iota
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPosition:
		return "position"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is delivered to Config.OnEvent off the audio goroutine.
type Event struct {
	Kind     EventKind
	Position time.Duration
	Duration time.Duration
	Peak     float64 // largest absolute sample of the last rendered block
	Err      error
}
