package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satindergrewal/abmix/internal/params"
)

var (
	ErrConnection       = errors.New("mixer connection failed")
	ErrNotConnected     = errors.New("not connected to mixer")
	ErrMalformedMessage = errors.New("malformed mixer message")
	ErrRemote           = errors.New("mixer reported an error")
)

// Outbound message types.
const (
	TypePlay       = "play"
	TypePause      = "pause"
	TypeStop       = "stop"
	TypeSeek       = "seek"
	TypeParameters = "parameters"
)

// Inbound message types.
const (
	TypeAudioChunk        = "audio_chunk"
	TypeStatus            = "status"
	TypeSeeked            = "seeked"
	TypePlaybackEnded     = "playback_ended"
	TypeParametersUpdated = "parameters_updated"
	TypeError             = "error"
)

// Control is a message sent to the remote mixer.
type Control struct {
	Type     string         `json:"type"`
	Position *float64       `json:"position,omitempty"`
	Params   params.Payload `json:"params,omitempty"`
}

func seekMessage(p float64) Control {
	return Control{Type: TypeSeek, Position: &p}
}

// Inbound is any JSON message from the remote mixer. Fields not carried by
// a given type stay at their zero value.
type Inbound struct {
	Type       string   `json:"type"`
	Position   *float64 `json:"position,omitempty"`
	Playing    *bool    `json:"playing,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Channels   int      `json:"channels,omitempty"`
	Duration   float64  `json:"duration,omitempty"` // seconds
	Message    string   `json:"message,omitempty"`
}

// ParseInbound decodes one text frame. Failures wrap ErrMalformedMessage.
func ParseInbound(data []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if m.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return m, nil
}
