package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
)

// rtcInbox buffers data channel messages between pion's callback goroutine
// and Recv.
const rtcInbox = 256

var errLinkClosed = errors.New("link closed")

// rtcLink carries the mixer protocol over an ordered WebRTC data channel.
// Text messages are JSON control/status, binary messages are PCM frames.
type rtcLink struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	inbox  chan Frame
	closed chan struct{}
	once   sync.Once
	err    error
}

func newRTCLink(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *rtcLink {
	return &rtcLink{
		pc:     pc,
		dc:     dc,
		inbox:  make(chan Frame, rtcInbox),
		closed: make(chan struct{}),
	}
}

// WebRTCOptions tunes DialWebRTC. The zero value uses http.DefaultClient
// and a default pion API.
type WebRTCOptions struct {
	HTTPClient    *http.Client
	API           *webrtc.API
	Configuration webrtc.Configuration
}

// DialWebRTC returns a Dialer that negotiates a data channel by POSTing an
// SDP offer to offerURL/<session> and applying the returned answer.
func DialWebRTC(offerURL string, opts WebRTCOptions) Dialer {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	api := opts.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	return func(ctx context.Context, sessionID string) (Link, error) {
		u, err := sessionURL(offerURL, sessionID)
		if err != nil {
			return nil, err
		}

		pc, err := api.NewPeerConnection(opts.Configuration)
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		ordered := true
		dc, err := pc.CreateDataChannel("mixer", &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}

		l := newRTCLink(pc, dc)
		opened := make(chan struct{})
		dc.OnOpen(func() { close(opened) })
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			l.deliver(Frame{Binary: !msg.IsString, Data: msg.Data})
		})
		dc.OnClose(func() { l.fail(io.EOF) })
		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
				l.fail(fmt.Errorf("peer connection %s", s))
			}
		})

		offer, err := pc.CreateOffer(nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create offer: %w", err)
		}
		gathered := webrtc.GatheringCompletePromise(pc)
		if err := pc.SetLocalDescription(offer); err != nil {
			pc.Close()
			return nil, fmt.Errorf("set local description: %w", err)
		}
		select {
		case <-gathered:
		case <-ctx.Done():
			pc.Close()
			return nil, ctx.Err()
		}

		answer, err := postOffer(ctx, client, u, *pc.LocalDescription())
		if err != nil {
			pc.Close()
			return nil, err
		}
		if err := pc.SetRemoteDescription(answer); err != nil {
			pc.Close()
			return nil, fmt.Errorf("set remote description: %w", err)
		}

		select {
		case <-opened:
			return l, nil
		case <-l.closed:
			pc.Close()
			return nil, l.err
		case <-ctx.Done():
			pc.Close()
			return nil, ctx.Err()
		}
	}
}

func postOffer(ctx context.Context, client *http.Client, u string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	var answer webrtc.SessionDescription
	body, err := json.Marshal(offer)
	if err != nil {
		return answer, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return answer, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return answer, fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return answer, fmt.Errorf("post offer: status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return answer, fmt.Errorf("decode answer: %w", err)
	}
	return answer, nil
}

func (l *rtcLink) deliver(f Frame) {
	select {
	case l.inbox <- f:
	case <-l.closed:
	}
}

func (l *rtcLink) fail(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.closed)
	})
}

func (l *rtcLink) Send(data []byte) error {
	select {
	case <-l.closed:
		return l.err
	default:
	}
	return l.dc.SendText(string(data))
}

// Recv returns queued messages before reporting the close error.
func (l *rtcLink) Recv() (Frame, error) {
	select {
	case f := <-l.inbox:
		return f, nil
	default:
	}
	select {
	case f := <-l.inbox:
		return f, nil
	case <-l.closed:
		return Frame{}, l.err
	}
}

func (l *rtcLink) Close() error {
	l.fail(errLinkClosed)
	if l.pc == nil {
		return nil
	}
	return l.pc.Close()
}
