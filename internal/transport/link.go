package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is one message received over a Link.
type Frame struct {
	Binary bool
	Data   []byte
}

// Link is a duplex message connection to the remote mixer.
type Link interface {
	// Send writes one JSON text message. Safe for concurrent use.
	Send(data []byte) error
	// Recv blocks for the next message. It is called from one goroutine.
	Recv() (Frame, error)
	Close() error
}

// Dialer opens a Link for a session. The dial must honor ctx's deadline.
type Dialer func(ctx context.Context, sessionID string) (Link, error)

// sessionURL appends the session id as the last path segment of base.
func sessionURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", base, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(sessionID)
	return u.String(), nil
}

type wsLink struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialWebSocket returns a Dialer for ws:// or wss:// mixer endpoints.
func DialWebSocket(baseURL string) Dialer {
	return func(ctx context.Context, sessionID string) (Link, error) {
		u, err := sessionURL(baseURL, sessionID)
		if err != nil {
			return nil, err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u, err)
		}
		return &wsLink{conn: conn}, nil
	}
}

func (l *wsLink) Send(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) Recv() (Frame, error) {
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		switch mt {
		case websocket.TextMessage:
			return Frame{Data: data}, nil
		case websocket.BinaryMessage:
			return Frame{Binary: true, Data: data}, nil
		}
	}
}

func (l *wsLink) Close() error {
	l.writeMu.Lock()
	l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.writeMu.Unlock()
	return l.conn.Close()
}
