package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/satindergrewal/abmix/internal/audio"
	"github.com/satindergrewal/abmix/internal/device"
	"github.com/satindergrewal/abmix/internal/device/devicetest"
)

// received is a control message as the fake mixer decodes it.
type received struct {
	Type     string          `json:"type"`
	Position *float64        `json:"position"`
	Params   json.RawMessage `json:"params"`
}

// fakeMixer is a WebSocket mixer endpoint. Tests write to the accepted
// connection from their own goroutine; the handler only reads.
type fakeMixer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	got   chan received

	mu       sync.Mutex
	sessions []string
}

func newFakeMixer(t *testing.T) *fakeMixer {
	t.Helper()
	m := &fakeMixer{
		conns: make(chan *websocket.Conn, 4),
		got:   make(chan received, 64),
	}
	var upgrader websocket.Upgrader
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.mu.Lock()
		m.sessions = append(m.sessions, strings.TrimPrefix(r.URL.Path, "/ws/"))
		m.mu.Unlock()
		m.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var c received
			if json.Unmarshal(data, &c) == nil {
				m.got <- c
			}
		}
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *fakeMixer) url() string {
	return "ws" + strings.TrimPrefix(m.srv.URL, "http") + "/ws"
}

func (m *fakeMixer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-m.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("mixer never accepted a connection")
		return nil
	}
}

func (m *fakeMixer) next(t *testing.T) received {
	t.Helper()
	select {
	case c := <-m.got:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no control message received")
		return received{}
	}
}

func (m *fakeMixer) expect(t *testing.T, typ string) received {
	t.Helper()
	c := m.next(t)
	if c.Type != typ {
		t.Fatalf("message type = %q, want %q", c.Type, typ)
	}
	return c
}

func (m *fakeMixer) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-m.got:
		t.Fatalf("unexpected %q message", c.Type)
	case <-time.After(d):
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write json: %v", err)
	}
}

func sendText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		t.Fatalf("write text: %v", err)
	}
}

// sendPCM writes frames of interleaved stereo PCM16 where left = v and
// right = -v.
func sendPCM(t *testing.T, conn *websocket.Conn, vals ...int16) {
	t.Helper()
	s := make([]int16, 0, 2*len(vals))
	for _, v := range vals {
		s = append(s, v, -v)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, audio.SamplesToBytes(s)); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

const testRate = 1000

type clientHarness struct {
	c      *Client
	sink   *devicetest.Sink
	errs   chan error
	events chan Event
}

func newClientHarness(t *testing.T, dial Dialer, timing SeekTiming) *clientHarness {
	t.Helper()
	h := &clientHarness{
		sink:   devicetest.New(device.KindRealtime, testRate, 10),
		errs:   make(chan error, 16),
		events: make(chan Event, 64),
	}
	h.c = NewClient(h.sink, Options{
		Dial:           dial,
		ConnectTimeout: time.Second,
		Seek:           timing,
		Lead:           10 * time.Millisecond,
		OnError:        func(err error) { h.errs <- err },
		OnEvent:        func(ev Event) { h.events <- ev },
	})
	t.Cleanup(func() { h.c.Close() })
	return h
}
