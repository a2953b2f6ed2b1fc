package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/abmix/internal/controller"
	"github.com/satindergrewal/abmix/internal/events"
	"github.com/satindergrewal/abmix/internal/params"
	"github.com/satindergrewal/abmix/internal/transport"
)

type stubRemote struct {
	mu        sync.Mutex
	connected bool
	playing   bool
	seeks     []float64
	payloads  int
	session   string
}

func (s *stubRemote) Play() error {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
	return nil
}

func (s *stubRemote) Pause() error {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	return nil
}

func (s *stubRemote) Stop() error { return s.Pause() }

func (s *stubRemote) Seek(p float64) error {
	s.mu.Lock()
	s.seeks = append(s.seeks, p)
	s.mu.Unlock()
	return nil
}

func (s *stubRemote) UpdateParameters(params.Payload) error {
	s.mu.Lock()
	s.payloads++
	s.mu.Unlock()
	return nil
}

func (s *stubRemote) Connect(_ context.Context, id string) error {
	s.mu.Lock()
	s.connected, s.session = true, id
	s.mu.Unlock()
	return nil
}

func (s *stubRemote) Disconnect() {}

func (s *stubRemote) Status() transport.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transport.Status{SessionID: s.session, Connected: s.connected, Playing: s.playing, Position: 0.5, Duration: 10 * time.Second}
}

func newAPI(t *testing.T) (*httptest.Server, *controller.Controller, *stubRemote) {
	t.Helper()
	remote := &stubRemote{}
	ctl := controller.New(controller.Config{Remote: remote})
	srv := httptest.NewServer(New(ctl))
	t.Cleanup(srv.Close)
	return srv, ctl, remote
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestCommandsWithoutSession(t *testing.T) {
	srv, _, _ := newAPI(t)

	for _, path := range []string{"/api/play", "/api/pause", "/api/stop"} {
		code, body := do(t, http.MethodPost, srv.URL+path, "")
		if code != http.StatusConflict || body["ok"] != false {
			t.Errorf("POST %s = %d %v, want 409", path, code, body)
		}
	}

	code, body := do(t, http.MethodGet, srv.URL+"/api/status", "")
	if code != http.StatusOK || body["connected"] != false {
		t.Errorf("status = %d %v", code, body)
	}
}

func TestMethodChecks(t *testing.T) {
	srv, _, _ := newAPI(t)
	tests := []struct{ method, path string }{
		{http.MethodGet, "/api/play"},
		{http.MethodGet, "/api/seek"},
		{http.MethodPost, "/api/status"},
		{http.MethodDelete, "/api/params"},
	}
	for _, tt := range tests {
		if code, _ := do(t, tt.method, srv.URL+tt.path, ""); code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tt.method, tt.path, code)
		}
	}
}

func TestParamsEndpoint(t *testing.T) {
	srv, ctl, remote := newAPI(t)

	code, body := do(t, http.MethodPost, srv.URL+"/api/params", `{"blend_ratio": 2, "master_gain_db": -1.5}`)
	if code != http.StatusOK || body["sent"] != false {
		t.Fatalf("POST params = %d %v", code, body)
	}
	if got := ctl.Params().Snapshot(); got.BlendRatio != 1 || got.MasterGainDB != -1.5 {
		t.Errorf("stored params = %+v", got)
	}

	if code, _ := do(t, http.MethodPost, srv.URL+"/api/params", `{}`); code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", code)
	}
	if code, _ := do(t, http.MethodPost, srv.URL+"/api/params", `{"blend_ratio":`); code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", code)
	}

	if err := ctl.Begin(context.Background(), controller.Request{Backend: controller.KindRemote}); err != nil {
		t.Fatal(err)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/params", `{"limiter_enabled": false}`)
	if code != http.StatusOK || body["sent"] != true {
		t.Fatalf("POST params with session = %d %v", code, body)
	}
	if remote.payloads != 2 {
		t.Errorf("payloads sent = %d, want 2 (Begin and update)", remote.payloads)
	}

	code, body = do(t, http.MethodGet, srv.URL+"/api/params", "")
	if code != http.StatusOK || body["limiter_enabled"] != false || body["blend_ratio"] != 1.0 {
		t.Errorf("GET params = %d %v", code, body)
	}
}

func TestTransportEndpoints(t *testing.T) {
	srv, ctl, remote := newAPI(t)
	if err := ctl.Begin(context.Background(), controller.Request{SessionID: "s9", Backend: controller.KindRemote}); err != nil {
		t.Fatal(err)
	}

	if code, _ := do(t, http.MethodPost, srv.URL+"/api/play", ""); code != http.StatusOK {
		t.Fatalf("play = %d", code)
	}
	if code, _ := do(t, http.MethodPost, srv.URL+"/api/seek", `{"position": 1.5}`); code != http.StatusOK {
		t.Fatalf("seek = %d", code)
	}
	if code, _ := do(t, http.MethodPost, srv.URL+"/api/seek", `{}`); code != http.StatusBadRequest {
		t.Errorf("seek without position = %d, want 400", code)
	}
	if len(remote.seeks) != 1 || remote.seeks[0] != 1 {
		t.Errorf("seeks = %v, want [1]", remote.seeks)
	}

	code, body := do(t, http.MethodGet, srv.URL+"/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["session_id"] != "s9" || body["playing"] != true || body["seconds"] != 5.0 || body["backend"] != "remote" {
		t.Errorf("status = %v", body)
	}
}

func TestEventStream(t *testing.T) {
	srv, ctl, _ := newAPI(t)

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	// The listener is registered before the comment is flushed.
	ctl.Events().Publish(events.Event{Kind: events.KindEnded, Position: 1})

	lines := make(chan string, 8)
	go func() {
		for {
			l, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSpace(l)
		}
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed after %v", got)
			}
			if l != "" {
				got = append(got, l)
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "event: ended" {
		t.Errorf("event line = %q", got[0])
	}
	var ev events.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(got[1], "data: ")), &ev); err != nil {
		t.Fatalf("data line %q: %v", got[1], err)
	}
	if ev.Kind != events.KindEnded || ev.Position != 1 {
		t.Errorf("event = %+v", ev)
	}
}
