package transport

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/satindergrewal/abmix/internal/params"
)

var slowConfirm = SeekTiming{Settle: 20 * time.Millisecond, Confirm: 5 * time.Second, Resume: 20 * time.Millisecond}

func connect(t *testing.T, timing SeekTiming) (*clientHarness, *fakeMixer, *websocket.Conn) {
	t.Helper()
	m := newFakeMixer(t)
	h := newClientHarness(t, DialWebSocket(m.url()), timing)
	if err := h.c.Connect(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return h, m, m.accept(t)
}

func TestConnectTimeout(t *testing.T) {
	hang := func(ctx context.Context, _ string) (Link, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newClientHarness(t, hang, SeekTiming{})
	h.c.opts.ConnectTimeout = 20 * time.Millisecond

	start := time.Now()
	err := h.c.Connect(context.Background(), "s")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Connect did not honor the timeout")
	}
	if h.c.Connected() {
		t.Error("Connected() = true after failed connect")
	}
}

func TestConnectRefused(t *testing.T) {
	m := newFakeMixer(t)
	url := m.url()
	m.srv.Close()

	h := newClientHarness(t, DialWebSocket(url), SeekTiming{})
	if err := h.c.Connect(context.Background(), "s"); !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	h := newClientHarness(t, nil, SeekTiming{})
	cmds := map[string]func() error{
		"play":   h.c.Play,
		"pause":  h.c.Pause,
		"stop":   h.c.Stop,
		"seek":   func() error { return h.c.Seek(0.5) },
		"params": func() error { return h.c.UpdateParameters(params.FlatFrom(params.Default())) },
	}
	for name, fn := range cmds {
		if err := fn(); !errors.Is(err, ErrNotConnected) {
			t.Errorf("%s: err = %v, want ErrNotConnected", name, err)
		}
	}
	if h.sink.Resumes() != 0 {
		t.Error("Play resumed the device without a connection")
	}
}

func TestControlMessages(t *testing.T) {
	h, m, _ := connect(t, slowConfirm)

	m.mu.Lock()
	sessions := m.sessions
	m.mu.Unlock()
	if len(sessions) != 1 || sessions[0] != "sess-1" {
		t.Errorf("sessions = %v, want [sess-1]", sessions)
	}

	if err := h.c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m.expect(t, TypePlay)
	if h.sink.Resumes() != 1 {
		t.Errorf("Resumes = %d, want 1", h.sink.Resumes())
	}

	if err := h.c.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	m.expect(t, TypePause)

	set := params.Default()
	set.BlendRatio = 0.25
	set.MasterGainDB = -3
	if err := h.c.UpdateParameters(params.FlatFrom(set)); err != nil {
		t.Fatalf("UpdateParameters: %v", err)
	}
	got := m.expect(t, TypeParameters)
	var flat params.Flat
	if err := json.Unmarshal(got.Params, &flat); err != nil {
		t.Fatalf("params payload: %v", err)
	}
	if flat.BlendRatio != 0.25 || flat.MasterGainDB != -3 || !flat.LimiterEnabled {
		t.Errorf("params = %+v", flat)
	}

	if err := h.c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	m.expect(t, TypeStop)
	if st := h.c.Status(); st.Playing || st.Position != 0 {
		t.Errorf("after Stop: %+v", st)
	}
}

func TestAudioScheduledBackToBack(t *testing.T) {
	h, _, conn := connect(t, slowConfirm)

	sendPCM(t, conn, 100, 200, 300, 400, 500, 600, 700, 800, 900, 1000)
	sendPCM(t, conn, 1100, 1200, 1300, 1400, 1500, 1600, 1700, 1800, 1900, 2000)
	eventually(t, "chunks scheduled", func() bool { return h.c.Timeline().Pending() == 30 })

	out := h.sink.Pull(4)
	for i := 0; i < 40; i++ {
		var want float64
		if i >= 10 && i < 30 {
			want = float64(int16(100*(i-9))) / 32768
		}
		if out[0][i] != want || out[1][i] != -want {
			t.Fatalf("frame %d = (%v, %v), want (%v, %v)", i, out[0][i], out[1][i], want, -want)
		}
	}
}

func TestSeekDiscardsUntilConfirmed(t *testing.T) {
	h, m, conn := connect(t, slowConfirm)

	if err := h.c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m.expect(t, TypePlay)

	if err := h.c.Seek(1.5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	m.expect(t, TypeStop)
	if st := h.c.Status(); !st.Seeking || st.Position != 1 {
		t.Errorf("during seek: %+v", st)
	}

	// Stale audio from before the seek.
	sendPCM(t, conn, 1, 2, 3, 4)
	got := m.expect(t, TypeSeek)
	if got.Position == nil || *got.Position != 1 {
		t.Fatalf("seek position = %v, want 1", got.Position)
	}
	eventually(t, "stale chunk dropped", func() bool { return h.c.Status().Dropped == 1 })
	if p := h.c.Timeline().Pending(); p != 0 {
		t.Errorf("Pending = %d after discarded chunk, want 0", p)
	}

	sendJSON(t, conn, map[string]any{"type": TypeSeeked, "position": 1.0})
	m.expect(t, TypePlay)
	eventually(t, "seek idle", func() bool { return h.c.Status().SeekState == SeekIdle })

	sendPCM(t, conn, 5, 6, 7, 8)
	eventually(t, "fresh chunk scheduled", func() bool { return h.c.Timeline().Pending() > 0 })
	if st := h.c.Status(); st.Dropped != 1 || st.Position != 1 {
		t.Errorf("after seek: %+v", st)
	}
}

func TestSeekBetweenGateAndScheduleDropsChunk(t *testing.T) {
	m := newFakeMixer(t)
	h := newClientHarness(t, DialWebSocket(m.url()), slowConfirm)

	// The chunk passes the seek gate, then a seek flushes the timeline
	// before the chunk reaches it.
	var seeked bool
	h.c.admitted = func() {
		if !seeked {
			seeked = true
			h.c.Seek(0.5)
		}
	}
	if err := h.c.Connect(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := m.accept(t)

	sendPCM(t, conn, 1, 2, 3, 4)
	m.expect(t, TypeStop)
	eventually(t, "chunk dropped", func() bool { return h.c.Status().Dropped == 1 })
	if p := h.c.Timeline().Pending(); p != 0 {
		t.Errorf("Pending = %d, want 0", p)
	}
	if st := h.c.Status(); !st.Seeking || st.Position != 0.5 {
		t.Errorf("status = %+v", st)
	}
}

func TestSeekClampsAndSkipsResumeWhenPaused(t *testing.T) {
	h, m, conn := connect(t, slowConfirm)

	if err := h.c.Seek(-0.2); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	m.expect(t, TypeStop)
	got := m.expect(t, TypeSeek)
	if got.Position == nil || *got.Position != 0 {
		t.Fatalf("seek position = %v, want 0", got.Position)
	}
	sendJSON(t, conn, map[string]any{"type": TypeSeeked, "position": 0.0})
	eventually(t, "seek idle", func() bool { return h.c.Status().SeekState == SeekIdle })
	m.quiet(t, 80*time.Millisecond)
}

func TestSupersededSeekSendsOnlyLatest(t *testing.T) {
	h, m, conn := connect(t, slowConfirm)

	h.c.Seek(0.3)
	h.c.Seek(0.6)
	m.expect(t, TypeStop)
	m.expect(t, TypeStop)
	got := m.expect(t, TypeSeek)
	if got.Position == nil || *got.Position != 0.6 {
		t.Fatalf("seek position = %v, want 0.6", got.Position)
	}
	m.quiet(t, 60*time.Millisecond)

	sendJSON(t, conn, map[string]any{"type": TypeSeeked, "position": 0.3})
	sendJSON(t, conn, map[string]any{"type": TypeStatus, "position": 0.31})
	time.Sleep(20 * time.Millisecond)
	if st := h.c.Status(); !st.Seeking || st.Position != 0.6 {
		t.Fatalf("stale confirmation ended the seek: %+v", st)
	}

	sendJSON(t, conn, map[string]any{"type": TypeSeeked, "position": 0.6})
	eventually(t, "seek idle", func() bool { return !h.c.Status().Seeking })
}

func TestPlayDuringSeekResumesOnce(t *testing.T) {
	h, m, conn := connect(t, slowConfirm)

	h.c.Seek(0.5)
	m.expect(t, TypeStop)
	if err := h.c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m.expect(t, TypeSeek)
	sendJSON(t, conn, map[string]any{"type": TypeSeeked, "position": 0.5})
	m.expect(t, TypePlay)
	m.quiet(t, 60*time.Millisecond)
}

func TestSeekConfirmsOnTimer(t *testing.T) {
	h, m, _ := connect(t, SeekTiming{Settle: 5 * time.Millisecond, Confirm: 20 * time.Millisecond, Resume: 5 * time.Millisecond})

	h.c.Play()
	m.expect(t, TypePlay)
	h.c.Seek(0.4)
	m.expect(t, TypeStop)
	m.expect(t, TypeSeek)
	m.expect(t, TypePlay)
	if st := h.c.Status(); st.Seeking {
		t.Errorf("still seeking after timers: %+v", st)
	}
}

func TestInboundMessages(t *testing.T) {
	h, _, conn := connect(t, slowConfirm)

	sendText(t, conn, "{not json")
	sendJSON(t, conn, map[string]any{"type": TypeError, "message": "boom"})
	select {
	case err := <-h.errs:
		if !errors.Is(err, ErrRemote) || !strings.Contains(err.Error(), "boom") {
			t.Fatalf("OnError(%v), want ErrRemote boom", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error callback")
	}

	sendJSON(t, conn, map[string]any{"type": TypeAudioChunk, "position": 0.1, "sample_rate": testRate, "channels": 2, "duration": 30.0})
	sendJSON(t, conn, map[string]any{"type": TypeStatus, "playing": true, "position": 0.25})
	eventually(t, "status applied", func() bool { return h.c.Status().Position == 0.25 })

	st := h.c.Status()
	if !st.Connected || !st.Playing || st.Duration != 30*time.Second || st.SampleRate != testRate {
		t.Errorf("status = %+v", st)
	}

	sendJSON(t, conn, map[string]any{"type": TypePlaybackEnded})
	for {
		select {
		case ev := <-h.events:
			if ev.Kind != EventEnded {
				continue
			}
			if ev.Position != 1 {
				t.Errorf("ended position = %v", ev.Position)
			}
			if h.c.Status().Playing {
				t.Error("still playing after playback_ended")
			}
			return
		case <-time.After(2 * time.Second):
			t.Fatal("no ended event")
		}
	}
}

func TestConnectionLoss(t *testing.T) {
	h, _, conn := connect(t, slowConfirm)

	conn.Close()
	select {
	case err := <-h.errs:
		if !errors.Is(err, ErrConnection) {
			t.Fatalf("OnError(%v), want ErrConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error callback after connection loss")
	}
	if h.c.Connected() {
		t.Error("Connected() = true after loss")
	}
	if err := h.c.Play(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Play after loss: %v, want ErrNotConnected", err)
	}
}

func TestReconnectAfterLoss(t *testing.T) {
	h, m, conn := connect(t, slowConfirm)
	conn.Close()
	<-h.errs

	if err := h.c.Connect(context.Background(), "sess-2"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	m.accept(t)
	if err := h.c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m.expect(t, TypePlay)
	if st := h.c.Status(); st.SessionID != "sess-2" || !st.Connected {
		t.Errorf("status = %+v", st)
	}
}

func TestCloseIsQuiet(t *testing.T) {
	h, _, _ := connect(t, slowConfirm)
	if err := h.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-h.errs:
		t.Fatalf("OnError(%v) after Close", err)
	case <-time.After(50 * time.Millisecond):
	}
	if !h.sink.Closed() {
		t.Error("sink not closed")
	}
}
