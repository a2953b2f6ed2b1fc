package transport

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/satindergrewal/abmix/internal/device"
)

func chunk(n int, v float32) [][]float32 {
	l, r := make([]float32, n), make([]float32, n)
	for i := range l {
		l[i], r[i] = v, -v
	}
	return [][]float32{l, r}
}

func TestTimelineSchedulesContiguously(t *testing.T) {
	tl := NewTimeline(1000, 2, 10*time.Millisecond)
	rng := rand.New(rand.NewPCG(1, 2))
	out := device.NewPlanes(2, 8)

	var prevStart, prevLen int64 = -1, 0
	for i := 0; i < 200; i++ {
		n := 16 + rng.IntN(48)
		start, frames := tl.Schedule(chunk(n, 0.1))
		if frames != int64(n) {
			t.Fatalf("chunk %d: frames = %d, want %d", i, frames, n)
		}
		if prevStart >= 0 && start != prevStart+prevLen {
			t.Fatalf("chunk %d starts at %d, want %d", i, start, prevStart+prevLen)
		}
		prevStart, prevLen = start, frames

		// Consume less than was delivered so the queue never runs dry.
		if rng.IntN(2) == 1 {
			tl.Render(out)
		}
	}
}

func TestTimelineLeadAndGap(t *testing.T) {
	tl := NewTimeline(1000, 2, 10*time.Millisecond)
	if start, _ := tl.Schedule(chunk(5, 0.5)); start != 10 {
		t.Fatalf("first start = %d, want 10", start)
	}

	out := device.NewPlanes(2, 20)
	tl.Render(out)
	for i, v := range out[0] {
		want := 0.0
		if i >= 10 && i < 15 {
			want = float64(float32(0.5))
		}
		if v != want || out[1][i] != -want {
			t.Fatalf("frame %d = (%v, %v), want (%v, %v)", i, v, out[1][i], want, -want)
		}
	}
	if tl.Pending() != 0 {
		t.Errorf("Pending = %d after drain", tl.Pending())
	}

	// Underrun: the next chunk starts a lead after the clock, not at the
	// stale end of the previous one.
	if start, _ := tl.Schedule(chunk(5, 0.5)); start != 30 {
		t.Errorf("start after underrun = %d, want 30", start)
	}
}

func TestTimelineChunkSpansBlocks(t *testing.T) {
	tl := NewTimeline(1000, 2, 0)
	vals := make([]float32, 25)
	for i := range vals {
		vals[i] = float32(i) / 32
	}
	tl.Schedule([][]float32{vals})

	var got []float64
	out := device.NewPlanes(2, 10)
	for i := 0; i < 3; i++ {
		tl.Render(out)
		if out[0][0] != out[1][0] {
			t.Fatal("mono chunk not copied to both channels")
		}
		got = append(got, out[0]...)
	}
	for i, v := range got {
		want := 0.0
		if i < 25 {
			want = float64(vals[i])
		}
		if v != want {
			t.Fatalf("frame %d = %v, want %v", i, v, want)
		}
	}
	if tl.Now() != 30 {
		t.Errorf("Now = %d, want 30", tl.Now())
	}
}

func TestTimelineFlush(t *testing.T) {
	tl := NewTimeline(1000, 2, 0)
	tl.Schedule(chunk(50, 0.25))
	tl.Schedule(chunk(50, 0.25))

	out := device.NewPlanes(2, 10)
	tl.Render(out)
	tl.Flush()
	if tl.Pending() != 0 {
		t.Fatalf("Pending = %d after Flush", tl.Pending())
	}
	tl.Render(out)
	for _, v := range out[0] {
		if v != 0 {
			t.Fatal("flushed audio still rendered")
		}
	}
	if start, _ := tl.Schedule(chunk(5, 0.25)); start != tl.Now() {
		t.Errorf("start after flush = %d, want %d", start, tl.Now())
	}
}

func TestTimelineRejectsChunkFromBeforeFlush(t *testing.T) {
	tl := NewTimeline(1000, 2, 10*time.Millisecond)

	epoch := tl.Epoch()
	if _, _, ok := tl.ScheduleFrom(epoch, chunk(20, 0.5)); !ok {
		t.Fatal("chunk at current epoch rejected")
	}
	tl.Flush()
	if tl.Epoch() == epoch {
		t.Fatal("Flush did not start a new epoch")
	}

	if _, _, ok := tl.ScheduleFrom(epoch, chunk(20, 0.5)); ok {
		t.Fatal("chunk from before Flush was scheduled")
	}
	if p := tl.Pending(); p != 0 {
		t.Fatalf("Pending = %d, want 0", p)
	}

	start, frames, ok := tl.ScheduleFrom(tl.Epoch(), chunk(20, 0.25))
	if !ok || start != 10 || frames != 20 {
		t.Fatalf("ScheduleFrom = %d, %d, %v; want 10, 20, true", start, frames, ok)
	}
}
