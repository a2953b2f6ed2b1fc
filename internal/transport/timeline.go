package transport

import (
	"sync"
	"time"
)

type scheduled struct {
	start int64
	data  [][]float32
}

func (s scheduled) end() int64 { return s.start + int64(len(s.data[0])) }

// Timeline places received PCM chunks on the output clock back to back.
// The output device pulls it as a device.Renderer; the clock is the number
// of frames rendered so far.
type Timeline struct {
	mu       sync.Mutex
	rate     int
	channels int
	lead     int64

	clock int64
	next  int64
	epoch uint64 // bumped by Flush
	queue []scheduled
}

// NewTimeline returns a timeline for rate and channels. lead is the
// distance ahead of the output clock at which an idle timeline starts the
// next chunk.
func NewTimeline(rate, channels int, lead time.Duration) *Timeline {
	return &Timeline{
		rate:     rate,
		channels: channels,
		lead:     int64(lead) * int64(rate) / int64(time.Second),
	}
}

// Schedule queues planes and returns the frame at which they start and
// their length. Chunks start at max(clock+lead, end of previous chunk).
func (t *Timeline) Schedule(planes [][]float32) (start, frames int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduleLocked(planes)
}

// ScheduleFrom is Schedule for a chunk admitted at epoch. It drops the
// chunk and reports false if the timeline was flushed since.
func (t *Timeline) ScheduleFrom(epoch uint64, planes [][]float32) (start, frames int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch != t.epoch {
		return 0, 0, false
	}
	start, frames = t.scheduleLocked(planes)
	return start, frames, true
}

func (t *Timeline) scheduleLocked(planes [][]float32) (start, frames int64) {
	if len(planes) == 0 || len(planes[0]) == 0 {
		return 0, 0
	}
	start = max(t.clock+t.lead, t.next)
	frames = int64(len(planes[0]))
	t.next = start + frames
	t.queue = append(t.queue, scheduled{start: start, data: planes})
	return start, frames
}

// Epoch returns the current flush generation.
func (t *Timeline) Epoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// Render writes everything scheduled inside the next block and advances
// the clock. Missing channels repeat the first one.
func (t *Timeline) Render(out [][]float64) {
	for c := range out {
		clear(out[c])
	}
	if len(out) == 0 {
		return
	}
	n := int64(len(out[0]))

	t.mu.Lock()
	defer t.mu.Unlock()

	from, to := t.clock, t.clock+n
	keep := t.queue[:0]
	for _, s := range t.queue {
		if s.start < to && s.end() > from {
			lo, hi := max(s.start, from), min(s.end(), to)
			for c := range out {
				src := s.data[min(c, len(s.data)-1)]
				dst := out[c][lo-from : hi-from]
				for i := range dst {
					dst[i] += float64(src[lo-s.start+int64(i)])
				}
			}
		}
		if s.end() > to {
			keep = append(keep, s)
		}
	}
	clear(t.queue[len(keep):])
	t.queue = keep
	t.clock = to
}

// Flush drops every pending chunk and starts a new epoch. The next chunk
// starts at clock+lead.
func (t *Timeline) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.queue)
	t.queue = t.queue[:0]
	t.next = t.clock
	t.epoch++
}

// Now returns the output clock in frames.
func (t *Timeline) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock
}

// Pending returns how many frames are scheduled beyond the output clock.
func (t *Timeline) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(0, t.next-t.clock)
}

// Rate returns the timeline's sample rate.
func (t *Timeline) Rate() int { return t.rate }
